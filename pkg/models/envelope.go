package models

import "time"

// Envelope is the shape published to the broker, both for persisted
// listings (output topic) and for dropped messages (DLQ topic).
type Envelope struct {
	ID        string                 `json:"id"`
	Kind      string                 `json:"kind"` // "listing" or "dropped"
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}
