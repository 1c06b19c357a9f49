package listing

import "time"

// TradeListing is one persisted certificate trade record: the model's
// structured output merged with the message context it came from.
type TradeListing struct {
	ID                  string    `json:"id"`
	DealType            string    `json:"deal_type"`
	CertificatesRaw     string    `json:"certificates_raw"`
	SplitCertificates   []string  `json:"split_certificates"`
	SocialSecurityTerms string    `json:"social_security_terms"`
	Location            string    `json:"location"`
	Price               int64     `json:"price"`
	OtherInfo           string    `json:"other_info"`
	OriginalText        string    `json:"original_text"`
	GroupID             string    `json:"group_id"`
	SenderID            string    `json:"sender_id"`
	MessageID           string    `json:"message_id"`
	GroupName           string    `json:"group_name"`
	SenderNickname      string    `json:"sender_nickname"`
	ReceivedAt          time.Time `json:"received_at"`
	CreatedAt           time.Time `json:"created_at"`
}

// Stats summarizes the listings table for the query API.
type Stats struct {
	TotalListings            int64   `json:"total_listings"`
	UniqueGroups             int64   `json:"unique_groups"`
	UniqueSenders            int64   `json:"unique_senders"`
	ListingsWithCertificates int64   `json:"listings_with_certificates"`
	AveragePrice             float64 `json:"average_price"`
	LatestListingAt          *time.Time `json:"latest_listing_at,omitempty"`
}
