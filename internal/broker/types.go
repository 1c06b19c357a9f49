package broker

import (
	"context"

	"certpipe/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, msg models.Envelope) error
	Close() error
}
