package broker

import (
	"context"
	"fmt"

	"certpipe/internal/config"
	"certpipe/internal/logger"
	"certpipe/pkg/models"
)

func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	switch cfg.Type {
	case "kafka":
		return NewKafkaProducer(cfg.Kafka, log), nil
	case "none", "":
		return NoopProducer{}, nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}

// NoopProducer discards everything. Used when publishing is disabled.
type NoopProducer struct{}

func (NoopProducer) Publish(ctx context.Context, topic string, msg models.Envelope) error {
	return nil
}

func (NoopProducer) Close() error { return nil }
