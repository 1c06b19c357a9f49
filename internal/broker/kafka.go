package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"certpipe/internal/config"
	"certpipe/internal/constants"
	"certpipe/internal/logger"
	"certpipe/pkg/metrics"
	"certpipe/pkg/models"
	"certpipe/pkg/retry"
)

type KafkaProducer struct {
	writer      *kafka.Writer
	logger      logger.Logger
	serviceName string
	policy      retry.Policy
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		Async:        false,
	}
	policy := retry.Policy{
		MaxAttempts:     constants.KafkaPublishMaxAttempts,
		InitialInterval: constants.KafkaPublishRetryInterval,
		MaxInterval:     constants.KafkaWriteTimeout,
		Multiplier:      2.0,
	}
	return &KafkaProducer{writer: w, logger: log, serviceName: "producer", policy: policy}
}

func (p *KafkaProducer) SetServiceName(name string) {
	p.serviceName = name
}

func (p *KafkaProducer) Publish(ctx context.Context, topic string, msg models.Envelope) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	start := time.Now()
	err = retry.Notify(ctx, p.policy, func() error {
		return p.writer.WriteMessages(ctx,
			kafka.Message{
				Topic: topic,
				Key:   []byte(msg.ID),
				Value: body,
				Time:  time.Now(),
			},
		)
	}, func(err error, next time.Duration) {
		p.logger.Warnw("Kafka write failed, retrying",
			"topic", topic,
			"retry_in", next,
			"error", err,
		)
	})
	metrics.ObserveKafkaWriteDuration(p.serviceName, topic, time.Since(start))

	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.IncKafkaMessagesWritten(p.serviceName, topic)
	metrics.ObserveKafkaMessageSize(p.serviceName, topic, "out", len(body))
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
