package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certpipe/internal/broker"
	"certpipe/internal/config"
	"certpipe/pkg/models"
)

func TestKafkaProducer_PublishAndReadBack(t *testing.T) {
	infra := SetupInfra(t, InfraOptions{Kafka: true})

	ctx := context.Background()
	topic := "listings-test"

	producer := broker.NewKafkaProducer(config.KafkaConfig{Brokers: infra.KafkaBrokers}, createTestLogger())
	t.Cleanup(func() { producer.Close() })

	envelope := models.Envelope{
		ID:        "listing-1",
		Kind:      "listing",
		Timestamp: time.Now().UTC(),
		Payload: map[string]interface{}{
			"group_id": "g1@chatroom",
		},
	}

	require.NoError(t, producer.Publish(ctx, topic, envelope))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     infra.KafkaBrokers,
		Topic:       topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	t.Cleanup(func() { reader.Close() })

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	m, err := reader.ReadMessage(readCtx)
	require.NoError(t, err)
	assert.Equal(t, []byte("listing-1"), m.Key)

	var got models.Envelope
	require.NoError(t, json.Unmarshal(m.Value, &got))
	assert.Equal(t, "listing", got.Kind)
	assert.Equal(t, "g1@chatroom", got.Payload["group_id"])
}

func TestNewProducer_Factory(t *testing.T) {
	p, err := broker.NewProducer(config.BrokerConfig{Type: "none"}, createTestLogger())
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), "any", models.Envelope{}))
	require.NoError(t, p.Close())

	_, err = broker.NewProducer(config.BrokerConfig{Type: "rabbitmq"}, createTestLogger())
	assert.Error(t, err)
}
