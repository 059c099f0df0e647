// Package events publishes domain events to the platform event stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vantagepsp/psp-core/config"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Topics emitted by the payment core.
const (
	TopicTransactionCaptured = "transaction.captured"
	TopicTransactionRefunded = "transaction.refunded"
	TopicTransactionBlocked  = "transaction.blocked"
	TopicSettlementCompleted = "settlement.completed"
)

// KafkaPublisher implements ports.EventPublisher using kafka-go.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

// NewKafkaPublisher creates a publisher writing to the configured brokers.
// Topics are addressed per message so one writer serves all event types.
func NewKafkaPublisher(cfg config.KafkaConfig, log zerolog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &KafkaPublisher{writer: writer, log: log}
}

// Publish sends one JSON-encoded event. Key controls partitioning; use the
// account or transaction id so per-entity ordering holds.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding event payload: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}

	p.log.Debug().Str("topic", topic).Str("key", key).Msg("event published")
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher implements ports.EventPublisher when no brokers are
// configured. Events are logged and dropped.
type NoopPublisher struct {
	log zerolog.Logger
}

// NewNoopPublisher creates a publisher that only logs.
func NewNoopPublisher(log zerolog.Logger) *NoopPublisher {
	return &NoopPublisher{log: log}
}

// Publish logs the event and discards it.
func (p *NoopPublisher) Publish(_ context.Context, topic string, key string, _ any) error {
	p.log.Debug().Str("topic", topic).Str("key", key).Msg("event publishing disabled, dropping")
	return nil
}

// Close is a no-op.
func (p *NoopPublisher) Close() error { return nil }
