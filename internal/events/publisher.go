package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// writeTimeout bounds a single Kafka write.
const writeTimeout = 10 * time.Second

// Publisher hands engine events to the messaging subsystem.
type Publisher interface {
	Publish(ctx context.Context, e Envelope) error
	Close() error
}

// NopPublisher discards events. Used when no brokers are configured and in
// dry runs.
type NopPublisher struct{}

// Publish discards the event.
func (NopPublisher) Publish(ctx context.Context, e Envelope) error { return nil }

// Close is a no-op.
func (NopPublisher) Close() error { return nil }

// KafkaPublisher writes events to a Kafka topic, keyed by clinic slug so one
// clinic's events stay ordered on a single partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaPublisher creates a synchronous at-least-once publisher for the
// comma-separated broker list.
func NewKafkaPublisher(brokers, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	if brokers == "" {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	brokerList := strings.Split(brokers, ",")
	for i := range brokerList {
		brokerList[i] = strings.TrimSpace(brokerList[i])
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerList...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // partition by clinic slug
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	logger.Info("kafka publisher configured", "brokers", brokerList, "topic", topic)
	return &KafkaPublisher{writer: writer, logger: logger}, nil
}

// Publish writes one event, keyed by clinic slug.
func (p *KafkaPublisher) Publish(ctx context.Context, e Envelope) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", e.Kind, err)
	}
	msg := kafka.Message{
		Key:   []byte(e.ClinicSlug),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing %s event for %s: %w", e.Kind, e.ClinicSlug, err)
	}
	p.logger.Debug("event published", "kind", e.Kind, "clinic", e.ClinicSlug)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
