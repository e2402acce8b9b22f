// Package kafka publishes consolidation events to an Apache Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/papercomputeco/mnemo/pkg/eventstream"
)

// Publisher writes consolidation events to a Kafka topic, keyed by namespace
// so events for one namespace stay ordered within a partition.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a Kafka publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// PublishConsolidation encodes the event as JSON and writes it to the topic.
func (p *Publisher) PublishConsolidation(ctx context.Context, event *eventstream.ConsolidationEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal consolidation event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Namespace),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: []byte(fmt.Sprintf("%d", event.SchemaVersion))},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write consolidation event: %w", err)
	}

	return nil
}

// Close flushes and releases the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
