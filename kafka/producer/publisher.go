package producer

import (
	"context"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/playurl/kafka"
)

// Publish sends a structured Event. The partition key is the event subject,
// falling back to key and then the event id.
func (p *Producer) Publish(ctx context.Context, topic string, event kafka.Event, key ...string) error {
	data, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafkago.Message{
		Topic: topic,
		Key:   []byte(determineKey(event, key)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: kafka.HeaderEventID, Value: []byte(event.ID)},
			{Key: kafka.HeaderEventType, Value: []byte(event.Type)},
			{Key: kafka.HeaderEventSource, Value: []byte(event.Source)},
			{Key: kafka.HeaderContentType, Value: []byte("application/json")},
		},
		Time: event.Timestamp,
	}

	if err := p.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

func determineKey(event kafka.Event, keys []string) string {
	if event.Subject != "" {
		return event.Subject
	}
	if len(keys) > 0 && keys[0] != "" {
		return keys[0]
	}
	return event.ID
}
