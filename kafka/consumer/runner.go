package consumer

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/playurl/kafka"
)

// Runner binds a Consumer to its handler so kafka.Component can drive it.
type Runner struct {
	consumer *Consumer
	handler  kafka.MessageHandler
}

var _ kafka.ConsumerRunner = (*Runner)(nil)

// AsRunner wraps a Consumer with a MessageHandler for kafka.Component.AddConsumer.
func AsRunner(c *Consumer, h kafka.MessageHandler) *Runner {
	return &Runner{consumer: c, handler: h}
}

// Consume runs the consume loop.
func (r *Runner) Consume(ctx context.Context) error {
	return r.consumer.Consume(ctx, r.handler)
}

// Close closes the consumer.
func (r *Runner) Close() error {
	return r.consumer.Close()
}

// Topic returns the consumed topic.
func (r *Runner) Topic() string {
	return r.consumer.Topic()
}

// Stats returns reader statistics for health reporting.
func (r *Runner) Stats() kafkago.ReaderStats {
	return r.consumer.Stats()
}
