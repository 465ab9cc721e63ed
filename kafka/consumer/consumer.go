package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/playurl/kafka"
	"github.com/kbukum/playurl/logger"
)

// Reader is the subset of *kafkago.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Stats() kafkago.ReaderStats
	Close() error
}

// Fetch errors back off linearly up to maxFetchBackoff; only the first
// loggedFetchFailures in a row are logged.
const (
	maxFetchBackoff     = 30 * time.Second
	loggedFetchFailures = 3
)

// Consumer reads one topic as part of a consumer group. Offsets are committed
// only after the handler returns, so a crash mid-message redelivers it.
type Consumer struct {
	reader Reader
	topic  string
	log    *logger.Logger
	sleep  func(ctx context.Context, d time.Duration) error

	fetchFailures int
}

// NewConsumer opens a group reader on topic starting from the earliest
// uncommitted offset.
func NewConsumer(cfg kafka.Config, topic string, log *logger.Logger) (*Consumer, error) {
	cfg.ApplyDefaults()
	if !cfg.Enabled {
		return nil, errors.New("kafka is disabled")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialer, err := kafka.NewDialer(&cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer dialer: %w", err)
	}

	c := NewWithReader(nil, topic, cfg.GroupID, log)
	c.reader = kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupID,
		Topic:             topic,
		Dialer:            dialer,
		StartOffset:       kafkago.FirstOffset,
		MinBytes:          1,
		MaxBytes:          10e6,
		SessionTimeout:    cfg.Consumer.SessionTimeout,
		HeartbeatInterval: cfg.Consumer.HeartbeatInterval,
		RebalanceTimeout:  cfg.Consumer.RebalanceTimeout,
		ErrorLogger: kafkago.LoggerFunc(func(format string, args ...interface{}) {
			c.log.Error("reader: " + fmt.Sprintf(format, args...))
		}),
	})
	c.log.Info("Kafka consumer initialized", logger.Fields("brokers", cfg.Brokers))
	return c, nil
}

// NewWithReader wraps an existing reader; tests pass a fake.
func NewWithReader(r Reader, topic, groupID string, log *logger.Logger) *Consumer {
	return &Consumer{
		reader: r,
		topic:  topic,
		log:    log.WithComponent("kafka.consumer").WithFields(logger.Fields("topic", topic, "group_id", groupID)),
		sleep:  sleepContext,
	}
}

// Consume feeds every message to handler until ctx ends. A handler error is
// logged and the offset is still committed: handlers that must not drop a
// message dead-letter it themselves.
func (c *Consumer) Consume(ctx context.Context, handler kafka.MessageHandler) error {
	c.log.Info("Starting consume loop")
	for ctx.Err() == nil {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				err = c.backOff(ctx, err)
			}
			if ctx.Err() != nil {
				break
			}
			if err != nil {
				return err
			}
			continue
		}
		c.fetchFailures = 0

		at := logger.Fields("partition", msg.Partition, "offset", msg.Offset)
		if err := handler(ctx, kafka.FromKafkaMessage(msg)); err != nil {
			at[logger.FieldError] = err.Error()
			c.log.Error("Message processing failed", at)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			at[logger.FieldError] = err.Error()
			c.log.Warn("Offset commit failed", at)
		}
	}
	return ctx.Err()
}

func (c *Consumer) backOff(ctx context.Context, err error) error {
	c.fetchFailures++
	if c.fetchFailures <= loggedFetchFailures {
		c.log.Error("Kafka read error", logger.Fields(logger.FieldError, err.Error(), "failures", c.fetchFailures))
	}
	return c.sleep(ctx, min(time.Duration(c.fetchFailures)*time.Second, maxFetchBackoff))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Topic returns the consumed topic.
func (c *Consumer) Topic() string { return c.topic }

// Stats returns reader statistics.
func (c *Consumer) Stats() kafkago.ReaderStats { return c.reader.Stats() }

// Close releases the reader and leaves the group.
func (c *Consumer) Close() error {
	c.log.Info("Kafka consumer closing")
	return c.reader.Close()
}
