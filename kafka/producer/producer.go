package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/playurl/kafka"
	"github.com/kbukum/playurl/logger"
	"github.com/kbukum/playurl/resilience"
)

// Writer is the subset of *kafkago.Writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Stats() kafkago.WriterStats
	Close() error
}

// Producer wraps a kafka-go Writer with TLS/SASL, retries and structured logging.
type Producer struct {
	writer Writer
	cfg    kafka.Config
	log    *logger.Logger
	retry  resilience.RetryConfig
	mu     sync.RWMutex
	closed bool
}

// NewProducer creates a Kafka producer. The writer connects lazily on first write.
func NewProducer(cfg kafka.Config, log *logger.Logger) (*Producer, error) {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kafka producer config: %w", err)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("kafka is disabled")
	}

	transport, err := kafka.NewTransport(&cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer transport: %w", err)
	}

	plog := log.WithComponent("kafka.producer")
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Transport:    transport,
		Balancer:     &kafkago.Hash{},
		BatchSize:    cfg.Producer.BatchSize,
		BatchTimeout: cfg.Producer.BatchTimeout,
		RequiredAcks: kafkago.RequiredAcks(cfg.Producer.RequiredAcks),
		Compression:  cfg.Compression(),
		WriteTimeout: cfg.Producer.WriteTimeout,
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...interface{}) {
			plog.Error("writer: "+fmt.Sprintf(msg, args...))
		}),
	}

	plog.Info("Kafka producer initialized", map[string]interface{}{
		"brokers":     cfg.Brokers,
		"compression": cfg.Producer.Compression,
		"batch_size":  cfg.Producer.BatchSize,
	})
	return NewWithWriter(cfg, w, log), nil
}

// NewWithWriter creates a Producer on an existing writer.
func NewWithWriter(cfg kafka.Config, w Writer, log *logger.Logger) *Producer {
	cfg.ApplyDefaults()
	p := &Producer{
		writer: w,
		cfg:    cfg,
		log:    log.WithComponent("kafka.producer"),
		retry: resilience.RetryConfig{
			MaxAttempts:    cfg.Producer.Retries,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			BackoffFactor:  2,
			Jitter:         0.1,
			RetryIf: func(err error) bool {
				return resilience.DefaultRetryIf(err) && !kafka.IsNonRetryableError(err)
			},
		},
	}
	p.retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
		p.log.Warn("Kafka write failed, retrying", map[string]interface{}{
			"attempt":         attempt,
			"backoff":         backoff.String(),
			logger.FieldError: err.Error(),
		})
	}
	return p
}

// WriteMessages sends one or more messages with bounded retries.
func (p *Producer) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return fmt.Errorf("producer is closed")
	}

	err := resilience.RetryFunc(ctx, p.retry, func() error {
		return p.writer.WriteMessages(ctx, msgs...)
	})
	if err != nil {
		return fmt.Errorf("write to kafka: %w", err)
	}
	return nil
}

// SendJSON marshals value as JSON and sends it to the given topic with the given key.
func (p *Producer) SendJSON(ctx context.Context, topic, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	return p.WriteMessages(ctx, kafkago.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: kafka.HeaderContentType, Value: []byte("application/json")},
		},
	})
}

// Stats returns writer statistics.
func (p *Producer) Stats() kafkago.WriterStats {
	return p.writer.Stats()
}

// Close shuts down the producer.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.log.Info("Kafka producer closing")
	return p.writer.Close()
}
