package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	kafkago "github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/kbukum/playurl/component"
	"github.com/kbukum/playurl/logger"
)

// ProducerCloser is the producer side as the component sees it.
type ProducerCloser interface {
	Close() error
}

// ConsumerRunner is one topic's consume loop.
type ConsumerRunner interface {
	Consume(ctx context.Context) error
	Close() error
	Topic() string
}

// Component ties the notice producer and the lifecycle consumers to the
// registry: consumers run from Start until Stop, and Health probes a broker.
type Component struct {
	cfg Config
	log *logger.Logger

	mu        sync.Mutex
	producer  ProducerCloser
	consumers []ConsumerRunner
	stop      context.CancelFunc
	loops     *errgroup.Group

	dial func(ctx context.Context) error
}

var _ component.Component = (*Component)(nil)

// NewComponent applies defaults to cfg and returns an unstarted component.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	cfg.ApplyDefaults()
	c := &Component{cfg: cfg, log: log.WithComponent("kafka")}
	c.dial = c.dialAnyBroker
	return c
}

// SetProducer hands the producer to the component, which closes it on Stop.
func (c *Component) SetProducer(p ProducerCloser) {
	c.mu.Lock()
	c.producer = p
	c.mu.Unlock()
}

// AddConsumer registers a consume loop to run from Start.
func (c *Component) AddConsumer(cr ConsumerRunner) {
	c.mu.Lock()
	c.consumers = append(c.consumers, cr)
	c.mu.Unlock()
}

// Name implements component.Component.
func (c *Component) Name() string { return "kafka" }

// Start launches one goroutine per consumer. The loops are detached from
// ctx and end only when Stop cancels them.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loops != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.stop = cancel
	c.loops = &errgroup.Group{}
	for _, cr := range c.consumers {
		c.loops.Go(func() error {
			err := cr.Consume(loopCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				c.log.Error("Consumer stopped with error", logger.Fields("topic", cr.Topic(), logger.FieldError, err.Error()))
			}
			return nil
		})
	}

	c.log.Info("Kafka component started", logger.Fields("brokers", c.cfg.Brokers, "consumers", len(c.consumers)))
	return nil
}

// Stop cancels the consume loops, waits for them, then closes every
// client. Calling it again is a no-op.
func (c *Component) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loops == nil {
		return nil
	}

	c.stop()
	_ = c.loops.Wait()
	c.loops, c.stop = nil, nil

	var errs []error
	for _, cr := range c.consumers {
		if err := cr.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close consumer %s: %w", cr.Topic(), err))
		}
	}
	c.consumers = nil
	if c.producer != nil {
		if err := c.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close producer: %w", err))
		}
		c.producer = nil
	}
	c.log.Info("Kafka component stopped")
	return errors.Join(errs...)
}

// Health is unhealthy until Start and whenever no broker answers a
// metadata request. Client counters ride along in Details.
func (c *Component) Health(ctx context.Context) component.Health {
	c.mu.Lock()
	started := c.loops != nil
	details := c.statsLocked()
	c.mu.Unlock()

	h := component.Health{Name: c.Name(), Status: component.StatusHealthy, Details: details}
	switch {
	case !started:
		h.Status, h.Message, h.Details = component.StatusUnhealthy, "kafka not started", nil
	default:
		if err := c.dial(ctx); err != nil {
			h.Status, h.Message = component.StatusUnhealthy, fmt.Sprintf("broker unreachable: %v", err)
		}
	}
	return h
}

func (c *Component) statsLocked() map[string]interface{} {
	details := map[string]interface{}{"brokers": c.cfg.Brokers}
	if w, ok := c.producer.(interface{ Stats() kafkago.WriterStats }); ok {
		st := w.Stats()
		details["producer"] = map[string]interface{}{
			"messages":          st.Messages,
			"errors":            st.Errors,
			"retries":           st.Retries,
			"max_write_time_ms": st.WriteTime.Max.Milliseconds(),
		}
	}
	var readers []map[string]interface{}
	for _, cr := range c.consumers {
		r, ok := cr.(interface{ Stats() kafkago.ReaderStats })
		if !ok {
			continue
		}
		st := r.Stats()
		readers = append(readers, map[string]interface{}{
			"topic":    st.Topic,
			"messages": st.Messages,
			"errors":   st.Errors,
			"lag":      st.Lag,
		})
	}
	if readers != nil {
		details["consumers"] = readers
	}
	return details
}

// dialAnyBroker succeeds as soon as one configured broker returns metadata.
func (c *Component) dialAnyBroker(ctx context.Context) error {
	dialer, err := NewDialer(&c.cfg)
	if err != nil {
		return err
	}
	errs := make([]error, 0, len(c.cfg.Brokers))
	for _, addr := range c.cfg.Brokers {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_, err = conn.Brokers()
		_ = conn.Close()
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s metadata: %w", addr, err))
	}
	if len(errs) == 0 {
		return errors.New("no brokers configured")
	}
	return errors.Join(errs...)
}
