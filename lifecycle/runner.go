package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/playurl/clock"
	"github.com/kbukum/playurl/component"
	"github.com/kbukum/playurl/kafka"
	"github.com/kbukum/playurl/logger"
	"github.com/kbukum/playurl/resilience"
)

// Queue holds notices until they are due. *redis.DelayQueue implements it.
type Queue interface {
	Schedule(ctx context.Context, payload []byte, at time.Time) error
	Claim(ctx context.Context, now time.Time, limit int64) ([][]byte, error)
	Len(ctx context.Context) (int64, error)
}

// Runner feeds notices from Kafka and the delay queue into a Processor and
// runs the orphan scan. It is a component.Component.
type Runner struct {
	proc     *Processor
	queue    Queue
	cfg      Config
	clock    clock.Clock
	log      *logger.Logger
	schedule resilience.RetryConfig

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ component.Component = (*Runner)(nil)

// NewRunner creates a Runner for proc backed by queue.
func NewRunner(proc *Processor, queue Queue, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{
		proc:  proc,
		queue: queue,
		cfg:   proc.cfg,
		clock: proc.clock,
		log:   log.WithComponent("lifecycle.runner"),
		schedule: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 50 * time.Millisecond,
			MaxBackoff:     time.Second,
			BackoffFactor:  2,
			Jitter:         0.1,
		},
	}
}

// HandleMessage is the kafka.MessageHandler for the notice topic.
func (r *Runner) HandleMessage(ctx context.Context, msg kafka.Message) error {
	n, err := DecodeNotice(msg.Value)
	if err != nil {
		return r.proc.Reject(ctx, msg.Value, err)
	}
	return r.Dispatch(ctx, n)
}

// Notify hands a freshly announced notice to the processor without a broker.
func (r *Runner) Notify(ctx context.Context, n Notice) error {
	return r.Dispatch(ctx, n)
}

// Dispatch handles n and parks it on the delay queue when it is deferred
// or failed transiently. The notice is dead-lettered when it can be neither
// handled nor parked.
func (r *Runner) Dispatch(ctx context.Context, n Notice) error {
	out, err := r.proc.Handle(ctx, n)
	if err == nil {
		if out.Disposition == Deferred {
			return r.park(ctx, n, out.Until)
		}
		return nil
	}

	n.Attempts++
	if n.Attempts >= r.cfg.MaxRedeliveries {
		if dlErr := r.proc.GiveUp(ctx, n, ReasonRetryExceeded, err); dlErr == nil {
			return nil
		}
	}
	r.log.WithContext(ctx).Warn("Deletion notice failed, rescheduling", logger.Fields(
		logger.FieldResourceID, n.ResourceID,
		logger.FieldError, err.Error(),
		"attempts", n.Attempts,
	))
	return r.park(ctx, n, r.clock.Now().Add(r.cfg.RetryDelay))
}

// park schedules n on the delay queue. Shutdown does not interrupt it so a
// claimed or consumed notice is not lost between systems.
func (r *Runner) park(ctx context.Context, n Notice, at time.Time) error {
	payload, err := n.Encode()
	if err != nil {
		return fmt.Errorf("encode notice %s: %w", n.ResourceID, err)
	}
	pctx := context.WithoutCancel(ctx)
	err = resilience.RetryFunc(pctx, r.schedule, func() error {
		return r.queue.Schedule(pctx, payload, at)
	})
	if err == nil {
		return nil
	}
	if dlErr := r.proc.GiveUp(pctx, n, ReasonScheduleLost, err); dlErr != nil {
		return errors.Join(fmt.Errorf("schedule notice %s: %w", n.ResourceID, err), dlErr)
	}
	return nil
}

// Poll claims due notices from the delay queue and dispatches them. It
// returns how many were claimed.
func (r *Runner) Poll(ctx context.Context) (int, error) {
	payloads, err := r.queue.Claim(ctx, r.clock.Now(), r.cfg.ClaimBatch)
	for _, b := range payloads {
		n, derr := DecodeNotice(b)
		if derr != nil {
			derr = r.proc.Reject(ctx, b, derr)
		} else {
			derr = r.Dispatch(ctx, n)
		}
		if derr != nil {
			r.log.WithContext(ctx).Error("Due notice not handled", logger.Fields(logger.FieldError, derr.Error()))
		}
	}
	if err != nil {
		return len(payloads), fmt.Errorf("claim due notices: %w", err)
	}
	return len(payloads), nil
}

func (r *Runner) pollLoop(ctx context.Context) {
	t := time.NewTicker(r.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		for ctx.Err() == nil {
			n, err := r.Poll(ctx)
			if err != nil {
				r.log.Warn("Delay queue poll failed", logger.Fields(logger.FieldError, err.Error()))
				break
			}
			if int64(n) < r.cfg.ClaimBatch {
				break
			}
		}
	}
}

// Name returns the component name.
func (r *Runner) Name() string { return "lifecycle" }

// Start launches the delay queue poller and the orphan scan.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.pollLoop(runCtx)
	}()
	go func() {
		defer r.wg.Done()
		if err := r.proc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Error("Orphan scan loop stopped", logger.Fields(logger.FieldError, err.Error()))
		}
	}()

	r.running = true
	r.log.Info("Lifecycle runner started", logger.Fields(
		"grace_period", r.cfg.GracePeriod.String(),
		"orphan_grace", r.cfg.OrphanGrace.String(),
		"scan_interval", r.cfg.ScanInterval.String(),
	))
	return nil
}

// Stop cancels the background loops and waits for them.
func (r *Runner) Stop(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return nil
	}
	r.cancel()
	r.wg.Wait()
	r.running = false
	return nil
}

// Health reports queue depth and the last orphan scan. An unreachable
// queue degrades the service without failing it.
func (r *Runner) Health(ctx context.Context) component.Health {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if !running {
		return component.Health{Name: r.Name(), Status: component.StatusUnhealthy, Message: "lifecycle not started"}
	}

	report, at := r.proc.LastScan()
	details := map[string]interface{}{"last_scan": report}
	if !at.IsZero() {
		details["last_scan_at"] = at
	}
	depth, err := r.queue.Len(ctx)
	if err != nil {
		return component.Health{
			Name:    r.Name(),
			Status:  component.StatusDegraded,
			Message: fmt.Sprintf("delay queue unavailable: %v", err),
			Details: details,
		}
	}
	details["deferred"] = depth
	return component.Health{Name: r.Name(), Status: component.StatusHealthy, Details: details}
}
