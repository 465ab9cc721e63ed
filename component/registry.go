package component

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/playurl/logger"
)

// StopTimeout bounds each component's Stop call.
const StopTimeout = 10 * time.Second

type entry struct {
	Component
	started bool
}

// Registry starts components in registration order and stops them in
// reverse, so a component registered later may depend on earlier ones.
type Registry struct {
	log *logger.Logger

	mu      sync.RWMutex
	entries []*entry
	byName  map[string]*entry
}

// NewRegistry returns an empty registry. A nil log discards output.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{log: log.WithComponent("registry"), byName: map[string]*entry{}}
}

func (r *Registry) addLocked(c Component, started bool) error {
	name := c.Name()
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("component %s already registered", name)
	}
	e := &entry{Component: c, started: started}
	r.entries = append(r.entries, e)
	r.byName[name] = e
	return nil
}

// Register queues c for StartAll.
func (r *Registry) Register(c Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(c, false)
}

// StartAll starts every registered component in order. If one fails, the
// ones already started are stopped before the error is returned.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	r.log.Info("Starting all components", logger.Fields("count", len(r.entries)))
	var failed error
	for _, e := range r.entries {
		if e.started {
			continue
		}
		if err := r.start(ctx, e.Component); err != nil {
			failed = err
			break
		}
		e.started = true
	}
	r.mu.Unlock()

	if failed != nil {
		_ = r.StopAll(context.WithoutCancel(ctx))
		return failed
	}
	r.log.Info("All components started successfully")
	return nil
}

// StartLate starts c and registers it in one step, for components that need
// wiring done after StartAll. It stops ahead of everything registered before.
func (r *Registry) StartLate(ctx context.Context, c Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[c.Name()]; dup {
		return fmt.Errorf("component %s already registered", c.Name())
	}
	if err := r.start(ctx, c); err != nil {
		return err
	}
	return r.addLocked(c, true)
}

func (r *Registry) start(ctx context.Context, c Component) error {
	name := c.Name()
	if err := c.Start(ctx); err != nil {
		r.log.Error("Component start failed", logger.Fields(logger.FieldComponent, name, logger.FieldError, err.Error()))
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	r.log.Info("Component started", logger.Fields(logger.FieldComponent, name))
	return nil
}

// StopAll stops started components newest first, giving each StopTimeout.
// Every component is asked to stop even if an earlier one fails.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if !e.started {
			continue
		}
		e.started = false
		if err := stopWithin(ctx, e.Component); err != nil {
			r.log.Error("Component stop failed", logger.Fields(logger.FieldComponent, e.Name(), logger.FieldError, err.Error()))
			errs = append(errs, fmt.Errorf("failed to stop %s: %w", e.Name(), err))
			continue
		}
		r.log.Info("Component stopped", logger.Fields(logger.FieldComponent, e.Name()))
	}
	return errors.Join(errs...)
}

func stopWithin(ctx context.Context, c Component) error {
	ctx, cancel := context.WithTimeout(ctx, StopTimeout)
	defer cancel()
	return c.Stop(ctx)
}

// HealthAll probes every registered component concurrently and returns the
// results in registration order.
func (r *Registry) HealthAll(ctx context.Context) []Health {
	r.mu.RLock()
	entries := append([]*entry(nil), r.entries...)
	r.mu.RUnlock()

	out := make([]Health, len(entries))
	var wg sync.WaitGroup
	for i, e := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = e.Health(ctx)
		}()
	}
	wg.Wait()
	return out
}

// Overall folds health results: any unhealthy wins, then any degraded.
func Overall(hs []Health) HealthStatus {
	status := StatusHealthy
	for _, h := range hs {
		switch h.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// Get returns the component registered under name, or nil.
func (r *Registry) Get(name string) Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byName[name]; ok {
		return e.Component
	}
	return nil
}
