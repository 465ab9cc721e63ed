package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kbukum/playurl/component"
	"github.com/kbukum/playurl/logger"
	"github.com/kbukum/playurl/version"
)

var shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// App owns the lifecycle of one service. C is the config type; any pointer to
// a struct embedding config.ServiceConfig satisfies Config once it defines its
// own ApplyDefaults and Validate.
//
// Startup order: components, OnStart hooks, OnConfigure callbacks, ready
// check, OnReady hooks. Shutdown runs OnStop hooks, then stops components
// in reverse registration order.
type App[C Config] struct {
	Name       string
	Version    string
	Cfg        C
	Components *component.Registry
	Logger     *logger.Logger

	gracefulTimeout time.Duration
	onConfigure     []func(ctx context.Context, app *App[C]) error
	onStart         []Hook
	onReady         []Hook
	onStop          []Hook
}

// NewApp applies defaults, validates the config and initializes the logger.
func NewApp[C Config](cfg C, opts ...Option) (*App[C], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	base := cfg.GetServiceConfig()
	o := resolveOptions(opts)

	app := &App[C]{Name: base.Name, Version: base.Version, Cfg: cfg, gracefulTimeout: 15 * time.Second}
	if app.Version == "" {
		app.Version = version.Get().String()
	}
	if o.gracefulTimeout != nil {
		app.gracefulTimeout = *o.gracefulTimeout
	}
	app.Logger = o.logger
	if app.Logger == nil {
		logger.Init(&base.Logging, base.Name)
		app.Logger = logger.GetGlobalLogger()
	}
	app.Components = component.NewRegistry(app.Logger)
	return app, nil
}

// RegisterComponent adds c to the registry. Components start in
// registration order, so register dependencies first.
func (a *App[C]) RegisterComponent(c component.Component) error {
	return a.Components.Register(c)
}

// StartComponent registers and starts c right away. Configure callbacks use
// it for the pieces that need the business layer first: the HTTP server,
// the Kafka consumers and the lifecycle runner.
func (a *App[C]) StartComponent(ctx context.Context, c component.Component) error {
	return a.Components.StartLate(ctx, c)
}

// OnConfigure registers a callback that runs after infrastructure components
// and OnStart hooks.
func (a *App[C]) OnConfigure(fn func(ctx context.Context, app *App[C]) error) {
	a.onConfigure = append(a.onConfigure, fn)
}

// ReadyCheck fails when any component is unhealthy. Degraded components do
// not block readiness.
func (a *App[C]) ReadyCheck(ctx context.Context) error {
	var down []string
	for _, h := range a.Components.HealthAll(ctx) {
		if h.Status != component.StatusUnhealthy {
			continue
		}
		if h.Message != "" {
			down = append(down, h.Name+"("+h.Message+")")
		} else {
			down = append(down, h.Name)
		}
	}
	if len(down) > 0 {
		return fmt.Errorf("unhealthy components: [%s]", strings.Join(down, " "))
	}
	return nil
}

// Run starts the service and blocks until a shutdown signal or ctx ends,
// then shuts down.
func (a *App[C]) Run(ctx context.Context) error {
	if err := a.startup(ctx); err != nil {
		return err
	}
	a.Logger.Info("Application ready, waiting for shutdown signal")
	a.WaitForSignal(ctx)
	return a.stop()
}

// RunTask runs a finite task between startup and shutdown. The task context
// ends on SIGINT or SIGTERM. A task error wins over a shutdown error.
func (a *App[C]) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	if err := a.startup(ctx); err != nil {
		return err
	}
	taskCtx, cancel := signal.NotifyContext(ctx, shutdownSignals...)
	taskErr := task(taskCtx)
	if taskCtx.Err() != nil && ctx.Err() == nil {
		a.Logger.Info("Task interrupted by signal")
	}
	cancel()

	if err := a.stop(); err != nil && taskErr == nil {
		return err
	}
	return taskErr
}

// WaitForSignal blocks until SIGINT, SIGTERM or ctx cancellation and
// returns the signal, or nil when ctx ended the wait.
func (a *App[C]) WaitForSignal(ctx context.Context) os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals...)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.Logger.Info("Received shutdown signal", logger.Fields("signal", sig.String()))
		return sig
	case <-ctx.Done():
		a.Logger.Info("Context canceled, shutting down")
		return nil
	}
}

func (a *App[C]) startup(ctx context.Context) error {
	began := time.Now()
	a.Logger.Info("Starting application", logger.Fields("name", a.Name, "version", a.Version))

	if err := a.Components.StartAll(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	steps := []struct {
		label string
		run   func(context.Context) error
	}{
		{"onStart hook failed", func(ctx context.Context) error { return runHooks(ctx, a.onStart) }},
		{"configuration failed", a.configure},
		{"onReady hook failed", func(ctx context.Context) error {
			if err := a.ReadyCheck(ctx); err != nil {
				a.Logger.Warn("Ready check reported issues", logger.Fields(logger.FieldError, err.Error()))
			}
			return runHooks(ctx, a.onReady)
		}},
	}
	for _, s := range steps {
		if err := s.run(ctx); err != nil {
			a.releaseAfterFailedStartup()
			return fmt.Errorf("%s: %w", s.label, err)
		}
	}

	a.logStartup(ctx, time.Since(began))
	return nil
}

func (a *App[C]) configure(ctx context.Context) error {
	for _, fn := range a.onConfigure {
		if err := fn(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// releaseAfterFailedStartup stops whatever already started so a failed
// startup leaks no connections or goroutines.
func (a *App[C]) releaseAfterFailedStartup() {
	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()
	if err := a.Components.StopAll(ctx); err != nil {
		a.Logger.Error("Stopping components after failed startup", logger.Fields(logger.FieldError, err.Error()))
	}
}

func (a *App[C]) logStartup(ctx context.Context, took time.Duration) {
	hs := a.Components.HealthAll(ctx)
	for _, h := range hs {
		fields := logger.Fields(logger.FieldComponent, h.Name, "status", string(h.Status))
		if h.Message != "" {
			fields["message"] = h.Message
		}
		a.Logger.Info("Component health", fields)
	}
	a.Logger.Info("Application started", logger.Fields(
		"components", len(hs),
		"status", string(component.Overall(hs)),
		logger.FieldDuration, took.Milliseconds(),
	))
}

// stop runs every OnStop hook, then stops the components, all within the
// graceful timeout. Hook errors are reported ahead of component errors.
func (a *App[C]) stop() error {
	a.Logger.Info("Shutting down application", logger.Fields("timeout", a.gracefulTimeout.String()))
	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	var errs []error
	for i, h := range a.onStop {
		if err := h(ctx); err != nil {
			a.Logger.Error("OnStop hook error", logger.Fields(logger.FieldError, err.Error()))
			errs = append(errs, fmt.Errorf("stop hook %d: %w", i, err))
		}
	}
	if err := a.Components.StopAll(ctx); err != nil {
		a.Logger.Error("Shutdown completed with errors", logger.Fields(logger.FieldError, err.Error()))
		errs = append(errs, err)
	}
	a.Logger.Info("Application shutdown complete")
	return errors.Join(errs...)
}
