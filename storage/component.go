package storage

import (
	"context"
	"fmt"

	"github.com/kbukum/playurl/component"
	"github.com/kbukum/playurl/logger"
)

// healthProbeKey is looked up by Health; it need not exist.
const healthProbeKey = ".health"

// Component wraps Storage and implements component.Component for lifecycle management.
type Component struct {
	storage     Storage
	cfg         Config
	providerCfg any
	deps        Deps
	log         *logger.Logger
}

// NewComponent creates a storage component for use with the component registry.
func NewComponent(cfg Config, providerCfg any, deps Deps) *Component {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	return &Component{
		cfg:         cfg,
		providerCfg: providerCfg,
		deps:        deps,
		log:         deps.Log.WithComponent("storage"),
	}
}

// Storage returns the underlying Storage, or nil if not started.
func (c *Component) Storage() Storage {
	return c.storage
}

var _ component.Component = (*Component)(nil)

// Name returns the component name.
func (c *Component) Name() string { return "storage" }

// Start initializes the storage backend.
func (c *Component) Start(_ context.Context) error {
	if !c.cfg.Enabled {
		return fmt.Errorf("storage start: storage is disabled but required for signing")
	}
	s, err := New(c.cfg, c.providerCfg, c.deps)
	if err != nil {
		return fmt.Errorf("storage start: %w", err)
	}
	c.storage = s
	return nil
}

// Stop releases the storage backend.
func (c *Component) Stop(_ context.Context) error {
	c.storage = nil
	return nil
}

// Health probes the backend with an existence check.
func (c *Component) Health(ctx context.Context) component.Health {
	if c.storage == nil {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: "storage not initialized",
		}
	}

	if _, err := c.storage.Exists(ctx, healthProbeKey); err != nil {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: fmt.Sprintf("health probe failed: %v", err),
		}
	}

	return component.Health{
		Name:    c.Name(),
		Status:  component.StatusHealthy,
		Details: map[string]interface{}{"provider": c.cfg.Provider},
	}
}
