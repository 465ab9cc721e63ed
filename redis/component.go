package redis

import (
	"context"
	"fmt"

	"github.com/kbukum/playurl/component"
	"github.com/kbukum/playurl/logger"
)

// Component owns the Client across the application lifecycle.
type Component struct {
	cfg    Config
	log    *logger.Logger
	client *Client
}

var _ component.Component = (*Component)(nil)

func NewComponent(cfg Config, log *logger.Logger) *Component {
	return &Component{cfg: cfg, log: log.WithComponent("redis")}
}

// Client is nil until Start has run.
func (c *Component) Client() *Client { return c.client }

func (c *Component) Name() string { return "redis" }

// Start only fails on bad configuration. An unreachable server leaves the
// component degraded; go-redis reconnects lazily and the cache falls back to
// direct generation meanwhile.
func (c *Component) Start(ctx context.Context) error {
	client, err := New(c.cfg, c.log)
	if err != nil {
		return fmt.Errorf("redis start: %w", err)
	}
	c.client = client

	if err := client.Ping(ctx); err != nil {
		c.log.WithError(err).Warn("Redis unreachable at startup, cache runs degraded")
		return nil
	}
	c.log.Info("Redis component started")
	return nil
}

func (c *Component) Stop(context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Health is degraded, never unhealthy, once started: signing still works
// without the cache.
func (c *Component) Health(ctx context.Context) component.Health {
	h := component.Health{Name: c.Name(), Status: component.StatusHealthy}
	if c.client == nil {
		h.Status, h.Message = component.StatusUnhealthy, "redis not initialized"
		return h
	}
	if err := c.client.Ping(ctx); err != nil {
		h.Status, h.Message = component.StatusDegraded, fmt.Sprintf("ping failed: %v", err)
		return h
	}
	h.Details = map[string]interface{}{"addr": c.cfg.Addr, "db": c.cfg.DB}
	return h
}
