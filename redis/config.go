package redis

import (
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/playurl/security"
)

// Config describes the cache connection. Timeouts decode from strings such
// as "200ms".
type Config struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	PoolSize     int `mapstructure:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns"`

	// MaxRetries is per command. 0 means 2, -1 disables retries.
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`

	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// PoolTimeout bounds the wait for a pooled connection.
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`

	TLS security.TLSConfig `mapstructure:"tls"`
}

// ApplyDefaults tunes for a latency-sensitive cache: short socket timeouts
// and a couple of quick retries. Signing falls back to the generator when
// Redis is slow, so failing fast beats waiting.
func (c *Config) ApplyDefaults() {
	if c.PoolSize <= 0 {
		c.PoolSize = 20
	}
	if c.MinIdleConns <= 0 {
		c.MinIdleConns = 2
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	defaults := []struct {
		field *time.Duration
		value time.Duration
	}{
		{&c.MinRetryBackoff, 8 * time.Millisecond},
		{&c.MaxRetryBackoff, 128 * time.Millisecond},
		{&c.DialTimeout, time.Second},
		{&c.ReadTimeout, 200 * time.Millisecond},
		{&c.WriteTimeout, 200 * time.Millisecond},
		{&c.PoolTimeout, 500 * time.Millisecond},
	}
	for _, d := range defaults {
		if *d.field == 0 {
			*d.field = d.value
		}
	}
}

// Validate is a no-op for a disabled cache.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.PoolSize <= 0 {
		errs = append(errs, errors.New("pool_size must be > 0"))
	}
	if c.MaxRetryBackoff < c.MinRetryBackoff {
		errs = append(errs, fmt.Errorf("max_retry_backoff %v is below min_retry_backoff %v", c.MaxRetryBackoff, c.MinRetryBackoff))
	}
	for name, d := range map[string]time.Duration{
		"dial_timeout":  c.DialTimeout,
		"read_timeout":  c.ReadTimeout,
		"write_timeout": c.WriteTimeout,
		"pool_timeout":  c.PoolTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if err := c.TLS.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("redis: invalid config: %w", err)
	}
	return nil
}

// options maps the config onto go-redis. Per-call context deadlines apply to
// the socket as well.
func (c *Config) options() (*goredis.Options, error) {
	tlsCfg, err := c.TLS.Build()
	if err != nil {
		return nil, fmt.Errorf("redis config: %w", err)
	}
	return &goredis.Options{
		Addr:                  c.Addr,
		Password:              c.Password,
		DB:                    c.DB,
		PoolSize:              c.PoolSize,
		MinIdleConns:          c.MinIdleConns,
		MaxRetries:            c.MaxRetries,
		MinRetryBackoff:       c.MinRetryBackoff,
		MaxRetryBackoff:       c.MaxRetryBackoff,
		DialTimeout:           c.DialTimeout,
		ReadTimeout:           c.ReadTimeout,
		WriteTimeout:          c.WriteTimeout,
		PoolTimeout:           c.PoolTimeout,
		TLSConfig:             tlsCfg,
		ContextTimeoutEnabled: true,
	}, nil
}
