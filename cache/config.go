package cache

import (
	"errors"
	"time"
)

// Config tunes the cache.
type Config struct {
	// SafetyMargin is how long before its expiry a value stops being served.
	SafetyMargin time.Duration `mapstructure:"safety_margin"`
	// OpTimeout bounds each backend call.
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.SafetyMargin == 0 {
		c.SafetyMargin = 60 * time.Second
	}
	if c.OpTimeout == 0 {
		c.OpTimeout = 250 * time.Millisecond
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.SafetyMargin < 0 {
		return errors.New("cache.safety_margin must be non-negative")
	}
	if c.OpTimeout <= 0 {
		return errors.New("cache.op_timeout must be positive")
	}
	return nil
}
