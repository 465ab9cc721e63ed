package signedurl

import (
	"errors"
	"fmt"
	"time"

	"github.com/kbukum/playurl/cache"
)

// Config tunes the signed URL service.
type Config struct {
	// Scope prefixes cache keys: scope:ownerID:resourceID.
	Scope string `mapstructure:"scope"`

	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	MinTTL     time.Duration `mapstructure:"min_ttl"`
	MaxTTL     time.Duration `mapstructure:"max_ttl"`

	// CacheTTLRatio is the share of the URL lifetime a record stays cached.
	CacheTTLRatio float64 `mapstructure:"cache_ttl_ratio"`

	// HideForbidden reports Forbidden as NotFound.
	HideForbidden bool `mapstructure:"hide_forbidden"`

	// GeneratorTimeout bounds each signer attempt.
	GeneratorTimeout time.Duration `mapstructure:"generator_timeout"`
	// GeneratorAttempts is the total number of signer attempts per call.
	GeneratorAttempts int           `mapstructure:"generator_attempts"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`

	// BreakerFailures consecutive failures open the breaker for BreakerCooldown.
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`

	// MaxConcurrent caps simultaneous signer calls per process.
	MaxConcurrent int `mapstructure:"max_concurrent"`

	Cache cache.Config `mapstructure:"cache"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Scope == "" {
		c.Scope = "track"
	}
	if c.DefaultTTL == 0 {
		c.DefaultTTL = time.Hour
	}
	if c.MinTTL == 0 {
		c.MinTTL = time.Minute
	}
	if c.MaxTTL == 0 {
		c.MaxTTL = 24 * time.Hour
	}
	if c.CacheTTLRatio == 0 {
		c.CacheTTLRatio = 0.8
	}
	if c.GeneratorTimeout == 0 {
		c.GeneratorTimeout = 2 * time.Second
	}
	if c.GeneratorAttempts == 0 {
		c.GeneratorAttempts = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 50 * time.Millisecond
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerCooldown == 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 64
	}
	c.Cache.ApplyDefaults()
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.MinTTL <= 0 || c.MaxTTL < c.MinTTL {
		return fmt.Errorf("signedurl: need 0 < min_ttl <= max_ttl (got %v, %v)", c.MinTTL, c.MaxTTL)
	}
	if c.DefaultTTL < c.MinTTL || c.DefaultTTL > c.MaxTTL {
		return fmt.Errorf("signedurl: default_ttl %v outside [%v, %v]", c.DefaultTTL, c.MinTTL, c.MaxTTL)
	}
	if c.CacheTTLRatio <= 0 || c.CacheTTLRatio >= 1 {
		return errors.New("signedurl: cache_ttl_ratio must be in (0, 1)")
	}
	if c.GeneratorTimeout <= 0 || c.GeneratorAttempts < 1 || c.BreakerFailures < 1 || c.MaxConcurrent < 1 {
		return errors.New("signedurl: generator limits must be positive")
	}
	return c.Cache.Validate()
}
