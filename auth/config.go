package auth

import (
	"fmt"

	"github.com/kbukum/playurl/auth/jwt"
)

// Config holds authentication configuration.
type Config struct {
	// Enabled controls whether bearer tokens are required. When disabled the
	// caller id is read from the X-Caller-Id header, which is only suitable
	// for local development.
	Enabled bool `mapstructure:"enabled"`

	JWT jwt.Config `mapstructure:"jwt"`
}

// ApplyDefaults sets defaults on the JWT sub-config.
func (c *Config) ApplyDefaults() {
	c.JWT.ApplyDefaults()
}

// Validate checks the JWT sub-config when authentication is enabled.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := c.JWT.Validate(); err != nil {
		return fmt.Errorf("auth.jwt: %w", err)
	}
	return nil
}

// Describe returns a one-line summary for startup logs.
func (c *Config) Describe() string {
	if !c.Enabled {
		return "disabled (X-Caller-Id header)"
	}
	if c.JWT.Issuer != "" {
		return fmt.Sprintf("JWT(%s) issuer=%s", c.JWT.Method, c.JWT.Issuer)
	}
	return fmt.Sprintf("JWT(%s)", c.JWT.Method)
}
