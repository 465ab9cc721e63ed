package local

import (
	"fmt"
	"strings"
)

// DefaultBasePath is the default root directory for local storage.
const DefaultBasePath = "/tmp/playurl-media"

// Config holds local filesystem storage configuration.
type Config struct {
	// BasePath is the root directory for local storage.
	BasePath string `mapstructure:"base_path" json:"base_path"`

	// BaseURL is the public prefix signed URLs are built on, for example
	// http://localhost:8080/media.
	BaseURL string `mapstructure:"base_url" json:"base_url"`

	// SigningKey is the HMAC secret for signed URLs.
	SigningKey string `mapstructure:"signing_key" json:"-"`
}

// ApplyDefaults fills in zero-valued fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.BasePath == "" {
		c.BasePath = DefaultBasePath
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// Validate checks that the local configuration is valid.
func (c *Config) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("local: base_path is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("local: base_url is required")
	}
	if len(c.SigningKey) < 16 {
		return fmt.Errorf("local: signing_key must be at least 16 bytes")
	}
	return nil
}
