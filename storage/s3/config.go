package s3

import (
	"errors"
	"fmt"
	"net/url"
)

// DefaultRegion is used when no region is configured.
const DefaultRegion = "us-east-1"

// Config selects the bucket holding track media and how to reach it.
type Config struct {
	Bucket string `mapstructure:"bucket" json:"bucket"`
	Region string `mapstructure:"region" json:"region"`

	// Endpoint points at an S3-compatible service such as MinIO. Setting it
	// switches to path-style addressing.
	Endpoint       string `mapstructure:"endpoint" json:"endpoint"`
	ForcePathStyle bool   `mapstructure:"force_path_style" json:"force_path_style"`

	// Static credentials. When both are empty the default AWS chain applies
	// (env, shared config, instance role).
	AccessKey string `mapstructure:"access_key" json:"access_key"`
	SecretKey string `mapstructure:"secret_key" json:"secret_key"`

	// ResponseCacheControl is signed into every playback URL so browsers and
	// shared caches never keep media past the URL's own lifetime.
	ResponseCacheControl string `mapstructure:"response_cache_control" json:"response_cache_control"`
}

func (c *Config) ApplyDefaults() {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.ResponseCacheControl == "" {
		c.ResponseCacheControl = "private, no-transform"
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Bucket == "" {
		errs = append(errs, errors.New("bucket is required"))
	}
	if c.Region == "" {
		errs = append(errs, errors.New("region is required"))
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		errs = append(errs, errors.New("access_key and secret_key must be set together"))
	}
	if c.Endpoint != "" {
		if u, err := url.Parse(c.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("endpoint %q must be an absolute URL", c.Endpoint))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("s3: invalid config: %w", errors.Join(errs...))
	}
	return nil
}
