package main

import (
	"fmt"

	"github.com/kbukum/playurl/auth"
	"github.com/kbukum/playurl/config"
	"github.com/kbukum/playurl/database"
	"github.com/kbukum/playurl/encryption"
	"github.com/kbukum/playurl/kafka"
	"github.com/kbukum/playurl/lifecycle"
	"github.com/kbukum/playurl/observability"
	"github.com/kbukum/playurl/redis"
	"github.com/kbukum/playurl/server"
	"github.com/kbukum/playurl/signedurl"
	"github.com/kbukum/playurl/storage"
	"github.com/kbukum/playurl/storage/local"
	"github.com/kbukum/playurl/storage/s3"
)

const (
	serviceName = "playurl"
	// binaryName locates cmd/<binaryName>/config.yml and .env.
	binaryName = "playurld"
)

// StorageConfig selects the object store and carries every provider's settings.
type StorageConfig struct {
	storage.Config `mapstructure:",squash"`

	Local local.Config `mapstructure:"local"`
	S3    s3.Config    `mapstructure:"s3"`
}

// ProviderConfig returns the settings of the selected provider.
func (c *StorageConfig) ProviderConfig() any {
	if c.Provider == storage.ProviderS3 {
		return &c.S3
	}
	return &c.Local
}

// Config aggregates every section playurld reads.
type Config struct {
	config.ServiceConfig `mapstructure:",squash"`

	Redis         redis.Config         `mapstructure:"redis"`
	Storage       StorageConfig        `mapstructure:"storage"`
	Database      database.Config      `mapstructure:"database"`
	Kafka         kafka.Config         `mapstructure:"kafka"`
	Server        server.Config        `mapstructure:"server"`
	Auth          auth.Config          `mapstructure:"auth"`
	SignedURL     signedurl.Config     `mapstructure:"signedurl"`
	Lifecycle     lifecycle.Config     `mapstructure:"lifecycle"`
	Encryption    encryption.Config    `mapstructure:"encryption"`
	Observability observability.Config `mapstructure:"observability"`
}

// ApplyDefaults fills zero values in every section.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = serviceName
	}
	c.ServiceConfig.ApplyDefaults()
	c.Redis.ApplyDefaults()
	c.Storage.ApplyDefaults()
	c.Storage.Local.ApplyDefaults()
	c.Storage.S3.ApplyDefaults()
	c.Database.ApplyDefaults()
	c.Kafka.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Auth.ApplyDefaults()
	c.SignedURL.ApplyDefaults()
	c.Lifecycle.ApplyDefaults()
	c.Encryption.ApplyDefaults()
	c.Observability.ApplyDefaults()
}

type sectionCheck struct {
	name string
	fn   func() error
}

// Validate checks every section and names the failing one. Redis, the
// database and storage are required; Kafka is optional.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if !c.Redis.Enabled {
		return fmt.Errorf("redis: must be enabled")
	}
	if !c.Database.Enabled {
		return fmt.Errorf("database: must be enabled")
	}
	if !c.Storage.Enabled {
		return fmt.Errorf("storage: must be enabled")
	}

	checks := []sectionCheck{
		{"redis", c.Redis.Validate},
		{"storage", c.Storage.Validate},
		{"database", c.Database.Validate},
		{"server", c.Server.Validate},
		{"auth", c.Auth.Validate},
		{"signedurl", c.SignedURL.Validate},
		{"lifecycle", c.Lifecycle.Validate},
		{"encryption", c.Encryption.Validate},
		{"observability", c.Observability.Validate},
	}
	if c.Storage.Provider == storage.ProviderS3 {
		checks = append(checks, sectionCheck{"storage.s3", c.Storage.S3.Validate})
	} else {
		checks = append(checks, sectionCheck{"storage.local", c.Storage.Local.Validate})
	}
	if c.Kafka.Enabled {
		checks = append(checks, sectionCheck{"kafka", c.Kafka.Validate})
	}
	for _, chk := range checks {
		if err := chk.fn(); err != nil {
			return fmt.Errorf("%s: %w", chk.name, err)
		}
	}
	return nil
}
