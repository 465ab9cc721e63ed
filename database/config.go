package database

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// DriverSQLite is the bundled driver name.
const DriverSQLite = "sqlite"

var logLevels = []string{"silent", "error", "warn", "info"}

// Config is the track record store section.
type Config struct {
	Enabled bool `mapstructure:"enabled"`
	// Driver selects the dialector. Only "sqlite" is bundled.
	Driver string `mapstructure:"driver"`
	// DSN is the driver connection string, e.g. "file:tracks.db?_busy_timeout=5000".
	DSN string `mapstructure:"dsn"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`

	// ConnectAttempts bounds the startup connect loop.
	ConnectAttempts int `mapstructure:"connect_attempts"`
	// AutoMigrate applies the embedded schema migrations on startup.
	AutoMigrate bool `mapstructure:"auto_migrate"`

	// SlowQueryThreshold promotes slower statements to a warning.
	SlowQueryThreshold time.Duration `mapstructure:"slow_query_threshold"`
	// LogLevel is the gorm level: silent, error, warn or info.
	LogLevel string `mapstructure:"log_level"`
}

// ApplyDefaults fills zero-valued fields and clamps the idle pool to the
// open pool.
func (c *Config) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	c.MaxIdleConns = min(c.MaxIdleConns, c.MaxOpenConns)
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = 5
	}
	if c.SlowQueryThreshold <= 0 {
		c.SlowQueryThreshold = 200 * time.Millisecond
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
}

// Validate reports every problem at once. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	if c.Driver != DriverSQLite {
		errs = append(errs, fmt.Errorf("driver: %q is not bundled", c.Driver))
	}
	if c.DSN == "" {
		errs = append(errs, errors.New("dsn: required"))
	}
	if !slices.Contains(logLevels, c.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level: must be one of %v", logLevels))
	}
	if len(errs) > 0 {
		return fmt.Errorf("database: invalid config: %w", errors.Join(errs...))
	}
	return nil
}
