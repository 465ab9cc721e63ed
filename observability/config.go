package observability

import (
	"fmt"
	"time"
)

// Config holds exporter settings shared by the tracer and meter providers.
type Config struct {
	// TracingEnabled starts the OTLP trace exporter.
	TracingEnabled bool `mapstructure:"tracing_enabled"`
	// MetricsEnabled starts the OTLP metric exporter.
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
	// Endpoint is the OTLP HTTP endpoint host:port.
	Endpoint string `mapstructure:"endpoint"`
	// Insecure disables TLS towards the collector.
	Insecure bool `mapstructure:"insecure"`
	// SampleRate is the trace sampling ratio in [0, 1].
	SampleRate float64 `mapstructure:"sample_rate"`
	// ExportInterval is the metric export interval (e.g. "15s").
	ExportInterval string `mapstructure:"export_interval"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.ExportInterval == "" {
		c.ExportInterval = "15s"
	}
}

// Validate checks the sample rate and interval.
func (c *Config) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("observability sample_rate must be within [0, 1], got %v", c.SampleRate)
	}
	if _, err := time.ParseDuration(c.ExportInterval); err != nil {
		return fmt.Errorf("invalid observability export_interval %q: %w", c.ExportInterval, err)
	}
	return nil
}

// MeterConfigFrom builds a MeterConfig for the named service.
func MeterConfigFrom(c Config, service, version, environment string) MeterConfig {
	interval, _ := time.ParseDuration(c.ExportInterval)
	return MeterConfig{
		ServiceName:    service,
		ServiceVersion: version,
		Environment:    environment,
		Endpoint:       c.Endpoint,
		Insecure:       c.Insecure,
		Interval:       interval,
	}
}

// TracerConfigFrom builds a TracerConfig for the named service.
func TracerConfigFrom(c Config, service, version, environment string) TracerConfig {
	return TracerConfig{
		ServiceName:    service,
		ServiceVersion: version,
		Environment:    environment,
		Endpoint:       c.Endpoint,
		Insecure:       c.Insecure,
		SampleRate:     c.SampleRate,
	}
}
