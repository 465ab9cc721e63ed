package lifecycle

import (
	"errors"
	"fmt"
	"time"
)

// Config tunes deletion processing and the orphan scan.
type Config struct {
	Enabled bool `mapstructure:"enabled"`

	// GracePeriod is how long a deleted track's object is kept.
	GracePeriod time.Duration `mapstructure:"grace_period"`
	// OrphanGrace protects unreferenced objects younger than this.
	OrphanGrace time.Duration `mapstructure:"orphan_grace"`

	ScanInterval    time.Duration `mapstructure:"scan_interval"`
	ScanPrefix      string        `mapstructure:"scan_prefix"`
	ScanConcurrency int           `mapstructure:"scan_concurrency"`
	// DeleteRate caps orphan deletes per second.
	DeleteRate  float64 `mapstructure:"delete_rate"`
	DeleteBurst int     `mapstructure:"delete_burst"`

	// DeleteAttempts is the total number of tries before dead-lettering.
	DeleteAttempts int           `mapstructure:"delete_attempts"`
	DeleteBackoff  time.Duration `mapstructure:"delete_backoff"`

	// PollInterval is how often the delay queue is checked for due notices.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	ClaimBatch   int64         `mapstructure:"claim_batch"`
	// RetryDelay reschedules a notice whose handling failed transiently.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// MaxRedeliveries dead-letters a notice after this many failed handlings.
	MaxRedeliveries int `mapstructure:"max_redeliveries"`

	NoticeTopic     string `mapstructure:"notice_topic"`
	DeadLetterTopic string `mapstructure:"dead_letter_topic"`
	EventTopic      string `mapstructure:"event_topic"`
	QueueKey        string `mapstructure:"queue_key"`
	// Source is stamped on published events.
	Source string `mapstructure:"source"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.GracePeriod == 0 {
		c.GracePeriod = 24 * time.Hour
	}
	if c.OrphanGrace == 0 {
		c.OrphanGrace = 7 * 24 * time.Hour
	}
	if c.ScanInterval == 0 {
		c.ScanInterval = time.Hour
	}
	if c.ScanConcurrency == 0 {
		c.ScanConcurrency = 8
	}
	if c.DeleteRate == 0 {
		c.DeleteRate = 50
	}
	if c.DeleteBurst == 0 {
		c.DeleteBurst = 10
	}
	if c.DeleteAttempts == 0 {
		c.DeleteAttempts = 5
	}
	if c.DeleteBackoff == 0 {
		c.DeleteBackoff = 200 * time.Millisecond
	}
	if c.PollInterval == 0 {
		c.PollInterval = time.Second
	}
	if c.ClaimBatch == 0 {
		c.ClaimBatch = 100
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Minute
	}
	if c.MaxRedeliveries == 0 {
		c.MaxRedeliveries = 10
	}
	if c.NoticeTopic == "" {
		c.NoticeTopic = "tracks.deleted"
	}
	if c.DeadLetterTopic == "" {
		c.DeadLetterTopic = "tracks.deleted.dlq"
	}
	if c.EventTopic == "" {
		c.EventTopic = "tracks.purged"
	}
	if c.QueueKey == "" {
		c.QueueKey = "lifecycle:deferred"
	}
	if c.Source == "" {
		c.Source = "playurl"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.GracePeriod < 0 || c.OrphanGrace <= 0 {
		return fmt.Errorf("lifecycle: invalid grace windows (grace_period=%v, orphan_grace=%v)", c.GracePeriod, c.OrphanGrace)
	}
	if c.ScanInterval <= 0 || c.PollInterval <= 0 || c.RetryDelay <= 0 {
		return errors.New("lifecycle: intervals must be positive")
	}
	if c.ScanConcurrency < 1 || c.DeleteAttempts < 1 || c.ClaimBatch < 1 || c.MaxRedeliveries < 1 || c.DeleteRate <= 0 {
		return errors.New("lifecycle: concurrency and retry limits must be positive")
	}
	return nil
}
