package kafka

import (
	"errors"
	"fmt"
	"time"

	"github.com/kbukum/playurl/security"
)

// Config holds the broker connection shared by the deletion-notice
// producer and the lifecycle consumer group.
type Config struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`

	// GroupID is shared by every instance so each notice is handled once.
	GroupID  string `mapstructure:"group_id"`
	ClientID string `mapstructure:"client_id"`

	TLS  security.TLSConfig `mapstructure:"tls"`
	SASL SASLConfig         `mapstructure:"sasl"`

	Producer ProducerConfig `mapstructure:"producer"`
	Consumer ConsumerConfig `mapstructure:"consumer"`

	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	MetadataTTL time.Duration `mapstructure:"metadata_ttl"`
}

// SASLConfig authenticates against the brokers. An empty Mechanism
// disables SASL.
type SASLConfig struct {
	// Mechanism is PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512.
	Mechanism string `mapstructure:"mechanism"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// Enabled reports whether a mechanism is configured.
func (s SASLConfig) Enabled() bool { return s.Mechanism != "" }

// ProducerConfig tunes the deletion-notice writer.
type ProducerConfig struct {
	// Compression is none, gzip, snappy, lz4 or zstd.
	Compression  string        `mapstructure:"compression"`
	Retries      int           `mapstructure:"retries"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// RequiredAcks is -1 for all in-sync replicas.
	RequiredAcks int `mapstructure:"required_acks"`
}

// ConsumerConfig tunes group membership for the lifecycle reader.
type ConsumerConfig struct {
	SessionTimeout    time.Duration `mapstructure:"session_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	RebalanceTimeout  time.Duration `mapstructure:"rebalance_timeout"`
}

func orDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if len(c.Brokers) == 0 {
		c.Brokers = []string{"localhost:9092"}
	}
	if c.GroupID == "" {
		c.GroupID = "playurl"
	}
	if c.ClientID == "" {
		c.ClientID = "playurl"
	}

	p := &c.Producer
	if p.Compression == "" {
		p.Compression = "snappy"
	}
	if p.Retries <= 0 {
		p.Retries = 3
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 100
	}
	if p.RequiredAcks == 0 {
		p.RequiredAcks = -1
	}
	orDuration(&p.BatchTimeout, time.Second)
	orDuration(&p.WriteTimeout, 10*time.Second)

	orDuration(&c.Consumer.SessionTimeout, 30*time.Second)
	orDuration(&c.Consumer.HeartbeatInterval, 3*time.Second)
	orDuration(&c.Consumer.RebalanceTimeout, 30*time.Second)

	orDuration(&c.DialTimeout, 10*time.Second)
	orDuration(&c.IdleTimeout, 30*time.Second)
	orDuration(&c.MetadataTTL, 6*time.Second)
}

// Validate reports every problem at once. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	if len(c.Brokers) == 0 {
		errs = append(errs, errors.New("brokers: at least one is required"))
	}
	if err := c.TLS.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.SASL.Enabled() {
		if _, ok := saslMechanisms[c.SASL.Mechanism]; !ok {
			errs = append(errs, fmt.Errorf("sasl.mechanism: %q is not supported", c.SASL.Mechanism))
		}
		if c.SASL.Username == "" {
			errs = append(errs, errors.New("sasl.username: required when sasl is on"))
		}
	}
	if _, ok := compressionCodecs[c.Producer.Compression]; !ok {
		errs = append(errs, fmt.Errorf("producer.compression: %q is not supported", c.Producer.Compression))
	}
	if c.Producer.Retries <= 0 {
		errs = append(errs, errors.New("producer.retries: must be positive"))
	}
	if c.Producer.BatchSize <= 0 {
		errs = append(errs, errors.New("producer.batch_size: must be positive"))
	}
	if c.Consumer.HeartbeatInterval >= c.Consumer.SessionTimeout {
		errs = append(errs, errors.New("consumer.heartbeat_interval: must be shorter than session_timeout"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("kafka: invalid config: %w", errors.Join(errs...))
	}
	return nil
}
