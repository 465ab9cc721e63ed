package kafka

import (
	"crypto/tls"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

var saslMechanisms = map[string]func(SASLConfig) (sasl.Mechanism, error){
	"PLAIN": func(s SASLConfig) (sasl.Mechanism, error) {
		return plain.Mechanism{Username: s.Username, Password: s.Password}, nil
	},
	"SCRAM-SHA-256": func(s SASLConfig) (sasl.Mechanism, error) {
		return scram.Mechanism(scram.SHA256, s.Username, s.Password)
	},
	"SCRAM-SHA-512": func(s SASLConfig) (sasl.Mechanism, error) {
		return scram.Mechanism(scram.SHA512, s.Username, s.Password)
	},
}

var compressionCodecs = map[string]kafka.Compression{
	"none":   0,
	"gzip":   kafka.Gzip,
	"snappy": kafka.Snappy,
	"lz4":    kafka.Lz4,
	"zstd":   kafka.Zstd,
}

// Compression returns the producer codec; unknown names fall back to snappy.
func (c *Config) Compression() kafka.Compression {
	if codec, ok := compressionCodecs[c.Producer.Compression]; ok {
		return codec
	}
	return kafka.Snappy
}

// auth resolves the TLS and SASL settings common to readers and writers.
func (c *Config) auth() (*tls.Config, sasl.Mechanism, error) {
	tc, err := c.TLS.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("kafka tls: %w", err)
	}
	if !c.SASL.Enabled() {
		return tc, nil, nil
	}
	build, ok := saslMechanisms[c.SASL.Mechanism]
	if !ok {
		return nil, nil, fmt.Errorf("kafka sasl: %q is not supported", c.SASL.Mechanism)
	}
	mech, err := build(c.SASL)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka sasl: %w", err)
	}
	return tc, mech, nil
}

// NewTransport returns the writer transport for cfg.
func NewTransport(cfg *Config) (*kafka.Transport, error) {
	tc, mech, err := cfg.auth()
	if err != nil {
		return nil, err
	}
	return &kafka.Transport{
		ClientID:    cfg.ClientID,
		IdleTimeout: cfg.IdleTimeout,
		MetadataTTL: cfg.MetadataTTL,
		TLS:         tc,
		SASL:        mech,
	}, nil
}

// NewDialer returns the reader dialer for cfg.
func NewDialer(cfg *Config) (*kafka.Dialer, error) {
	tc, mech, err := cfg.auth()
	if err != nil {
		return nil, err
	}
	return &kafka.Dialer{
		ClientID:      cfg.ClientID,
		Timeout:       cfg.DialTimeout,
		DualStack:     true,
		TLS:           tc,
		SASLMechanism: mech,
	}, nil
}
