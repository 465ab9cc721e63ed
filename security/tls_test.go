package security_test

import (
	"crypto/tls"
	"testing"

	"github.com/kbukum/playurl/security"
	"github.com/kbukum/playurl/security/tlstest"
)

func TestBuildDisabled(t *testing.T) {
	var nilCfg *security.TLSConfig
	for name, cfg := range map[string]*security.TLSConfig{"nil": nilCfg, "zero": {}} {
		got, err := cfg.Build()
		if err != nil || got != nil {
			t.Errorf("%s: Build() = %v, %v; want nil, nil", name, got, err)
		}
		if cfg.IsEnabled() {
			t.Errorf("%s: IsEnabled() = true", name)
		}
	}
}

func TestBuild(t *testing.T) {
	certs := tlstest.GenerateTLSCerts(t)

	tests := []struct {
		name  string
		cfg   security.TLSConfig
		check func(*testing.T, *tls.Config)
	}{
		{"enabled uses system roots", security.TLSConfig{Enabled: true}, func(t *testing.T, c *tls.Config) {
			if c.RootCAs != nil || c.MinVersion != tls.VersionTLS12 {
				t.Errorf("got RootCAs=%v MinVersion=%x", c.RootCAs, c.MinVersion)
			}
		}},
		{"skip verify", security.TLSConfig{SkipVerify: true}, func(t *testing.T, c *tls.Config) {
			if !c.InsecureSkipVerify {
				t.Error("InsecureSkipVerify not set")
			}
		}},
		{"server name", security.TLSConfig{ServerName: "redis.internal"}, func(t *testing.T, c *tls.Config) {
			if c.ServerName != "redis.internal" {
				t.Errorf("ServerName = %q", c.ServerName)
			}
		}},
		{"min version", security.TLSConfig{Enabled: true, MinVersion: "1.3"}, func(t *testing.T, c *tls.Config) {
			if c.MinVersion != tls.VersionTLS13 {
				t.Errorf("MinVersion = %x", c.MinVersion)
			}
		}},
		{"custom CA", security.TLSConfig{CAFile: certs.CAFile}, func(t *testing.T, c *tls.Config) {
			if c.RootCAs == nil {
				t.Error("RootCAs not loaded")
			}
		}},
		{"mutual TLS", security.TLSConfig{CAFile: certs.CAFile, CertFile: certs.CertFile, KeyFile: certs.KeyFile}, func(t *testing.T, c *tls.Config) {
			if len(c.Certificates) != 1 || c.RootCAs == nil {
				t.Errorf("certificates = %d, RootCAs = %v", len(c.Certificates), c.RootCAs)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.cfg.IsEnabled() {
				t.Fatal("IsEnabled() = false")
			}
			got, err := tt.cfg.Build()
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			tt.check(t, got)
		})
	}
}

func TestBuildErrors(t *testing.T) {
	certs := tlstest.GenerateTLSCerts(t)
	tests := []struct {
		name string
		cfg  security.TLSConfig
	}{
		{"missing CA file", security.TLSConfig{CAFile: "/nonexistent/ca.pem"}},
		{"unparsable CA", security.TLSConfig{CAFile: tlstest.WriteInvalidPEM(t, "ca.pem")}},
		{"missing client cert", security.TLSConfig{CertFile: "/nonexistent/c.pem", KeyFile: "/nonexistent/k.pem"}},
		{"key does not match", security.TLSConfig{CertFile: certs.CertFile, KeyFile: certs.CAFile}},
		{"cert without key", security.TLSConfig{CertFile: certs.CertFile}},
		{"unknown min version", security.TLSConfig{Enabled: true, MinVersion: "1.1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.cfg.Build(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	var nilCfg *security.TLSConfig
	if err := nilCfg.Validate(); err != nil {
		t.Errorf("nil config: %v", err)
	}
	if err := (&security.TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"}).Validate(); err != nil {
		t.Errorf("paired cert and key: %v", err)
	}
	for _, cfg := range []security.TLSConfig{{CertFile: "c.pem"}, {KeyFile: "k.pem"}} {
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected %+v to fail", cfg)
		}
	}
}
