package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestServiceConfigApplyDefaults(t *testing.T) {
	t.Run("empty environment defaults to development", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc"}
		cfg.ApplyDefaults()
		if cfg.Environment != "development" {
			t.Errorf("expected 'development', got %q", cfg.Environment)
		}
		if !cfg.Debug {
			t.Error("expected debug=true for development")
		}
		if cfg.Logging.Level != "info" {
			t.Errorf("expected logging defaults to be applied, got level %q", cfg.Logging.Level)
		}
	})

	t.Run("production environment keeps debug false", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc", Environment: "production"}
		cfg.ApplyDefaults()
		if cfg.Debug {
			t.Error("expected debug=false for production")
		}
	})
}

func TestServiceConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		svc     string
		wantErr string
	}{
		{"valid development", "development", "svc", ""},
		{"valid production", "production", "svc", ""},
		{"missing name", "production", "", "config.name is required"},
		{"invalid environment", "qa", "svc", "config.environment must be one of"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := ServiceConfig{Name: tc.svc, Environment: tc.env}
			cfg.Logging.ApplyDefaults()
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

type testConfig struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`
	Cache         struct {
		DefaultTTL time.Duration `mapstructure:"default_ttl"`
		Prefix     string        `mapstructure:"prefix"`
	} `mapstructure:"cache"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadWithYAML(t *testing.T) {
	path := writeConfig(t, `
name: playurld
environment: staging
cache:
  default_ttl: 45m
  prefix: track
`)

	var cfg testConfig
	if err := Load("playurld", &cfg, WithConfigFile(path)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "playurld" || cfg.Environment != "staging" {
		t.Errorf("unexpected base config %+v", cfg.ServiceConfig)
	}
	if cfg.Cache.DefaultTTL != 45*time.Minute {
		t.Errorf("expected 45m ttl, got %v", cfg.Cache.DefaultTTL)
	}
	// ApplyDefaults is promoted from ServiceConfig
	if cfg.Logging.Format != "console" {
		t.Errorf("expected defaults to run, got format %q", cfg.Logging.Format)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
name: playurld
cache:
  default_ttl: 45m
`)
	t.Setenv("PLAYURL_CACHE_DEFAULT_TTL", "10m")

	var cfg testConfig
	if err := Load("playurld", &cfg, WithConfigFile(path)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Cache.DefaultTTL != 10*time.Minute {
		t.Errorf("expected env override to 10m, got %v", cfg.Cache.DefaultTTL)
	}
}

func TestLoadValidationFailure(t *testing.T) {
	path := writeConfig(t, "environment: production\n")

	var cfg testConfig
	err := Load("playurld", &cfg, WithConfigFile(path))
	if err == nil || !strings.Contains(err.Error(), "config.name is required") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	var cfg struct {
		Name string `mapstructure:"name"`
	}
	if err := Load("nonexistent-service", &cfg, WithConfigFile("/nonexistent/path.yml")); err != nil {
		t.Fatalf("expected Load to succeed with missing file, got %v", err)
	}
}

func TestResolveSearchOrder(t *testing.T) {
	present := map[string]bool{
		"../cmd/playurld/config.yml": true,
		"./config.yml":               true,
		".env":                       true,
	}
	l := &loader{exists: func(p string) bool { return present[p] }}
	l.resolve("playurld")
	if l.configFile != "../cmd/playurld/config.yml" {
		t.Errorf("config file = %q", l.configFile)
	}
	if l.envFile != ".env" {
		t.Errorf("env file = %q", l.envFile)
	}

	explicit := &loader{configFile: "/etc/x.yml", exists: func(string) bool { return false }}
	explicit.resolve("playurld")
	if explicit.configFile != "/etc/x.yml" || explicit.envFile != "" {
		t.Errorf("explicit = %+v", explicit)
	}
}

func TestKeyVariants(t *testing.T) {
	got := keyVariants("CACHE_DEFAULT_TTL")
	want := map[string]bool{
		"cache_default_ttl": true,
		"cache.default_ttl": true,
		"cache_default.ttl": true,
		"cache.default.ttl": true,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d variants, got %v", len(want), got)
	}
	for _, v := range got {
		if !want[v] {
			t.Errorf("unexpected variant %q", v)
		}
	}
}
