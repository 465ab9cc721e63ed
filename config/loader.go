package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix environment overrides must carry.
const EnvPrefix = "PLAYURL_"

// LoaderOption customizes Load.
type LoaderOption func(*loader)

type loader struct {
	configFile string
	envFile    string
	exists     func(path string) bool
}

// WithConfigFile skips the search and reads path. A missing file is not an
// error; defaults and the environment still apply.
func WithConfigFile(path string) LoaderOption {
	return func(l *loader) { l.configFile = path }
}

// WithEnvFile skips the search and loads path into the environment.
func WithEnvFile(path string) LoaderOption {
	return func(l *loader) { l.envFile = path }
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist) && err == nil
}

// configCandidates and envCandidates are searched in order when no explicit
// path is given.
func configCandidates(service string) []string {
	return []string{
		"./cmd/" + service + "/config.yml",
		"../cmd/" + service + "/config.yml",
		"./config/config.yml",
		"./config.yml",
	}
}

func envCandidates(service string) []string {
	return []string{"./cmd/" + service + "/.env", ".env." + service, ".env"}
}

// resolve fills in any path not set explicitly with the first candidate that
// exists.
func (l *loader) resolve(service string) {
	pick := func(candidates []string) string {
		for _, p := range candidates {
			if l.exists(p) {
				return p
			}
		}
		return ""
	}
	if l.configFile == "" {
		l.configFile = pick(configCandidates(service))
	}
	if l.envFile == "" {
		l.envFile = pick(envCandidates(service))
	}
}

// Load fills cfg from, in rising precedence: the YAML config file, the .env
// file and PLAYURL_* variables. When cfg implements Defaulter and Validator
// they run after unmarshalling.
func Load(serviceName string, cfg interface{}, opts ...LoaderOption) error {
	l := &loader{exists: fileExists}
	for _, opt := range opts {
		opt(l)
	}
	l.resolve(serviceName)

	v := viper.New()
	if l.configFile != "" && l.exists(l.configFile) {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", l.configFile, err)
		}
	}
	if l.envFile != "" && l.exists(l.envFile) {
		if err := godotenv.Load(l.envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", l.envFile, err)
		}
	}
	bindEnv(v, os.Environ())

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unmarshal %s config: %w", serviceName, err)
	}
	if d, ok := cfg.(Defaulter); ok {
		d.ApplyDefaults()
	}
	if val, ok := cfg.(Validator); ok {
		return val.Validate()
	}
	return nil
}

// bindEnv copies PLAYURL_* variables into v under every nesting of their key
// that exists in the loaded config, or under all variants when none does.
func bindEnv(v *viper.Viper, environ []string) {
	for _, env := range environ {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		variants := keyVariants(strings.TrimPrefix(key, EnvPrefix))
		matched := false
		for _, variant := range variants {
			if v.IsSet(variant) {
				v.Set(variant, value)
				matched = true
			}
		}
		if !matched {
			for _, variant := range variants {
				v.Set(variant, value)
			}
		}
	}
}

// keyVariants lists the dotted keys an underscore separated name could
// refer to, for instance SIGNEDURL_DEFAULT_TTL yields signedurl.default_ttl,
// signedurl.default.ttl and signedurl_default.ttl.
func keyVariants(envKey string) []string {
	parts := strings.Split(strings.ToLower(envKey), "_")
	if len(parts) == 1 {
		return parts
	}
	var out []string
	seen := map[string]bool{}
	// each gap between parts is either a '.' or a '_'
	n := len(parts) - 1
	for mask := 0; mask < 1<<n; mask++ {
		var b strings.Builder
		b.WriteString(parts[0])
		for i := 1; i < len(parts); i++ {
			if mask&(1<<(i-1)) != 0 {
				b.WriteByte('.')
			} else {
				b.WriteByte('_')
			}
			b.WriteString(parts[i])
		}
		if s := b.String(); !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
