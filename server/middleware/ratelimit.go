package middleware

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/playurl/clock"
	apperrors "github.com/kbukum/playurl/errors"
	"github.com/kbukum/playurl/resilience"
)

// RateLimitConfig configures per-caller token buckets.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// RequestsPerSecond is the sustained rate per key.
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	// Burst is the bucket size per key.
	Burst int `yaml:"burst" mapstructure:"burst"`
	// IdleTTL evicts buckets unused for this long.
	IdleTTL time.Duration `yaml:"idle_ttl" mapstructure:"idle_ttl"`
}

// ApplyDefaults sets default values for unset fields.
func (c *RateLimitConfig) ApplyDefaults() {
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 20
	}
	if c.Burst == 0 {
		c.Burst = 40
	}
	if c.IdleTTL == 0 {
		c.IdleTTL = 10 * time.Minute
	}
}

// Validate checks the configuration for invalid values.
func (c *RateLimitConfig) Validate() error {
	if c.RequestsPerSecond < 0 || c.Burst < 0 || c.IdleTTL < 0 {
		return errors.New("rate limit values must be non-negative")
	}
	return nil
}

// KeyFunc extracts the rate-limit key from a request.
type KeyFunc func(*gin.Context) string

// CallerKey keys on the authenticated caller, falling back to client IP.
func CallerKey(c *gin.Context) string {
	if id := CallerID(c); id != "" {
		return "caller:" + id
	}
	return "ip:" + c.ClientIP()
}

// RateLimit answers 429 once a key exhausts its bucket. Install it after
// Auth so CallerKey sees the caller id.
func RateLimit(cfg RateLimitConfig, key KeyFunc, clk clock.Clock) gin.HandlerFunc {
	cfg.ApplyDefaults()
	if key == nil {
		key = CallerKey
	}
	buckets := &bucketSet{cfg: cfg, clock: clock.OrReal(clk), entries: make(map[string]*bucket)}

	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}
		if !buckets.allow(key(c)) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apperrors.RateLimited().ToResponse())
			return
		}
		c.Next()
	}
}

type bucket struct {
	limiter  *resilience.RateLimiter
	lastSeen time.Time
}

type bucketSet struct {
	cfg       RateLimitConfig
	clock     clock.Clock
	mu        sync.Mutex
	entries   map[string]*bucket
	lastSweep time.Time
}

func (s *bucketSet) allow(key string) bool {
	now := s.clock.Now()

	s.mu.Lock()
	if now.Sub(s.lastSweep) > s.cfg.IdleTTL {
		for k, b := range s.entries {
			if now.Sub(b.lastSeen) > s.cfg.IdleTTL {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}
	b, ok := s.entries[key]
	if !ok {
		b = &bucket{limiter: resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Name:  key,
			Rate:  s.cfg.RequestsPerSecond,
			Burst: s.cfg.Burst,
			Clock: s.clock,
		})}
		s.entries[key] = b
	}
	b.lastSeen = now
	s.mu.Unlock()

	return b.limiter.Allow()
}
