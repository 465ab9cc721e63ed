package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/kbukum/playurl/clock"
)

// State is the position of a CircuitBreaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// ErrCircuitOpen is returned without calling the guarded function while the
// breaker is open or its half-open probes are taken.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures a CircuitBreaker. Zero numeric fields take
// the values of DefaultCircuitBreakerConfig.
type CircuitBreakerConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	// MaxFailures consecutive failures open the breaker.
	MaxFailures int `yaml:"max_failures" mapstructure:"max_failures"`
	// Timeout is how long the breaker stays open before letting probes through.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// HalfOpenMaxCalls probes must all succeed to close the breaker again.
	HalfOpenMaxCalls int `yaml:"half_open_max_calls" mapstructure:"half_open_max_calls"`
	// IsFailure filters which errors count. Nil counts every error.
	IsFailure func(error) bool `yaml:"-" mapstructure:"-"`
	// OnStateChange runs under the breaker's lock; keep it short.
	OnStateChange func(name string, from, to State) `yaml:"-" mapstructure:"-"`
	Clock         clock.Clock                       `yaml:"-" mapstructure:"-"`
}

// DefaultCircuitBreakerConfig opens after 5 failures for 30s with one probe.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{Name: name, MaxFailures: 5, Timeout: 30 * time.Second, HalfOpenMaxCalls: 1}
}

// CircuitBreaker fails fast once a dependency keeps failing. Every state
// change starts a new generation; results of calls admitted in an earlier
// generation are discarded so a slow call cannot close or reopen a breaker
// that has moved on.
type CircuitBreaker struct {
	cfg   CircuitBreakerConfig
	clock clock.Clock

	mu         sync.Mutex
	state      State
	generation uint64
	failures   int
	probes     int // admitted in the current half-open generation
	passed     int // succeeded in the current half-open generation
	openUntil  time.Time
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	return &CircuitBreaker{cfg: cfg, clock: clock.OrReal(cfg.Clock)}
}

// Name returns the configured name.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute calls fn unless the breaker rejects it with ErrCircuitOpen, and
// records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	gen, ok := cb.admit()
	if !ok {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(gen, err)
	return err
}

// State reports the current state, promoting open to half-open once the
// open period has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.refresh()
}

// Failures is the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the breaker, clears its counters and starts a new
// generation even when already closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateClosed {
		cb.generation++
	}
	cb.moveTo(StateClosed)
	cb.failures = 0
}

func (cb *CircuitBreaker) admit() (uint64, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.refresh() {
	case StateOpen:
		return 0, false
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMaxCalls {
			return 0, false
		}
		cb.probes++
	}
	return cb.generation, true
}

func (cb *CircuitBreaker) record(gen uint64, err error) {
	failed := err != nil && (cb.cfg.IsFailure == nil || cb.cfg.IsFailure(err))

	cb.mu.Lock()
	defer cb.mu.Unlock()
	state := cb.refresh()
	if gen != cb.generation {
		return
	}
	switch {
	case failed && state == StateHalfOpen:
		cb.failures++
		cb.moveTo(StateOpen)
	case failed:
		if cb.failures++; cb.failures >= cb.cfg.MaxFailures {
			cb.moveTo(StateOpen)
		}
	case state == StateHalfOpen:
		if cb.passed++; cb.passed >= cb.cfg.HalfOpenMaxCalls {
			cb.moveTo(StateClosed)
		}
	default:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) refresh() State {
	if cb.state == StateOpen && !cb.clock.Now().Before(cb.openUntil) {
		cb.moveTo(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) moveTo(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.generation++
	cb.probes, cb.passed = 0, 0
	switch to {
	case StateClosed:
		cb.failures = 0
	case StateOpen:
		cb.openUntil = cb.clock.Now().Add(cb.cfg.Timeout)
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}
