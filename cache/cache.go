package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/kbukum/playurl/clock"
	"github.com/kbukum/playurl/logger"
	"github.com/kbukum/playurl/redis"
)

// Expirer is implemented by cacheable values that carry their own expiry.
type Expirer interface {
	Expiry() time.Time
}

// Backend is the byte-oriented store behind the cache. *redis.Backend
// implements it.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, pattern string) (int, error)
}

// Factory produces a fresh value on a miss.
type Factory[V any] func(ctx context.Context) (V, error)

// Option configures a Cache.
type Option func(*options)

type options struct {
	clock    clock.Clock
	codec    Codec
	recorder Recorder
	rand     func() float64
}

// WithClock sets the time source for validity checks.
func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = c } }

// WithCodec sets the payload codec (default PlainCodec).
func WithCodec(c Codec) Option { return func(o *options) { o.codec = c } }

// WithRecorder sets the hit/miss/fallback recorder.
func WithRecorder(r Recorder) Option { return func(o *options) { o.recorder = r } }

// WithRand sets the jitter source, a function returning values in [0, 1).
func WithRand(fn func() float64) Option { return func(o *options) { o.rand = fn } }

// outcome is the result of one factory run, shared with callers that were
// waiting on the key when it finished.
type outcome[V any] struct {
	value V
	err   error
}

// keyLock serializes factory runs for one key. refs, epoch and last are
// guarded by Cache.mu; sem has capacity one.
type keyLock[V any] struct {
	sem   chan struct{}
	refs  int
	epoch uint64
	last  *outcome[V]
}

// Cache is a single-flight read-through cache for values of type V.
type Cache[V Expirer] struct {
	backend  Backend
	cfg      Config
	clock    clock.Clock
	codec    Codec
	recorder Recorder
	rand     func() float64
	log      *logger.Logger

	mu    sync.Mutex
	locks map[string]*keyLock[V]
}

// New creates a cache over backend.
func New[V Expirer](backend Backend, cfg Config, log *logger.Logger, opts ...Option) *Cache[V] {
	cfg.ApplyDefaults()
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.codec == nil {
		o.codec = PlainCodec()
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.rand == nil {
		o.rand = rand.Float64
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Cache[V]{
		backend:  backend,
		cfg:      cfg,
		clock:    clock.OrReal(o.clock),
		codec:    o.codec,
		recorder: o.recorder,
		rand:     o.rand,
		log:      log.WithComponent("cache"),
		locks:    make(map[string]*keyLock[V]),
	}
}

// GetOrCreate returns the cached value for key or runs factory once per key
// across concurrent callers and stores its result for a jittered ttl. With
// the backend unreachable the cache is skipped but factory runs still go
// through the key's lock one at a time.
func (c *Cache[V]) GetOrCreate(ctx context.Context, key string, ttl time.Duration, factory Factory[V]) (V, error) {
	return c.GetOrCreateBefore(ctx, key, ttl, time.Time{}, factory)
}

// GetOrCreateBefore is GetOrCreate for callers that cannot use a value
// expiring after latest. Such an entry counts as a miss and is replaced. A
// zero latest accepts any expiry.
func (c *Cache[V]) GetOrCreateBefore(ctx context.Context, key string, ttl time.Duration, latest time.Time, factory Factory[V]) (V, error) {
	var zero V

	v, ok, err := c.read(ctx, key, latest)
	degraded := redis.IsDegraded(err)
	switch {
	case degraded && ctx.Err() != nil:
		return zero, ctx.Err()
	case degraded:
	case err != nil:
		return zero, err
	case ok:
		c.recorder.Hit(ctx)
		return v, nil
	}

	lk, epoch := c.acquire(key)
	defer c.release(key, lk)

	select {
	case lk.sem <- struct{}{}:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	defer func() { <-lk.sem }()

	if shared, ok := c.sharedOutcome(lk, epoch, latest); ok {
		if shared.err != nil {
			return zero, shared.err
		}
		if !degraded {
			c.recorder.Hit(ctx)
		}
		return shared.value, nil
	}

	if !degraded {
		v, ok, err = c.read(ctx, key, latest)
		degraded = redis.IsDegraded(err)
		switch {
		case degraded && ctx.Err() != nil:
			return zero, ctx.Err()
		case degraded:
		case err != nil:
			return zero, err
		case ok:
			c.recorder.Hit(ctx)
			return v, nil
		}
	}

	if degraded {
		c.logDegraded(key, err)
		c.recorder.Fallback(ctx)
		return c.run(ctx, lk, key, 0, factory)
	}
	c.recorder.Miss(ctx)
	return c.run(ctx, lk, key, ttl, factory)
}

// Refresh runs factory under the key's lock regardless of what is cached
// and overwrites the entry.
func (c *Cache[V]) Refresh(ctx context.Context, key string, ttl time.Duration, factory Factory[V]) (V, error) {
	var zero V

	lk, _ := c.acquire(key)
	defer c.release(key, lk)

	select {
	case lk.sem <- struct{}{}:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	defer func() { <-lk.sem }()

	return c.run(ctx, lk, key, ttl, factory)
}

// Delete removes every key matching the glob pattern.
func (c *Cache[V]) Delete(ctx context.Context, pattern string) (int, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	n, err := c.backend.Delete(opCtx, pattern)
	if err != nil {
		return n, fmt.Errorf("cache delete %q: %w", pattern, err)
	}
	return n, nil
}

// InFlight returns the number of live lock entries. It drops back to zero
// once no caller holds or waits on any key.
func (c *Cache[V]) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}

// Jitter spreads ttl uniformly over [0.9, 1.1) of its value.
func (c *Cache[V]) Jitter(ttl time.Duration) time.Duration {
	return time.Duration(float64(ttl) * (0.9 + c.rand()*0.2))
}

// run invokes factory while holding lk, stores a successful result when
// ttl > 0 and publishes the outcome to waiters.
func (c *Cache[V]) run(ctx context.Context, lk *keyLock[V], key string, ttl time.Duration, factory Factory[V]) (V, error) {
	v, err := factory(ctx)
	c.publish(lk, outcome[V]{value: v, err: err})
	if err != nil {
		var zero V
		return zero, err
	}
	if ttl > 0 {
		c.write(ctx, key, v, c.Jitter(ttl))
	}
	return v, nil
}

func (c *Cache[V]) logDegraded(key string, cause error) {
	c.log.Warn("Cache backend unavailable, generating without cache", logger.Fields(
		logger.FieldCacheKey, key,
		logger.FieldError, cause.Error(),
	))
}

// read returns the cached value if present and usable before latest. A
// corrupt payload reads as a miss.
func (c *Cache[V]) read(ctx context.Context, key string, latest time.Time) (V, bool, error) {
	var zero V

	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()

	raw, ok, err := c.backend.Get(opCtx, key)
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}

	v, err := c.decode(key, raw)
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			c.log.Warn("Discarding corrupt cache entry", logger.Fields(logger.FieldCacheKey, key, logger.FieldError, err.Error()))
			return zero, false, nil
		}
		return zero, false, err
	}
	if !c.valid(v, latest) {
		return zero, false, nil
	}
	return v, true, nil
}

func (c *Cache[V]) write(ctx context.Context, key string, v V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	raw, err := c.encode(key, v)
	if err != nil {
		c.log.Error("Cache encode failed", logger.Fields(logger.FieldCacheKey, key, logger.FieldError, err.Error()))
		return
	}

	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.OpTimeout)
	defer cancel()
	if err := c.backend.Set(opCtx, key, raw, ttl); err != nil {
		c.log.Warn("Cache write failed", logger.Fields(logger.FieldCacheKey, key, logger.FieldError, err.Error()))
	}
}

// valid reports whether v outlives the safety margin and, when latest is
// set, expires no later than latest.
func (c *Cache[V]) valid(v V, latest time.Time) bool {
	exp := v.Expiry()
	if !latest.IsZero() && exp.After(latest) {
		return false
	}
	return c.clock.Now().Add(c.cfg.SafetyMargin).Before(exp)
}

func (c *Cache[V]) encode(key string, v V) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cache: marshal: %w", err)
	}
	return c.codec.Encode(key, b)
}

func (c *Cache[V]) decode(key string, raw []byte) (V, error) {
	var v V
	plain, err := c.codec.Decode(key, raw)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(plain, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return v, nil
}

// acquire takes a reference on key's lock, creating it if needed, and
// returns the lock's epoch at that moment.
func (c *Cache[V]) acquire(key string) (*keyLock[V], uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lk, ok := c.locks[key]
	if !ok {
		lk = &keyLock[V]{sem: make(chan struct{}, 1)}
		c.locks[key] = lk
	}
	lk.refs++
	return lk, lk.epoch
}

// release drops a reference and removes the entry when none remain.
func (c *Cache[V]) release(key string, lk *keyLock[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(c.locks, key)
	}
}

func (c *Cache[V]) publish(lk *keyLock[V], o outcome[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lk.epoch++
	lk.last = &o
}

// sharedOutcome returns the outcome of a factory run that finished while
// the caller was queued. Runs that ended because their own caller's context
// was cancelled are not shared; the waiter tries itself instead.
func (c *Cache[V]) sharedOutcome(lk *keyLock[V], since uint64, latest time.Time) (outcome[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lk.epoch == since || lk.last == nil {
		return outcome[V]{}, false
	}
	o := *lk.last
	if o.err != nil && (errors.Is(o.err, context.Canceled) || errors.Is(o.err, context.DeadlineExceeded)) {
		return outcome[V]{}, false
	}
	if o.err == nil && !c.valid(o.value, latest) {
		return outcome[V]{}, false
	}
	return o, true
}
