package signedurl_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/playurl/access"
	"github.com/kbukum/playurl/cache"
	"github.com/kbukum/playurl/clock"
	apperrors "github.com/kbukum/playurl/errors"
	"github.com/kbukum/playurl/logger"
	redistest "github.com/kbukum/playurl/redis/testutil"
	"github.com/kbukum/playurl/resilience"
	"github.com/kbukum/playurl/signedurl"
	storagetest "github.com/kbukum/playurl/storage/testutil"
)

var epoch = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu      sync.Mutex
	records map[string]access.Record
	grants  map[string]bool
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]access.Record), grants: make(map[string]bool)}
}

func (s *fakeStore) put(r access.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.State == "" {
		r.State = access.StateActive
	}
	if r.Visibility == "" {
		r.Visibility = access.VisibilityPrivate
	}
	s.records[r.ResourceID] = r
}

func (s *fakeStore) GetOwner(_ context.Context, id string) (access.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return access.Record{}, false, s.err
	}
	r, ok := s.records[id]
	return r, ok, nil
}

func (s *fakeStore) HasGrant(_ context.Context, resourceID, callerID string, action access.Action) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grants[resourceID+"|"+callerID+"|"+string(action)], nil
}

type fakeMetrics struct {
	forced, generated atomic.Int64
}

func (m *fakeMetrics) ForcedRefresh(context.Context) { m.forced.Add(1) }
func (m *fakeMetrics) GenerateDuration(context.Context, time.Duration, error) {
	m.generated.Add(1)
}

type fixture struct {
	svc     *signedurl.Service
	store   *fakeStore
	signer  *storagetest.Memory
	redis   *redistest.Server
	clock   *clock.Fake
	metrics *fakeMetrics
}

func newFixture(t *testing.T, cfg signedurl.Config, cacheOpts ...cache.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:   newFakeStore(),
		clock:   clock.NewFake(epoch),
		redis:   redistest.New(t),
		metrics: &fakeMetrics{},
	}
	f.signer = storagetest.NewMemory(f.clock)
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Millisecond
	}
	cfg.Cache.OpTimeout = 100 * time.Millisecond

	opts := append([]cache.Option{cache.WithClock(f.clock)}, cacheOpts...)
	c := cache.New[signedurl.Record](f.redis.Backend, cfg.Cache, logger.Nop(), opts...)
	svc, err := signedurl.New(cfg, access.NewGate(f.store, logger.Nop()), f.signer, c, logger.Nop(),
		signedurl.WithClock(f.clock), signedurl.WithMetrics(f.metrics))
	if err != nil {
		t.Fatalf("signedurl.New: %v", err)
	}
	f.svc = svc

	f.store.put(access.Record{ResourceID: "t1", OwnerID: "alice", ObjectKey: "media/t1.mp3"})
	return f
}

func wantCode(t *testing.T, err error, code apperrors.ErrorCode, status int) {
	t.Helper()
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		t.Fatalf("err = %v, want AppError %s", err, code)
	}
	if appErr.Code != code || appErr.HTTPStatus != status {
		t.Fatalf("got %s/%d, want %s/%d", appErr.Code, appErr.HTTPStatus, code, status)
	}
}

func TestGenerateHitInvalidateMiss(t *testing.T) {
	f := newFixture(t, signedurl.Config{})
	ctx := context.Background()

	first, err := f.svc.Generate(ctx, "t1", "alice", signedurl.Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !first.ExpiresAt.Equal(epoch.Add(time.Hour)) {
		t.Fatalf("expires_at = %v, want default ttl of 1h", first.ExpiresAt)
	}
	second, err := f.svc.Generate(ctx, "t1", "alice", signedurl.Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if second.URL != first.URL || f.signer.SignCalls() != 1 {
		t.Fatalf("expected cache hit: calls=%d", f.signer.SignCalls())
	}

	n, err := f.svc.Invalidate(ctx, "t1")
	if err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if n != 1 {
		t.Fatalf("invalidated %d entries, want 1", n)
	}

	f.clock.Advance(time.Second)
	third, err := f.svc.Generate(ctx, "t1", "alice", signedurl.Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if f.signer.SignCalls() != 2 || third.URL == first.URL {
		t.Fatalf("expected regeneration after invalidate: calls=%d", f.signer.SignCalls())
	}
}

func TestShorterTTLIsNotServedLongerURL(t *testing.T) {
	f := newFixture(t, signedurl.Config{})
	ctx := context.Background()

	if _, err := f.svc.Generate(ctx, "t1", "alice", signedurl.Options{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	short, err := f.svc.Generate(ctx, "t1", "alice", signedurl.Options{TTL: 10 * time.Minute})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !short.ExpiresAt.Equal(epoch.Add(10*time.Minute)) || f.signer.SignCalls() != 2 {
		t.Fatalf("expires_at = %v, calls = %d; want a fresh 10m URL", short.ExpiresAt, f.signer.SignCalls())
	}

	again, err := f.svc.Generate(ctx, "t1", "alice", signedurl.Options{TTL: 10 * time.Minute})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if again.URL != short.URL || f.signer.SignCalls() != 2 {
		t.Fatalf("expected cache hit for the same ttl: calls=%d", f.signer.SignCalls())
	}
}

func TestAccessOutcomes(t *testing.T) {
	f := newFixture(t, signedurl.Config{})
	f.store.put(access.Record{ResourceID: "pub", OwnerID: "bob", ObjectKey: "media/pub.mp3", Visibility: access.VisibilityPublic})
	f.store.put(access.Record{ResourceID: "gone", OwnerID: "alice", ObjectKey: "media/gone.mp3", State: access.StateDeleted})
	f.store.grants["t1|carol|read"] = true
	ctx := context.Background()

	tests := []struct {
		name     string
		resource string
		caller   string
		code     apperrors.ErrorCode
		status   int
	}{
		{"owner", "t1", "alice", "", http.StatusOK},
		{"grantee", "t1", "carol", "", http.StatusOK},
		{"public", "pub", "mallory", "", http.StatusOK},
		{"stranger", "t1", "mallory", apperrors.ErrCodeForbidden, http.StatusForbidden},
		{"missing", "nope", "alice", apperrors.ErrCodeNotFound, http.StatusNotFound},
		{"deleted", "gone", "alice", apperrors.ErrCodeNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := f.svc.Generate(ctx, tt.resource, tt.caller, signedurl.Options{})
			if tt.code == "" {
				if err != nil || rec.URL == "" {
					t.Fatalf("got %+v, %v", rec, err)
				}
				return
			}
			wantCode(t, err, tt.code, tt.status)
		})
	}
}

func TestHideForbidden(t *testing.T) {
	f := newFixture(t, signedurl.Config{HideForbidden: true})
	_, err := f.svc.Generate(context.Background(), "t1", "mallory", signedurl.Options{})
	wantCode(t, err, apperrors.ErrCodeNotFound, http.StatusNotFound)
}

func TestDeniedCallerNeverReachesSigner(t *testing.T) {
	f := newFixture(t, signedurl.Config{})
	_, _ = f.svc.Generate(context.Background(), "t1", "mallory", signedurl.Options{})
	if f.signer.SignCalls() != 0 {
		t.Fatalf("signer called %d times for a denied caller", f.signer.SignCalls())
	}
}

func TestClampTTL(t *testing.T) {
	f := newFixture(t, signedurl.Config{})
	tests := []struct {
		in, want time.Duration
		wantErr  bool
	}{
		{0, time.Hour, false},
		{time.Second, time.Minute, false},
		{30 * time.Minute, 30 * time.Minute, false},
		{48 * time.Hour, 24 * time.Hour, false},
		{-time.Minute, 0, true},
	}
	for _, tt := range tests {
		got, err := f.svc.ClampTTL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ClampTTL(%v) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ClampTTL(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}

	_, err := f.svc.Generate(context.Background(), "t1", "alice", signedurl.Options{TTL: -time.Second})
	wantCode(t, err, apperrors.ErrCodeInvalidInput, http.StatusBadRequest)
}

func TestCacheLifetimeShareOfURLTTL(t *testing.T) {
	urlTTL := 100 * time.Minute
	for _, tc := range []struct {
		r    float64
		want time.Duration
	}{{0, 72 * time.Minute}, {0.999999, 88 * time.Minute}} {
		f := newFixture(t, signedurl.Config{}, cache.WithRand(func() float64 { return tc.r }))
		if _, err := f.svc.Generate(context.Background(), "t1", "alice", signedurl.Options{TTL: urlTTL}); err != nil {
			t.Fatalf("Generate: %v", err)
		}
		got := f.redis.Mini.TTL(f.svc.Key("alice", "t1"))
		if diff := got - tc.want; diff < -time.Second || diff > time.Second {
			t.Fatalf("r=%v: cached for %v, want ~%v", tc.r, got, tc.want)
		}
	}
}

func TestTTLWithinMarginIsNotCached(t *testing.T) {
	f := newFixture(t, signedurl.Config{})
	ctx := context.Background()
	for range 2 {
		rec, err := f.svc.Generate(ctx, "t1", "alice", signedurl.Options{TTL: time.Minute})
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if !rec.ExpiresAt.Equal(epoch.Add(time.Minute)) {
			t.Fatalf("expires_at = %v", rec.ExpiresAt)
		}
	}
	if f.signer.SignCalls() != 2 {
		t.Fatalf("sign calls = %d, want 2", f.signer.SignCalls())
	}
	if keys := f.redis.Keys(); len(keys) != 0 {
		t.Fatalf("cached keys = %v", keys)
	}
}

func TestConcurrentGenerateSignsOnce(t *testing.T) {
	f := newFixture(t, signedurl.Config{})
	f.signer.SetSignDelay(30 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Generate(context.Background(), "t1", "alice", signedurl.Options{}); err != nil {
				t.Errorf("Generate: %v", err)
			}
		}()
	}
	wg.Wait()
	if f.signer.SignCalls() != 1 {
		t.Fatalf("signer calls = %d, want 1", f.signer.SignCalls())
	}
	if f.svc.InFlight() != 0 {
		t.Fatalf("InFlight = %d, want 0", f.svc.InFlight())
	}
}

func TestForceRefresh(t *testing.T) {
	f := newFixture(t, signedurl.Config{})
	ctx := context.Background()

	first, _ := f.svc.Generate(ctx, "t1", "alice", signedurl.Options{})
	f.clock.Advance(time.Minute)
	forced, err := f.svc.Generate(ctx, "t1", "alice", signedurl.Options{ForceRefresh: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if forced.URL == first.URL {
		t.Fatal("forced refresh returned the cached URL")
	}
	after, _ := f.svc.Generate(ctx, "t1", "alice", signedurl.Options{})
	if after.URL != forced.URL {
		t.Fatal("forced URL did not replace the cached one")
	}
	if f.metrics.forced.Load() != 1 || f.metrics.generated.Load() != 2 {
		t.Fatalf("metrics forced=%d generated=%d", f.metrics.forced.Load(), f.metrics.generated.Load())
	}
}

func TestFallbackWhenCacheDown(t *testing.T) {
	f := newFixture(t, signedurl.Config{})
	f.redis.Outage()

	for i := 0; i < 2; i++ {
		if _, err := f.svc.Generate(context.Background(), "t1", "alice", signedurl.Options{}); err != nil {
			t.Fatalf("Generate during cache outage: %v", err)
		}
	}
	if f.signer.SignCalls() != 2 {
		t.Fatalf("signer calls = %d, want 2", f.signer.SignCalls())
	}
}

func TestBreakerOpensToGeneratorUnavailable(t *testing.T) {
	f := newFixture(t, signedurl.Config{GeneratorAttempts: 1, BreakerFailures: 2, BreakerCooldown: time.Minute})
	f.signer.SetSignError(errors.New("signer 500"))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.svc.Generate(ctx, "t1", "alice", signedurl.Options{})
		wantCode(t, err, apperrors.ErrCodeServiceUnavailable, http.StatusServiceUnavailable)
	}
	if f.svc.BreakerState() != resilience.StateOpen {
		t.Fatalf("breaker = %s, want open", f.svc.BreakerState())
	}

	calls := f.signer.SignCalls()
	_, err := f.svc.Generate(ctx, "t1", "alice", signedurl.Options{})
	wantCode(t, err, apperrors.ErrCodeGeneratorUnavailable, http.StatusServiceUnavailable)
	if f.signer.SignCalls() != calls {
		t.Fatal("signer called while breaker open")
	}

	f.signer.SetSignError(nil)
	f.clock.Advance(time.Minute)
	if _, err := f.svc.Generate(ctx, "t1", "alice", signedurl.Options{}); err != nil {
		t.Fatalf("half-open probe failed: %v", err)
	}
	if f.svc.BreakerState() != resilience.StateClosed {
		t.Fatalf("breaker = %s, want closed", f.svc.BreakerState())
	}
}

func TestRetryRecoversTransientFailure(t *testing.T) {
	f := newFixture(t, signedurl.Config{GeneratorAttempts: 3})
	signer := &flakySigner{Memory: f.signer, failures: 2}
	c := cache.New[signedurl.Record](f.redis.Backend, cache.Config{}, logger.Nop(), cache.WithClock(f.clock))
	svc, err := signedurl.New(signedurl.Config{RetryBackoff: time.Millisecond}, access.NewGate(f.store, logger.Nop()),
		signer, c, logger.Nop(), signedurl.WithClock(f.clock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := svc.Generate(context.Background(), "t1", "alice", signedurl.Options{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if signer.calls.Load() != 3 {
		t.Fatalf("signer attempts = %d, want 3", signer.calls.Load())
	}
}

type flakySigner struct {
	*storagetest.Memory
	failures int64
	calls    atomic.Int64
}

func (s *flakySigner) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	if s.calls.Add(1) <= s.failures {
		return "", time.Time{}, errors.New("transient")
	}
	return s.Memory.SignedURL(ctx, key, ttl)
}

func TestStoreFailureIsUnavailable(t *testing.T) {
	f := newFixture(t, signedurl.Config{})
	f.store.err = errors.New("db down")
	_, err := f.svc.Generate(context.Background(), "t1", "alice", signedurl.Options{})
	wantCode(t, err, apperrors.ErrCodeServiceUnavailable, http.StatusServiceUnavailable)
}

func TestMissingResourceID(t *testing.T) {
	f := newFixture(t, signedurl.Config{})
	_, err := f.svc.Generate(context.Background(), "", "alice", signedurl.Options{})
	wantCode(t, err, apperrors.ErrCodeMissingField, http.StatusBadRequest)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  signedurl.Config
	}{
		{"ratio too high", signedurl.Config{CacheTTLRatio: 1}},
		{"min above max", signedurl.Config{MinTTL: 2 * time.Hour, MaxTTL: time.Hour, DefaultTTL: time.Hour}},
		{"default outside", signedurl.Config{DefaultTTL: 48 * time.Hour}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.ApplyDefaults()
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
