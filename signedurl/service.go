package signedurl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/playurl/access"
	"github.com/kbukum/playurl/cache"
	"github.com/kbukum/playurl/clock"
	apperrors "github.com/kbukum/playurl/errors"
	"github.com/kbukum/playurl/logger"
	"github.com/kbukum/playurl/observability"
	"github.com/kbukum/playurl/resilience"
	"github.com/kbukum/playurl/storage"
)

// Record is a signed URL and the instant it stops working.
type Record struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expiry implements cache.Expirer.
func (r Record) Expiry() time.Time { return r.ExpiresAt }

// Options are per-request knobs.
type Options struct {
	// TTL is the requested URL lifetime; zero means DefaultTTL.
	TTL time.Duration
	// ForceRefresh bypasses the cached URL and overwrites it.
	ForceRefresh bool
}

// Gate decides access. *access.Gate implements it.
type Gate interface {
	Check(ctx context.Context, callerID, resourceID string, action access.Action) (access.Decision, error)
}

// Metrics records service-level measurements. Cache hit/miss/fallback are
// recorded by the cache itself. *observability.SignedURLMetrics implements it.
type Metrics interface {
	ForcedRefresh(ctx context.Context)
	GenerateDuration(ctx context.Context, d time.Duration, err error)
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock driving the circuit breaker.
func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option { return func(s *Service) { s.metrics = m } }

// Service issues signed playback URLs.
type Service struct {
	cfg     Config
	gate    Gate
	signer  storage.Signer
	cache   *cache.Cache[Record]
	breaker *resilience.CircuitBreaker
	policy  resilience.Policy
	metrics Metrics
	clock   clock.Clock
	log     *logger.Logger
}

// New creates a Service. The cache must be built over Record values.
func New(cfg Config, gate Gate, signer storage.Signer, c *cache.Cache[Record], log *logger.Logger, opts ...Option) (*Service, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		cfg:    cfg,
		gate:   gate,
		signer: signer,
		cache:  c,
		log:    log.WithComponent("signedurl"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clock = clock.OrReal(s.clock)

	s.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "signer",
		MaxFailures:      cfg.BreakerFailures,
		Timeout:          cfg.BreakerCooldown,
		HalfOpenMaxCalls: 1,
		IsFailure:        isGeneratorFailure,
		Clock:            s.clock,
		OnStateChange: func(name string, from, to resilience.State) {
			s.log.Warn("Circuit breaker state changed", logger.Fields(
				"breaker", name, "from", from.String(), "to", to.String(),
			))
		},
	})
	s.policy = resilience.Policy{
		Timeout: cfg.GeneratorTimeout,
		Retry: resilience.RetryConfig{
			MaxAttempts:    cfg.GeneratorAttempts,
			InitialBackoff: cfg.RetryBackoff,
			MaxBackoff:     cfg.RetryBackoff * 8,
			BackoffFactor:  2,
			Jitter:         0.2,
		},
		Breaker: s.breaker,
		Bulkhead: resilience.NewBulkhead(resilience.BulkheadConfig{
			Name:          "signer",
			MaxConcurrent: cfg.MaxConcurrent,
			MaxWait:       cfg.GeneratorTimeout,
		}),
	}
	return s, nil
}

// Generate returns a playback URL for resourceID valid for the clamped TTL.
func (s *Service) Generate(ctx context.Context, resourceID, callerID string, opts Options) (rec Record, err error) {
	ctx, span := observability.StartSpan(ctx, "signedurl.Generate", trace.WithAttributes(
		attribute.String(observability.AttrResourceID, resourceID),
		attribute.String(observability.AttrCallerID, callerID),
		attribute.Bool(observability.AttrForced, opts.ForceRefresh),
	))
	defer func() {
		observability.SetSpanError(span, err)
		span.End()
	}()

	if resourceID == "" {
		return Record{}, apperrors.MissingField("resource_id")
	}
	ttl, err := s.ClampTTL(opts.TTL)
	if err != nil {
		return Record{}, err
	}

	decision, err := s.gate.Check(ctx, callerID, resourceID, access.ActionRead)
	if err != nil {
		s.log.WithContext(ctx).Error("Access check failed", logger.Fields(
			logger.FieldResourceID, resourceID,
			logger.FieldError, err.Error(),
		))
		return Record{}, storeUnavailable(err)
	}
	if err := decision.Err(resourceID, s.cfg.HideForbidden); err != nil {
		span.SetAttributes(attribute.String(observability.AttrOutcome, string(decision.Reason)))
		return Record{}, err
	}

	key := s.Key(decision.Record.OwnerID, resourceID)
	span.SetAttributes(attribute.String(observability.AttrCacheKey, key))
	cacheTTL := time.Duration(float64(ttl) * s.cfg.CacheTTLRatio)
	if ttl <= s.cfg.Cache.SafetyMargin {
		// Such a record would never be served from cache; skip the write.
		cacheTTL = 0
	}
	objectKey := decision.Record.ObjectKey
	factory := func(ctx context.Context) (Record, error) {
		return s.sign(ctx, objectKey, ttl)
	}

	if opts.ForceRefresh {
		if s.metrics != nil {
			s.metrics.ForcedRefresh(ctx)
		}
		rec, err = s.cache.Refresh(ctx, key, cacheTTL, factory)
	} else {
		// A cached URL may outlive this caller's ttl by at most a second of
		// signer rounding; longer-lived entries are re-signed.
		latest := s.clock.Now().Add(ttl + time.Second)
		rec, err = s.cache.GetOrCreateBefore(ctx, key, cacheTTL, latest, factory)
	}
	if err != nil {
		return Record{}, s.generatorError(ctx, resourceID, err)
	}
	return rec, nil
}

// Invalidate drops every cached URL for resourceID across owner scopes and
// returns how many entries were removed.
func (s *Service) Invalidate(ctx context.Context, resourceID string) (int, error) {
	if resourceID == "" {
		return 0, apperrors.MissingField("resource_id")
	}
	n, err := s.cache.Delete(ctx, s.Key("*", resourceID))
	if err != nil {
		return n, fmt.Errorf("invalidate %s: %w", resourceID, err)
	}
	s.log.WithContext(ctx).Debug("Invalidated cached URLs", logger.Fields(
		logger.FieldResourceID, resourceID, "deleted", n,
	))
	return n, nil
}

// Key builds the cache key scope:ownerID:resourceID.
func (s *Service) Key(ownerID, resourceID string) string {
	return s.cfg.Scope + ":" + ownerID + ":" + resourceID
}

// ClampTTL applies the default and bounds to a requested TTL. Negative
// values are invalid input.
func (s *Service) ClampTTL(ttl time.Duration) (time.Duration, error) {
	switch {
	case ttl < 0:
		return 0, apperrors.InvalidInput("ttl", "ttl must not be negative")
	case ttl == 0:
		return s.cfg.DefaultTTL, nil
	case ttl < s.cfg.MinTTL:
		return s.cfg.MinTTL, nil
	case ttl > s.cfg.MaxTTL:
		return s.cfg.MaxTTL, nil
	}
	return ttl, nil
}

// BreakerState reports the generator breaker state for health output.
func (s *Service) BreakerState() resilience.State {
	return s.breaker.State()
}

// InFlight reports the cache's live lock entries for health output.
func (s *Service) InFlight() int {
	return s.cache.InFlight()
}

func (s *Service) sign(ctx context.Context, objectKey string, ttl time.Duration) (Record, error) {
	start := time.Now()
	rec, err := resilience.Do(ctx, s.policy, func(ctx context.Context) (Record, error) {
		url, expiresAt, err := s.signer.SignedURL(ctx, objectKey, ttl)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return Record{}, resilience.Permanent(err)
			}
			return Record{}, err
		}
		return Record{URL: url, ExpiresAt: expiresAt}, nil
	})
	if s.metrics != nil {
		s.metrics.GenerateDuration(ctx, time.Since(start), err)
	}
	return rec, err
}

func (s *Service) generatorError(ctx context.Context, resourceID string, err error) error {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, storage.ErrNotFound):
		s.log.WithContext(ctx).Error("Track object missing from storage", logger.Fields(
			logger.FieldResourceID, resourceID,
		))
		return apperrors.NotFound("track", resourceID).WithCause(err)
	case errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, resilience.ErrBulkheadFull),
		errors.Is(err, resilience.ErrBulkheadTimeout):
		return apperrors.GeneratorUnavailable().WithCause(err)
	case ctx.Err() != nil:
		return ctx.Err()
	}
	s.log.WithContext(ctx).Error("Signed URL generation failed", logger.Fields(
		logger.FieldResourceID, resourceID,
		logger.FieldError, err.Error(),
	))
	return apperrors.ServiceUnavailable("signed URL generator").WithCause(err)
}

// isGeneratorFailure keeps caller cancellation and missing objects from
// tripping the breaker.
func isGeneratorFailure(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, storage.ErrNotFound)
}

func storeUnavailable(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.ServiceUnavailable("record store").WithCause(err)
}
