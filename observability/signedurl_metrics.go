package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Signed-URL instrument names.
const (
	MetricCacheHit         = "signedurl.cache.hit"
	MetricCacheMiss        = "signedurl.cache.miss"
	MetricCacheFallback    = "signedurl.cache.fallback"
	MetricGenerateDuration = "signedurl.generate.duration"
	MetricForcedRefresh    = "signedurl.refresh.forced"
)

// SignedURLMetrics records cache outcomes and generator latency.
type SignedURLMetrics struct {
	hit      metric.Int64Counter
	miss     metric.Int64Counter
	fallback metric.Int64Counter
	duration metric.Float64Histogram
	forced   metric.Int64Counter
}

// NewSignedURLMetrics creates the signed-URL instruments on meter.
func NewSignedURLMetrics(meter metric.Meter) (*SignedURLMetrics, error) {
	m := &SignedURLMetrics{}
	var err error

	if m.hit, err = meter.Int64Counter(MetricCacheHit,
		metric.WithDescription("Signed URLs served from cache")); err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricCacheHit, err)
	}
	if m.miss, err = meter.Int64Counter(MetricCacheMiss,
		metric.WithDescription("Signed URLs generated after a cache miss")); err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricCacheMiss, err)
	}
	if m.fallback, err = meter.Int64Counter(MetricCacheFallback,
		metric.WithDescription("Signed URLs generated directly because the cache was unreachable")); err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricCacheFallback, err)
	}
	if m.duration, err = meter.Float64Histogram(MetricGenerateDuration,
		metric.WithDescription("Latency of signed URL generator calls"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", MetricGenerateDuration, err)
	}
	if m.forced, err = meter.Int64Counter(MetricForcedRefresh,
		metric.WithDescription("Generations that bypassed the cache on request")); err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricForcedRefresh, err)
	}
	return m, nil
}

// Hit records a cache hit.
func (m *SignedURLMetrics) Hit(ctx context.Context) { m.hit.Add(ctx, 1) }

// Miss records a cache miss that ran the generator.
func (m *SignedURLMetrics) Miss(ctx context.Context) { m.miss.Add(ctx, 1) }

// Fallback records a generation that skipped the unreachable cache.
func (m *SignedURLMetrics) Fallback(ctx context.Context) { m.fallback.Add(ctx, 1) }

// ForcedRefresh records a forced regeneration.
func (m *SignedURLMetrics) ForcedRefresh(ctx context.Context) { m.forced.Add(ctx, 1) }

// GenerateDuration records one generator call.
func (m *SignedURLMetrics) GenerateDuration(ctx context.Context, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}
