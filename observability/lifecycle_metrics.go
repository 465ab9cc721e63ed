package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Lifecycle instrument names.
const (
	MetricOrphansDeleted   = "lifecycle.orphans.deleted"
	MetricNoticesProcessed = "lifecycle.notices.processed"
	MetricProcessDuration  = "lifecycle.process.duration"
	MetricDeadLetterTotal  = "lifecycle.deadletter.total"
)

// LifecycleMetrics records deletion processing and orphan cleanup.
type LifecycleMetrics struct {
	orphans    metric.Int64Counter
	processed  metric.Int64Counter
	duration   metric.Float64Histogram
	deadLetter metric.Int64Counter
}

// NewLifecycleMetrics creates the lifecycle instruments on meter.
func NewLifecycleMetrics(meter metric.Meter) (*LifecycleMetrics, error) {
	m := &LifecycleMetrics{}
	var err error

	if m.orphans, err = meter.Int64Counter(MetricOrphansDeleted,
		metric.WithDescription("Unreferenced storage objects removed by the orphan scan")); err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricOrphansDeleted, err)
	}
	if m.processed, err = meter.Int64Counter(MetricNoticesProcessed,
		metric.WithDescription("Deletion notices handled, by outcome")); err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricNoticesProcessed, err)
	}
	if m.duration, err = meter.Float64Histogram(MetricProcessDuration,
		metric.WithDescription("Time spent handling one deletion notice"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", MetricProcessDuration, err)
	}
	if m.deadLetter, err = meter.Int64Counter(MetricDeadLetterTotal,
		metric.WithDescription("Deletion notices moved to the dead-letter topic")); err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricDeadLetterTotal, err)
	}
	return m, nil
}

// NoticeProcessed records one handled notice and its latency.
func (m *LifecycleMetrics) NoticeProcessed(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.processed.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}

// OrphansDeleted adds n removed orphan objects.
func (m *LifecycleMetrics) OrphansDeleted(ctx context.Context, n int) {
	if n > 0 {
		m.orphans.Add(ctx, int64(n))
	}
}

// DeadLettered records one dead-lettered notice.
func (m *LifecycleMetrics) DeadLettered(ctx context.Context, reason string) {
	m.deadLetter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
