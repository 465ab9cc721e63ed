package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kbukum/playurl/access"
	"github.com/kbukum/playurl/clock"
	"github.com/kbukum/playurl/kafka"
	"github.com/kbukum/playurl/logger"
	"github.com/kbukum/playurl/observability"
	"github.com/kbukum/playurl/resilience"
	"github.com/kbukum/playurl/storage"
)

// Store is the record store view the processor needs. *database.TrackStore
// implements it.
type Store interface {
	GetOwner(ctx context.Context, resourceID string) (access.Record, bool, error)
	// IsObjectReferenced reports whether an active record, or one deleted
	// after graceCutoff, points at objectKey.
	IsObjectReferenced(ctx context.Context, objectKey string, graceCutoff time.Time) (bool, error)
	MarkPurged(ctx context.Context, resourceID string, at time.Time) error
}

// Invalidator drops cached URLs for a resource. *signedurl.Service
// implements it.
type Invalidator interface {
	Invalidate(ctx context.Context, resourceID string) (int, error)
}

// Publisher sends dead letters and completion events. *producer.Producer
// implements it.
type Publisher interface {
	SendJSON(ctx context.Context, topic, key string, value interface{}) error
	Publish(ctx context.Context, topic string, event kafka.Event, key ...string) error
}

// Metrics records lifecycle measurements. *observability.LifecycleMetrics
// implements it.
type Metrics interface {
	NoticeProcessed(ctx context.Context, outcome string, d time.Duration)
	OrphansDeleted(ctx context.Context, n int)
	DeadLettered(ctx context.Context, reason string)
}

type nopMetrics struct{}

func (nopMetrics) NoticeProcessed(context.Context, string, time.Duration) {}
func (nopMetrics) OrphansDeleted(context.Context, int)                    {}
func (nopMetrics) DeadLettered(context.Context, string)                   {}

// Option configures a Processor.
type Option func(*Processor)

// WithClock sets the time source for grace decisions.
func WithClock(c clock.Clock) Option { return func(p *Processor) { p.clock = c } }

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option { return func(p *Processor) { p.metrics = m } }

// ScanReport summarizes one orphan scan.
type ScanReport struct {
	Scanned    int           `json:"scanned"`
	Young      int           `json:"young"`
	Referenced int           `json:"referenced"`
	Deleted    int           `json:"deleted"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

var errReferenced = errors.New("object still referenced")

// Processor applies deletion notices and removes orphaned objects.
type Processor struct {
	cfg     Config
	store   Store
	objects storage.ObjectStore
	cache   Invalidator
	pub     Publisher
	metrics Metrics
	clock   clock.Clock
	log     *logger.Logger
	retry   resilience.RetryConfig
	limiter *resilience.RateLimiter

	mu       sync.Mutex
	lastScan ScanReport
	scanAt   time.Time
}

// NewProcessor creates a Processor. cache and pub may be nil: without a
// publisher dead letters are only logged.
func NewProcessor(cfg Config, store Store, objects storage.ObjectStore, cache Invalidator, pub Publisher, log *logger.Logger, opts ...Option) (*Processor, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	p := &Processor{
		cfg:     cfg,
		store:   store,
		objects: objects,
		cache:   cache,
		pub:     pub,
		metrics: nopMetrics{},
		log:     log.WithComponent("lifecycle"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.clock = clock.OrReal(p.clock)
	p.retry = resilience.RetryConfig{
		MaxAttempts:    cfg.DeleteAttempts,
		InitialBackoff: cfg.DeleteBackoff,
		MaxBackoff:     cfg.DeleteBackoff * 16,
		BackoffFactor:  2,
		Jitter:         0.2,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			p.log.Warn("Object delete failed, retrying", logger.Fields(
				"attempt", attempt,
				"backoff", backoff.String(),
				logger.FieldError, err.Error(),
			))
		},
	}
	// Deletes are paced in wall-clock time even when decisions use a fake clock.
	p.limiter = resilience.NewRateLimiter(resilience.RateLimiterConfig{
		Name:  "orphan-delete",
		Rate:  cfg.DeleteRate,
		Burst: cfg.DeleteBurst,
	})
	return p, nil
}

// Config returns the effective configuration.
func (p *Processor) Config() Config { return p.cfg }

// Handle applies one notice. A returned error is transient and the notice
// should be redelivered later; every permanent failure is dead-lettered and
// reported through the Outcome instead.
func (p *Processor) Handle(ctx context.Context, n Notice) (out Outcome, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "lifecycle.Handle", trace.WithAttributes(
		attribute.String(observability.AttrResourceID, n.ResourceID),
	))
	defer func() {
		result := string(out.Disposition)
		if err != nil {
			result = "failed"
		}
		span.SetAttributes(attribute.String(observability.AttrOutcome, result))
		observability.SetSpanError(span, err)
		span.End()
		p.metrics.NoticeProcessed(ctx, result, time.Since(start))
	}()

	if err := n.Validate(); err != nil {
		return p.deadLetter(ctx, DeadLetter{Notice: n, Reason: ReasonInvalidNotice, Error: err.Error()})
	}

	now := p.clock.Now()
	if until := n.DeletedAt.Add(p.cfg.GracePeriod); now.Before(until) {
		return Outcome{Disposition: Deferred, Until: until}, nil
	}

	rec, found, err := p.store.GetOwner(ctx, n.ResourceID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load track %s: %w", n.ResourceID, err)
	}
	switch {
	case !found:
		return p.skip(ctx, n, "unknown track"), nil
	case rec.State == access.StatePurged:
		return p.skip(ctx, n, "already purged"), nil
	case rec.State == access.StateActive:
		p.log.WithContext(ctx).Warn("Deletion notice for a live track ignored", logger.Fields(
			logger.FieldResourceID, n.ResourceID,
		))
		return p.skip(ctx, n, "track is live"), nil
	}
	// The record's own deletion time wins over a stale or forged notice.
	if !rec.DeletedAt.IsZero() {
		if until := rec.DeletedAt.Add(p.cfg.GracePeriod); now.Before(until) {
			return Outcome{Disposition: Deferred, Until: until}, nil
		}
	}

	objectKey := rec.ObjectKey
	if objectKey == "" {
		objectKey = n.ObjectKey
	}
	attempts, err := p.deleteObject(ctx, objectKey)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return p.deadLetter(ctx, DeadLetter{
			Notice:   n,
			Reason:   ReasonDeleteFailed,
			Error:    err.Error(),
			Attempts: attempts,
		})
	}

	if p.cache != nil {
		if _, err := p.cache.Invalidate(ctx, n.ResourceID); err != nil {
			p.log.WithContext(ctx).Warn("Cached URL invalidation failed", logger.Fields(
				logger.FieldResourceID, n.ResourceID,
				logger.FieldError, err.Error(),
			))
		}
	}
	if err := p.store.MarkPurged(ctx, n.ResourceID, now); err != nil {
		return Outcome{}, err
	}
	p.announcePurged(ctx, rec, objectKey, now)

	p.log.WithContext(ctx).Info("Track object purged", logger.Fields(
		logger.FieldResourceID, n.ResourceID,
		logger.FieldObjectKey, objectKey,
		"attempts", attempts,
	))
	return Outcome{Disposition: Processed}, nil
}

// Reject dead-letters a payload that could not be decoded into a Notice.
func (p *Processor) Reject(ctx context.Context, raw []byte, cause error) error {
	_, err := p.deadLetter(ctx, DeadLetter{Raw: string(raw), Reason: ReasonInvalidNotice, Error: cause.Error()})
	return err
}

// GiveUp dead-letters a notice the caller can no longer redeliver.
func (p *Processor) GiveUp(ctx context.Context, n Notice, reason string, cause error) error {
	dl := DeadLetter{Notice: n, Reason: reason, Attempts: n.Attempts}
	if cause != nil {
		dl.Error = cause.Error()
	}
	_, err := p.deadLetter(ctx, dl)
	return err
}

func (p *Processor) skip(ctx context.Context, n Notice, reason string) Outcome {
	p.log.WithContext(ctx).Debug("Deletion notice skipped", logger.Fields(
		logger.FieldResourceID, n.ResourceID,
		logger.FieldReason, reason,
	))
	return Outcome{Disposition: Skipped, Reason: reason}
}

// deleteObject removes key with retries. An absent object counts as deleted.
func (p *Processor) deleteObject(ctx context.Context, key string) (int, error) {
	attempts := 0
	err := resilience.RetryFunc(ctx, p.retry, func() error {
		attempts++
		err := p.objects.Delete(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	})
	return attempts, err
}

func (p *Processor) deadLetter(ctx context.Context, dl DeadLetter) (Outcome, error) {
	dl.Timestamp = p.clock.Now()
	key := dl.Notice.ResourceID

	p.log.WithContext(ctx).Error("Dead-lettering deletion notice", logger.Fields(
		logger.FieldResourceID, key,
		logger.FieldReason, dl.Reason,
		logger.FieldError, dl.Error,
		"attempts", dl.Attempts,
	))
	if p.pub != nil {
		sendCtx := context.WithoutCancel(ctx)
		if err := p.pub.SendJSON(sendCtx, p.cfg.DeadLetterTopic, key, dl); err != nil {
			return Outcome{}, fmt.Errorf("dead-letter %s: %w", key, err)
		}
	}
	p.metrics.DeadLettered(ctx, dl.Reason)
	return Outcome{Disposition: DeadLettered, Reason: dl.Reason}, nil
}

func (p *Processor) announcePurged(ctx context.Context, rec access.Record, objectKey string, at time.Time) {
	if p.pub == nil {
		return
	}
	event := kafka.NewEvent(EventTrackPurged, p.cfg.Source, rec.ResourceID, at, map[string]interface{}{
		"owner_id":   rec.OwnerID,
		"object_key": objectKey,
		"deleted_at": rec.DeletedAt,
		"purged_at":  at.UTC(),
	})
	if err := p.pub.Publish(ctx, p.cfg.EventTopic, event); err != nil {
		p.log.WithContext(ctx).Warn("Purge event not published", logger.Fields(
			logger.FieldResourceID, rec.ResourceID,
			logger.FieldError, err.Error(),
		))
	}
}

// ScanOrphans deletes objects under ScanPrefix that are older than
// OrphanGrace and referenced by no unpurged record. Individual delete
// failures are counted, not returned; the scan resumes next interval.
func (p *Processor) ScanOrphans(ctx context.Context) (ScanReport, error) {
	started := time.Now()
	now := p.clock.Now()
	var scanned, young, referenced, deleted, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ScanConcurrency)

	walkErr := p.objects.Walk(gctx, p.cfg.ScanPrefix, func(obj storage.ObjectInfo) error {
		scanned.Add(1)
		if now.Sub(obj.LastModified) <= p.cfg.OrphanGrace {
			young.Add(1)
			return nil
		}
		g.Go(func() error {
			err := p.removeOrphan(gctx, obj, now)
			switch {
			case err == nil:
				deleted.Add(1)
			case errors.Is(err, errReferenced):
				referenced.Add(1)
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				failed.Add(1)
				p.log.Warn("Orphan delete failed", logger.Fields(
					logger.FieldObjectKey, obj.Key,
					logger.FieldError, err.Error(),
				))
			}
			return nil
		})
		return gctx.Err()
	})
	waitErr := g.Wait()

	report := ScanReport{
		Scanned:    int(scanned.Load()),
		Young:      int(young.Load()),
		Referenced: int(referenced.Load()),
		Deleted:    int(deleted.Load()),
		Failed:     int(failed.Load()),
		Duration:   time.Since(started),
	}
	p.metrics.OrphansDeleted(ctx, report.Deleted)

	p.mu.Lock()
	p.lastScan, p.scanAt = report, now
	p.mu.Unlock()

	if walkErr != nil {
		return report, fmt.Errorf("orphan scan: %w", walkErr)
	}
	if waitErr != nil {
		return report, fmt.Errorf("orphan scan: %w", waitErr)
	}
	return report, nil
}

func (p *Processor) removeOrphan(ctx context.Context, obj storage.ObjectInfo, now time.Time) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	ref, err := p.store.IsObjectReferenced(ctx, obj.Key, now.Add(-p.cfg.GracePeriod))
	if err != nil {
		return err
	}
	if ref {
		return errReferenced
	}
	if err := p.objects.Delete(ctx, obj.Key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	p.log.Info("Orphan object deleted", logger.Fields(
		logger.FieldObjectKey, obj.Key,
		"age", now.Sub(obj.LastModified).String(),
	))
	return nil
}

// LastScan returns the most recent scan report and when it started.
func (p *Processor) LastScan() (ScanReport, time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastScan, p.scanAt
}

// Run scans for orphans immediately and then every ScanInterval until ctx
// is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	t := time.NewTicker(p.cfg.ScanInterval)
	defer t.Stop()
	for {
		report, err := p.ScanOrphans(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fields := logger.Fields(
			"scanned", report.Scanned,
			"deleted", report.Deleted,
			"referenced", report.Referenced,
			"young", report.Young,
			"failed", report.Failed,
			logger.FieldDuration, report.Duration.Milliseconds(),
		)
		if err != nil {
			fields[logger.FieldError] = err.Error()
			p.log.Error("Orphan scan failed", fields)
		} else {
			p.log.Info("Orphan scan finished", fields)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
