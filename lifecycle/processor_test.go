package lifecycle_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kbukum/playurl/access"
	"github.com/kbukum/playurl/kafka"
	"github.com/kbukum/playurl/lifecycle"
)

func TestHandleDefersInsideGrace(t *testing.T) {
	e := newEnv(t, lifecycle.Config{})
	n := e.deleted("t1", t0.Add(-23*time.Hour))

	out, err := e.proc.Handle(context.Background(), n)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Disposition != lifecycle.Deferred {
		t.Fatalf("disposition = %s, want deferred", out.Disposition)
	}
	if want := n.DeletedAt.Add(24 * time.Hour); !out.Until.Equal(want) {
		t.Fatalf("until = %v, want %v", out.Until, want)
	}
	if !e.objects.Has(n.ObjectKey) {
		t.Fatal("object deleted inside grace period")
	}
	if e.store.get("t1").State != access.StateDeleted {
		t.Fatal("record purged inside grace period")
	}
}

func TestHandlePurgesAtGraceEnd(t *testing.T) {
	e := newEnv(t, lifecycle.Config{})
	n := e.deleted("t1", t0.Add(-24*time.Hour))

	out, err := e.proc.Handle(context.Background(), n)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Disposition != lifecycle.Processed {
		t.Fatalf("disposition = %s, want processed", out.Disposition)
	}
	if e.objects.Has(n.ObjectKey) {
		t.Fatal("object still present")
	}
	if e.store.get("t1").State != access.StatePurged {
		t.Fatal("record not purged")
	}
	if got := e.cache.calls(); len(got) != 1 || got[0] != "t1" {
		t.Fatalf("invalidations = %v", got)
	}

	events := e.writer.topic(e.proc.Config().EventTopic)
	if len(events) != 1 {
		t.Fatalf("expected 1 completion event, got %d", len(events))
	}
	var ev kafka.Event
	if err := json.Unmarshal(events[0].Value, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != lifecycle.EventTrackPurged || ev.Subject != "t1" || ev.Data["object_key"] != n.ObjectKey {
		t.Fatalf("unexpected event %+v", ev)
	}
	if e.metrics.processed["processed"] != 1 {
		t.Fatalf("metrics = %v", e.metrics.processed)
	}
}

func TestHandleRedeliveryIsNoop(t *testing.T) {
	e := newEnv(t, lifecycle.Config{})
	n := e.deleted("t1", t0.Add(-48*time.Hour))
	ctx := context.Background()

	if _, err := e.proc.Handle(ctx, n); err != nil {
		t.Fatalf("first Handle: %v", err)
	}
	out, err := e.proc.Handle(ctx, n)
	if err != nil {
		t.Fatalf("second Handle: %v", err)
	}
	if out.Disposition != lifecycle.Skipped {
		t.Fatalf("disposition = %s, want skipped", out.Disposition)
	}
	if got := len(e.objects.Deleted()); got != 1 {
		t.Fatalf("object deleted %d times", got)
	}
	if got := len(e.writer.topic(e.proc.Config().EventTopic)); got != 1 {
		t.Fatalf("completion events = %d, want 1", got)
	}
}

func TestHandleAbsentObjectIsSuccess(t *testing.T) {
	e := newEnv(t, lifecycle.Config{})
	n := e.deleted("t1", t0.Add(-48*time.Hour))
	if err := e.objects.Delete(context.Background(), n.ObjectKey); err != nil {
		t.Fatalf("pre-delete: %v", err)
	}

	out, err := e.proc.Handle(context.Background(), n)
	if err != nil || out.Disposition != lifecycle.Processed {
		t.Fatalf("got %+v, %v", out, err)
	}
	if e.store.get("t1").State != access.StatePurged {
		t.Fatal("record not purged")
	}
}

func TestHandleRecoversFromTransientDeleteErrors(t *testing.T) {
	e := newEnv(t, lifecycle.Config{DeleteAttempts: 3})
	n := e.deleted("t1", t0.Add(-48*time.Hour))
	e.objects.FailDeletes(n.ObjectKey, 2)

	out, err := e.proc.Handle(context.Background(), n)
	if err != nil || out.Disposition != lifecycle.Processed {
		t.Fatalf("got %+v, %v", out, err)
	}
	if len(e.deadLetters(t)) != 0 {
		t.Fatal("unexpected dead letter")
	}
}

func TestHandleDeadLettersWhenRetriesExhausted(t *testing.T) {
	e := newEnv(t, lifecycle.Config{DeleteAttempts: 3})
	n := e.deleted("t1", t0.Add(-48*time.Hour))
	e.objects.FailDeletes(n.ObjectKey, -1)

	out, err := e.proc.Handle(context.Background(), n)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Disposition != lifecycle.DeadLettered || out.Reason != lifecycle.ReasonDeleteFailed {
		t.Fatalf("got %+v", out)
	}

	dls := e.deadLetters(t)
	if len(dls) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(dls))
	}
	dl := dls[0]
	if dl.Notice.ResourceID != "t1" || dl.Attempts != 3 || dl.Error == "" || !dl.Timestamp.Equal(t0) {
		t.Fatalf("unexpected dead letter %+v", dl)
	}
	if e.store.get("t1").State != access.StateDeleted {
		t.Fatal("record purged although object survived")
	}
	if e.metrics.dead[lifecycle.ReasonDeleteFailed] != 1 {
		t.Fatalf("dead-letter metrics = %v", e.metrics.dead)
	}
}

func TestHandleIgnoresLiveTrack(t *testing.T) {
	e := newEnv(t, lifecycle.Config{})
	n := e.deleted("t1", t0.Add(-48*time.Hour))
	rec := e.store.get("t1")
	rec.State = access.StateActive
	e.store.put(rec)

	out, err := e.proc.Handle(context.Background(), n)
	if err != nil || out.Disposition != lifecycle.Skipped {
		t.Fatalf("got %+v, %v", out, err)
	}
	if !e.objects.Has(n.ObjectKey) {
		t.Fatal("live track's object deleted")
	}
}

func TestHandleTrustsRecordDeletionTime(t *testing.T) {
	e := newEnv(t, lifecycle.Config{})
	e.deleted("t1", t0.Add(-time.Hour))
	stale := lifecycle.Notice{ResourceID: "t1", DeletedAt: t0.Add(-72 * time.Hour)}

	out, err := e.proc.Handle(context.Background(), stale)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Disposition != lifecycle.Deferred || !out.Until.Equal(t0.Add(23*time.Hour)) {
		t.Fatalf("got %+v", out)
	}
}

func TestHandleInvalidNoticeIsDeadLettered(t *testing.T) {
	e := newEnv(t, lifecycle.Config{})
	out, err := e.proc.Handle(context.Background(), lifecycle.Notice{ResourceID: "t1"})
	if err != nil || out.Disposition != lifecycle.DeadLettered {
		t.Fatalf("got %+v, %v", out, err)
	}
	if dls := e.deadLetters(t); len(dls) != 1 || dls[0].Reason != lifecycle.ReasonInvalidNotice {
		t.Fatalf("dead letters = %+v", dls)
	}
}

func TestHandleStoreErrorIsTransient(t *testing.T) {
	e := newEnv(t, lifecycle.Config{})
	n := e.deleted("t1", t0.Add(-48*time.Hour))
	e.store.setGetErr(context.DeadlineExceeded)

	if _, err := e.proc.Handle(context.Background(), n); err == nil {
		t.Fatal("expected error")
	}
	if !e.objects.Has(n.ObjectKey) || len(e.deadLetters(t)) != 0 {
		t.Fatal("store failure must neither delete nor dead-letter")
	}
}

func TestScanOrphans(t *testing.T) {
	e := newEnv(t, lifecycle.Config{ScanPrefix: "media/"})
	day := 24 * time.Hour

	e.objects.Put("media/young-orphan.mp3", t0.Add(-1*day))
	e.objects.Put("media/old-orphan.mp3", t0.Add(-8*day))
	e.objects.Put("media/live.mp3", t0.Add(-30*day))
	e.objects.Put("media/in-grace.mp3", t0.Add(-30*day))
	e.objects.Put("media/purged.mp3", t0.Add(-30*day))
	e.objects.Put("other/old.mp3", t0.Add(-30*day))
	e.store.put(access.Record{ResourceID: "a", ObjectKey: "media/live.mp3", State: access.StateActive})
	e.store.put(access.Record{ResourceID: "b", ObjectKey: "media/in-grace.mp3", State: access.StateDeleted, DeletedAt: t0})
	e.store.put(access.Record{ResourceID: "c", ObjectKey: "media/purged.mp3", State: access.StatePurged})
	e.objects.Put("media/lost-notice.mp3", t0.Add(-90*day))
	e.store.put(access.Record{ResourceID: "d", ObjectKey: "media/lost-notice.mp3", State: access.StateDeleted, DeletedAt: t0.Add(-60 * day)})

	report, err := e.proc.ScanOrphans(context.Background())
	if err != nil {
		t.Fatalf("ScanOrphans: %v", err)
	}
	if report.Scanned != 6 || report.Young != 1 || report.Referenced != 2 || report.Deleted != 3 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}
	for key, want := range map[string]bool{
		"media/young-orphan.mp3": true,
		"media/old-orphan.mp3":   false,
		"media/live.mp3":         true,
		"media/in-grace.mp3":     true,
		"media/purged.mp3":       false,
		"media/lost-notice.mp3":  false,
		"other/old.mp3":          true,
	} {
		if e.objects.Has(key) != want {
			t.Errorf("%s present = %v, want %v", key, !want, want)
		}
	}
	if e.metrics.orphans != 2 {
		t.Fatalf("orphan metric = %d", e.metrics.orphans)
	}
	if last, at := e.proc.LastScan(); last.Deleted != 2 || !at.Equal(t0) {
		t.Fatalf("LastScan = %+v at %v", last, at)
	}
}

func TestScanOrphansGraceBoundary(t *testing.T) {
	e := newEnv(t, lifecycle.Config{})
	e.objects.Put("exactly-7d", t0.Add(-7*24*time.Hour))
	e.objects.Put("just-over", t0.Add(-7*24*time.Hour-time.Second))

	if _, err := e.proc.ScanOrphans(context.Background()); err != nil {
		t.Fatalf("ScanOrphans: %v", err)
	}
	if !e.objects.Has("exactly-7d") || e.objects.Has("just-over") {
		t.Fatal("orphan grace boundary not honoured")
	}
}

func TestScanOrphansCountsFailures(t *testing.T) {
	e := newEnv(t, lifecycle.Config{})
	e.objects.Put("stuck", t0.Add(-30*24*time.Hour))
	e.objects.FailDeletes("stuck", -1)

	report, err := e.proc.ScanOrphans(context.Background())
	if err != nil {
		t.Fatalf("ScanOrphans: %v", err)
	}
	if report.Failed != 1 || report.Deleted != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestScanOrphansStopsOnCancel(t *testing.T) {
	e := newEnv(t, lifecycle.Config{})
	e.objects.Put("old", t0.Add(-30*24*time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.proc.ScanOrphans(ctx); err == nil {
		t.Fatal("expected cancellation error")
	}
	if !e.objects.Has("old") {
		t.Fatal("cancelled scan deleted an object")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := lifecycle.Config{OrphanGrace: -time.Hour}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative orphan grace")
	}
	cfg = lifecycle.Config{}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.GracePeriod != 24*time.Hour || cfg.OrphanGrace != 7*24*time.Hour || cfg.ScanInterval != time.Hour {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}
