package lifecycle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kbukum/playurl/access"
	"github.com/kbukum/playurl/component"
	"github.com/kbukum/playurl/kafka"
	"github.com/kbukum/playurl/lifecycle"
	"github.com/kbukum/playurl/logger"
	redistest "github.com/kbukum/playurl/redis/testutil"
)

func newRunner(t *testing.T, cfg lifecycle.Config) (*env, *lifecycle.Runner, *redistest.Server) {
	t.Helper()
	e := newEnv(t, cfg)
	srv := redistest.New(t)
	return e, lifecycle.NewRunner(e.proc, srv.DelayQueue("lifecycle:test"), logger.Nop()), srv
}

func queued(t *testing.T, srv *redistest.Server) []string {
	t.Helper()
	members, err := srv.Mini.ZMembers("lifecycle:test")
	if err != nil {
		return nil
	}
	return members
}

func TestRunnerParksDeferredNoticeUntilGraceEnds(t *testing.T) {
	e, r, srv := newRunner(t, lifecycle.Config{})
	n := e.deleted("t1", t0.Add(-2*time.Hour))
	ctx := context.Background()

	if err := r.HandleMessage(ctx, kafkaMessage(t, n)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if got := queued(t, srv); len(got) != 1 {
		t.Fatalf("queued = %v, want the deferred notice", got)
	}
	score, _ := srv.Mini.ZScore("lifecycle:test", queued(t, srv)[0])
	if want := float64(n.DeletedAt.Add(24 * time.Hour).UnixMilli()); score != want {
		t.Fatalf("due at %v, want %v", score, want)
	}

	// Redelivery of the same notice does not duplicate the queued entry.
	if err := r.HandleMessage(ctx, kafkaMessage(t, n)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if got := queued(t, srv); len(got) != 1 {
		t.Fatalf("queued = %d entries after redelivery", len(got))
	}

	e.clock.Advance(21 * time.Hour)
	if claimed, err := r.Poll(ctx); err != nil || claimed != 0 {
		t.Fatalf("early poll claimed %d, err %v", claimed, err)
	}
	if !e.objects.Has(n.ObjectKey) {
		t.Fatal("object deleted before grace end")
	}

	e.clock.Advance(time.Hour)
	claimed, err := r.Poll(ctx)
	if err != nil || claimed != 1 {
		t.Fatalf("poll claimed %d, err %v", claimed, err)
	}
	if e.objects.Has(n.ObjectKey) || e.store.get("t1").State != access.StatePurged {
		t.Fatal("due notice was not processed")
	}
	if got := queued(t, srv); len(got) != 0 {
		t.Fatalf("queue not drained: %v", got)
	}
}

func TestRunnerRejectsUndecodableMessage(t *testing.T) {
	e, r, _ := newRunner(t, lifecycle.Config{})
	if err := r.HandleMessage(context.Background(), kafka.Message{Value: []byte("{not json")}); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	dls := e.deadLetters(t)
	if len(dls) != 1 || dls[0].Reason != lifecycle.ReasonInvalidNotice || dls[0].Raw != "{not json" {
		t.Fatalf("dead letters = %+v", dls)
	}
}

func TestRunnerReschedulesTransientFailure(t *testing.T) {
	e, r, srv := newRunner(t, lifecycle.Config{RetryDelay: 5 * time.Minute})
	n := e.deleted("t1", t0.Add(-48*time.Hour))
	e.store.setGetErr(errors.New("db unavailable"))
	ctx := context.Background()

	if err := r.Dispatch(ctx, n); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	members := queued(t, srv)
	if len(members) != 1 {
		t.Fatalf("queued = %v", members)
	}
	parked, err := lifecycle.DecodeNotice([]byte(members[0]))
	if err != nil || parked.Attempts != 1 {
		t.Fatalf("parked notice %+v, %v", parked, err)
	}

	e.store.setGetErr(nil)
	e.clock.Advance(5 * time.Minute)
	if claimed, err := r.Poll(ctx); err != nil || claimed != 1 {
		t.Fatalf("poll claimed %d, err %v", claimed, err)
	}
	if e.store.get("t1").State != access.StatePurged {
		t.Fatal("retried notice not processed")
	}
}

func TestRunnerGivesUpAfterMaxRedeliveries(t *testing.T) {
	e, r, srv := newRunner(t, lifecycle.Config{MaxRedeliveries: 2})
	n := e.deleted("t1", t0.Add(-48*time.Hour))
	n.Attempts = 1
	e.store.setGetErr(errors.New("db unavailable"))

	if err := r.Dispatch(context.Background(), n); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := queued(t, srv); len(got) != 0 {
		t.Fatalf("notice requeued after giving up: %v", got)
	}
	dls := e.deadLetters(t)
	if len(dls) != 1 || dls[0].Reason != lifecycle.ReasonRetryExceeded || dls[0].Attempts != 2 {
		t.Fatalf("dead letters = %+v", dls)
	}
}

func TestRunnerDeadLettersWhenQueueDown(t *testing.T) {
	e, r, srv := newRunner(t, lifecycle.Config{})
	n := e.deleted("t1", t0.Add(-time.Hour))
	srv.Outage()

	if err := r.Dispatch(context.Background(), n); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	dls := e.deadLetters(t)
	if len(dls) != 1 || dls[0].Reason != lifecycle.ReasonScheduleLost {
		t.Fatalf("dead letters = %+v", dls)
	}
}

func TestRunnerComponent(t *testing.T) {
	_, r, srv := newRunner(t, lifecycle.Config{PollInterval: 10 * time.Millisecond})
	ctx := context.Background()

	if h := r.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Fatalf("health before start = %s", h.Status)
	}
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h := r.Health(ctx)
	if h.Status != component.StatusHealthy || h.Details["deferred"] != int64(0) {
		t.Fatalf("health = %+v", h)
	}

	srv.Outage()
	if h := r.Health(ctx); h.Status != component.StatusDegraded {
		t.Fatalf("health with queue down = %s", h.Status)
	}
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestAnnouncerMarkDeleted(t *testing.T) {
	e, r, srv := newRunner(t, lifecycle.Config{})
	e.store.put(access.Record{ResourceID: "t1", OwnerID: "alice", ObjectKey: "media/t1.mp3", State: access.StateActive})
	e.objects.Put("media/t1.mp3", t0.Add(-time.Hour))
	a := lifecycle.NewAnnouncer(e.store, e.cache, r, e.clock, logger.Nop())
	ctx := context.Background()

	n, err := a.MarkDeleted(ctx, "t1")
	if err != nil {
		t.Fatalf("MarkDeleted: %v", err)
	}
	if n.ResourceID != "t1" || n.OwnerID != "alice" || !n.DeletedAt.Equal(t0) {
		t.Fatalf("notice = %+v", n)
	}
	if e.store.get("t1").State != access.StateDeleted {
		t.Fatal("record not marked deleted")
	}
	if got := e.cache.calls(); len(got) != 1 {
		t.Fatalf("invalidations = %v", got)
	}
	if got := queued(t, srv); len(got) != 1 {
		t.Fatalf("queued = %v", got)
	}

	e.clock.Advance(time.Hour)
	again, err := a.MarkDeleted(ctx, "t1")
	if err != nil || !again.DeletedAt.Equal(t0) {
		t.Fatalf("repeat MarkDeleted = %+v, %v", again, err)
	}
	if got := queued(t, srv); len(got) != 1 {
		t.Fatalf("repeat announcement duplicated the queued notice: %v", got)
	}
}

func TestKafkaNotifier(t *testing.T) {
	e := newEnv(t, lifecycle.Config{})
	pub := newProducer(e)
	k := lifecycle.NewKafkaNotifier(pub, "tracks.deleted")

	n := lifecycle.Notice{ResourceID: "t1", ObjectKey: "media/t1.mp3", DeletedAt: t0}
	if err := k.Notify(context.Background(), n); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	msgs := e.writer.topic("tracks.deleted")
	if len(msgs) != 1 || string(msgs[0].Key) != "t1" {
		t.Fatalf("messages = %+v", msgs)
	}
	got, err := lifecycle.DecodeNotice(msgs[0].Value)
	if err != nil || got.ResourceID != "t1" || !got.DeletedAt.Equal(t0) {
		t.Fatalf("decoded %+v, %v", got, err)
	}
}
