package lifecycle_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/playurl/access"
	"github.com/kbukum/playurl/clock"
	"github.com/kbukum/playurl/kafka"
	"github.com/kbukum/playurl/kafka/producer"
	"github.com/kbukum/playurl/lifecycle"
	"github.com/kbukum/playurl/logger"
	storagetest "github.com/kbukum/playurl/storage/testutil"
)

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu      sync.Mutex
	records map[string]access.Record
	getErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]access.Record)}
}

func (s *fakeStore) put(r access.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ResourceID] = r
}

func (s *fakeStore) get(id string) access.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id]
}

func (s *fakeStore) setGetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getErr = err
}

func (s *fakeStore) GetOwner(_ context.Context, id string) (access.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return access.Record{}, false, s.getErr
	}
	r, ok := s.records[id]
	return r, ok, nil
}

func (s *fakeStore) IsObjectReferenced(_ context.Context, key string, graceCutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ObjectKey != key {
			continue
		}
		if r.State == access.StateActive || (r.State == access.StateDeleted && r.DeletedAt.After(graceCutoff)) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) MarkPurged(_ context.Context, id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[id]; ok {
		r.State = access.StatePurged
		s.records[id] = r
	}
	return nil
}

func (s *fakeStore) MarkDeleted(_ context.Context, id string, at time.Time) (access.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.records[id]
	if r.State == access.StateActive {
		r.State = access.StateDeleted
		r.DeletedAt = at
		s.records[id] = r
	}
	return r, nil
}

type fakeCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *fakeCache) Invalidate(_ context.Context, id string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, id)
	return 1, nil
}

func (c *fakeCache) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.invalidated...)
}

type captureWriter struct {
	mu   sync.Mutex
	msgs []kafkago.Message
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Stats() kafkago.WriterStats { return kafkago.WriterStats{} }
func (w *captureWriter) Close() error               { return nil }

func (w *captureWriter) topic(name string) []kafkago.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []kafkago.Message
	for _, m := range w.msgs {
		if m.Topic == name {
			out = append(out, m)
		}
	}
	return out
}

type countingMetrics struct {
	mu        sync.Mutex
	processed map[string]int
	orphans   int
	dead      map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{processed: map[string]int{}, dead: map[string]int{}}
}

func (m *countingMetrics) NoticeProcessed(_ context.Context, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[outcome]++
}

func (m *countingMetrics) OrphansDeleted(_ context.Context, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orphans += n
}

func (m *countingMetrics) DeadLettered(_ context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dead[reason]++
}

type env struct {
	proc    *lifecycle.Processor
	store   *fakeStore
	objects *storagetest.Memory
	cache   *fakeCache
	writer  *captureWriter
	clock   *clock.Fake
	metrics *countingMetrics
}

func newEnv(t *testing.T, cfg lifecycle.Config) *env {
	t.Helper()
	e := &env{
		store:   newFakeStore(),
		cache:   &fakeCache{},
		writer:  &captureWriter{},
		clock:   clock.NewFake(t0),
		metrics: newCountingMetrics(),
	}
	e.objects = storagetest.NewMemory(e.clock)
	if cfg.DeleteBackoff == 0 {
		cfg.DeleteBackoff = time.Millisecond
	}
	if cfg.DeleteRate == 0 {
		cfg.DeleteRate = 1000
	}
	proc, err := lifecycle.NewProcessor(cfg, e.store, e.objects, e.cache, newProducer(e), logger.Nop(),
		lifecycle.WithClock(e.clock), lifecycle.WithMetrics(e.metrics))
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	e.proc = proc
	return e
}

func newProducer(e *env) *producer.Producer {
	return producer.NewWithWriter(kafka.Config{Enabled: true, Brokers: []string{"localhost:9092"}}, e.writer, logger.Nop())
}

func kafkaMessage(t *testing.T, n lifecycle.Notice) kafka.Message {
	t.Helper()
	b, err := n.Encode()
	if err != nil {
		t.Fatalf("encode notice: %v", err)
	}
	return kafka.Message{Topic: "tracks.deleted", Key: n.ResourceID, Value: b}
}

// deleted stores a track deleted at the given time with its object present.
func (e *env) deleted(id string, at time.Time) lifecycle.Notice {
	key := "media/" + id + ".mp3"
	e.store.put(access.Record{
		ResourceID: id,
		OwnerID:    "owner-" + id,
		ObjectKey:  key,
		Visibility: access.VisibilityPrivate,
		State:      access.StateDeleted,
		DeletedAt:  at,
	})
	e.objects.Put(key, at.Add(-48*time.Hour))
	return lifecycle.Notice{ResourceID: id, ObjectKey: key, OwnerID: "owner-" + id, DeletedAt: at}
}

func (e *env) deadLetters(t *testing.T) []lifecycle.DeadLetter {
	t.Helper()
	var out []lifecycle.DeadLetter
	for _, m := range e.writer.topic(e.proc.Config().DeadLetterTopic) {
		var dl lifecycle.DeadLetter
		if err := json.Unmarshal(m.Value, &dl); err != nil {
			t.Fatalf("decode dead letter: %v", err)
		}
		out = append(out, dl)
	}
	return out
}
