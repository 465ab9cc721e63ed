package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/playurl/kafka"
	"github.com/kbukum/playurl/logger"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafkago.Message
	fetchErrs []error
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafkago.Message{}, err
	}
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Stats() kafkago.ReaderStats { return kafkago.ReaderStats{} }

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumeCommitsAfterHandler(t *testing.T) {
	reader := &fakeReader{
		queue: []kafkago.Message{
			{Topic: "notices", Offset: 1, Value: []byte("a")},
			{Topic: "notices", Offset: 2, Value: []byte("b")},
		},
		fetchErrs: []error{errors.New("connection reset")},
	}
	c := NewWithReader(reader, "notices", "g", logger.Nop())
	c.sleep = func(context.Context, time.Duration) error { return nil }

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var seen []string
	handler := func(_ context.Context, msg kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(msg.Value))
		if len(seen) == 2 {
			cancel()
		}
		if msg.Offset == 1 {
			return errors.New("handler failed")
		}
		return nil
	}

	err := AsRunner(c, handler).Consume(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Errorf("unexpected handled values %v", seen)
	}
	commits := reader.commits()
	if len(commits) < 1 || commits[0] != 1 {
		t.Errorf("expected failed message to be committed after logging, got %v", commits)
	}
}

func TestRunnerTopic(t *testing.T) {
	c := NewWithReader(&fakeReader{}, "notices", "g", logger.Nop())
	if AsRunner(c, nil).Topic() != "notices" {
		t.Error("unexpected topic")
	}
}
