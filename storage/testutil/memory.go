package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbukum/playurl/clock"
	"github.com/kbukum/playurl/storage"
)

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("storage testutil: injected failure")

// Memory is an in-memory storage.Storage.
type Memory struct {
	mu      sync.Mutex
	objects map[string]storage.ObjectInfo
	deleted []string
	clock   clock.Clock

	signCalls   atomic.Int64
	signDelay   time.Duration
	signErr     error
	deleteFails map[string]int
}

var _ storage.Storage = (*Memory)(nil)

// NewMemory creates an empty store whose signed URLs expire relative to c.
func NewMemory(c clock.Clock) *Memory {
	return &Memory{
		objects:     make(map[string]storage.ObjectInfo),
		clock:       clock.OrReal(c),
		deleteFails: make(map[string]int),
	}
}

// Put adds an object last modified at mod.
func (m *Memory) Put(key string, mod time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = storage.ObjectInfo{Key: key, LastModified: mod}
}

// Has reports whether key is stored.
func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// Deleted returns the keys removed so far, in order.
func (m *Memory) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// SignCalls returns how many times SignedURL was called.
func (m *Memory) SignCalls() int64 { return m.signCalls.Load() }

// SetSignDelay makes SignedURL sleep for d (or until ctx is done).
func (m *Memory) SetSignDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signDelay = d
}

// SetSignError makes SignedURL fail with err until cleared with nil.
func (m *Memory) SetSignError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signErr = err
}

// FailDeletes makes the next n deletes of key fail with ErrInjected.
// A negative n fails every delete.
func (m *Memory) FailDeletes(key string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteFails[key] = n
}

// SignedURL returns memory://key?exp=<unix nanos>.
func (m *Memory) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	m.signCalls.Add(1)

	m.mu.Lock()
	delay, err := m.signDelay, m.signErr
	m.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", time.Time{}, ctx.Err()
		}
	}
	if err != nil {
		return "", time.Time{}, err
	}
	exp := m.clock.Now().Add(ttl)
	return fmt.Sprintf("memory://%s?exp=%d", key, exp.UnixNano()), exp, nil
}

// Upload stores the object, discarding its content.
func (m *Memory) Upload(_ context.Context, key string, r io.Reader) error {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return err
	}
	m.Put(key, m.clock.Now())
	return nil
}

// Exists reports whether key is stored.
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	return m.Has(key), nil
}

// Delete removes key, honouring FailDeletes.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n, ok := m.deleteFails[key]; ok && n != 0 {
		if n > 0 {
			m.deleteFails[key] = n - 1
		}
		return ErrInjected
	}
	if _, ok := m.objects[key]; !ok {
		return storage.ErrNotFound
	}
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

// Walk visits matching objects in key order over a snapshot, so fn may
// delete while walking.
func (m *Memory) Walk(ctx context.Context, prefix string, fn func(storage.ObjectInfo) error) error {
	m.mu.Lock()
	var objs []storage.ObjectInfo
	for k, o := range m.objects {
		if strings.HasPrefix(k, prefix) {
			objs = append(objs, o)
		}
	}
	m.mu.Unlock()

	sort.Slice(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })
	for _, o := range objs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(o); err != nil {
			return err
		}
	}
	return nil
}
