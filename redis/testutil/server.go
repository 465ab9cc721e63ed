package testutil

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/kbukum/playurl/logger"
	"github.com/kbukum/playurl/redis"
)

// Server is a miniredis instance plus clients bound to it.
type Server struct {
	Mini    *miniredis.Miniredis
	Client  *redis.Client
	Backend *redis.Backend
}

// New starts a miniredis server that is shut down when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mini.Close)

	cfg := redis.Config{
		Enabled:     true,
		Addr:        mini.Addr(),
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	}
	client, err := redis.New(cfg, logger.Nop())
	if err != nil {
		t.Fatalf("failed to create redis client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return &Server{Mini: mini, Client: client, Backend: redis.NewBackend(client)}
}

// DelayQueue returns a delay queue on this server.
func (s *Server) DelayQueue(key string) *redis.DelayQueue {
	return redis.NewDelayQueue(s.Client, key)
}

// Outage stops the server so every subsequent call fails to connect.
func (s *Server) Outage() {
	s.Mini.Close()
}

// FastForward expires keys as if d had passed.
func (s *Server) FastForward(d time.Duration) {
	s.Mini.FastForward(d)
}

// Keys lists every key currently stored.
func (s *Server) Keys() []string {
	return s.Mini.Keys()
}
