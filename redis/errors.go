package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
)

// Degradation kinds. A *BackendError always wraps exactly one of them.
var (
	ErrUnavailable = errors.New("redis: backend unavailable")
	ErrTimeout     = errors.New("redis: backend timeout")
)

// BackendError reports that Redis could not be reached or did not answer in
// time. It is the only error type callers should degrade on.
type BackendError struct {
	Op   string
	Key  string
	Kind error
	Err  error
}

func (e *BackendError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("redis %s %q: %v: %v", e.Op, e.Key, e.Kind, e.Err)
	}
	return fmt.Sprintf("redis %s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the underlying cause to errors.Is.
func (e *BackendError) Unwrap() []error { return []error{e.Kind, e.Err} }

// IsDegraded reports whether err means the backend is unreachable or slow.
func IsDegraded(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// classify maps a go-redis error onto a *BackendError when it indicates an
// outage, and wraps it plainly otherwise. Caller cancellation is returned
// unchanged.
func classify(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	kind := outageKind(err)
	if kind == nil {
		return fmt.Errorf("redis %s: %w", op, err)
	}
	return &BackendError{Op: op, Key: key, Kind: kind, Err: err}
}

func outageKind(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return ErrTimeout
		}
		return ErrUnavailable
	}
	switch {
	case errors.Is(err, goredis.ErrClosed),
		errors.Is(err, goredis.ErrPoolTimeout),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return ErrUnavailable
	}
	for _, prefix := range []string{"LOADING", "READONLY", "MASTERDOWN", "CLUSTERDOWN", "TRYAGAIN"} {
		if goredis.HasErrorPrefix(err, prefix) {
			return ErrUnavailable
		}
	}
	return nil
}
