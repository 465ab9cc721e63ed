package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAttemptTimeout reports that a single attempt ran past Policy.Timeout
// while the caller's context was still live. It is retryable.
var ErrAttemptTimeout = errors.New("attempt timed out")

// Policy bundles the guards applied around one outbound call. Zero fields
// are skipped.
type Policy struct {
	// Timeout bounds each attempt.
	Timeout  time.Duration
	Retry    RetryConfig
	Breaker  *CircuitBreaker
	Bulkhead *Bulkhead
}

// Do runs fn under p. The bulkhead slot is held across retries; each attempt
// passes through the breaker and gets its own timeout.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T

	attempt := func() (T, error) {
		var out T
		call := func() error {
			actx := ctx
			if p.Timeout > 0 {
				var cancel context.CancelFunc
				actx, cancel = context.WithTimeout(ctx, p.Timeout)
				defer cancel()
			}
			v, err := fn(actx)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
					return fmt.Errorf("%w: %v", ErrAttemptTimeout, err)
				}
				return err
			}
			out = v
			return nil
		}
		var err error
		if p.Breaker != nil {
			err = p.Breaker.Execute(call)
		} else {
			err = call()
		}
		return out, err
	}

	run := func() error {
		var err error
		if p.Retry.MaxAttempts > 1 {
			result, err = Retry(ctx, p.Retry, attempt)
		} else {
			result, err = attempt()
		}
		return err
	}

	if p.Bulkhead != nil {
		return result, p.Bulkhead.Execute(ctx, run)
	}
	return result, run()
}
