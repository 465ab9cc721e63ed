// Package resilience guards calls to slow or failing dependencies.
//
//   - CircuitBreaker fails fast once a dependency keeps failing
//   - Retry re-runs an operation with exponential backoff
//   - Bulkhead caps the number of concurrent calls
//   - RateLimiter paces calls with a token bucket
//
// Policy composes them for a single call site:
//
//	p := resilience.Policy{
//	    Timeout:  2 * time.Second,
//	    Retry:    resilience.DefaultRetryConfig(),
//	    Breaker:  resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("signer")),
//	    Bulkhead: resilience.NewBulkhead(resilience.BulkheadConfig{Name: "signer", MaxConcurrent: 64}),
//	}
//	url, err := resilience.Do(ctx, p, func(ctx context.Context) (string, error) {
//	    u, _, err := signer.SignedURL(ctx, key, ttl)
//	    return u, err
//	})
//
// Breaker and rate limiter read time through a clock.Clock so tests can move
// time explicitly.
package resilience
