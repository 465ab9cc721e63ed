// Package redis wraps go-redis for playurl.
//
// Client owns the connection pool. Backend is the byte-oriented key-value
// store the single-flight cache runs on; every failure it returns for an
// unreachable or slow server is a *BackendError wrapping ErrUnavailable or
// ErrTimeout, which is the closed set of errors callers may degrade on.
// DelayQueue is a sorted-set schedule used to redeliver lifecycle notices
// once their grace period ends.
//
//	comp := redis.NewComponent(cfg, log)
//	_ = comp.Start(ctx)
//	backend := redis.NewBackend(comp.Client())
//	queue := redis.NewDelayQueue(comp.Client(), "lifecycle:delayed")
package redis
