// Package cache is a read-through cache with per-key single flight.
//
// GetOrCreate returns a cached value while it is still valid (now + margin
// before its own expiry). On a miss exactly one caller per key and process
// runs the factory; concurrent callers for the same key wait on a
// reference-counted lock and receive the same outcome. When the backend is
// unreachable (a *redis.BackendError) the cache degrades to calling the
// factory directly and counts a fallback.
//
//	c := cache.New[signedurl.Record](backend, cfg, log,
//		cache.WithRecorder(metrics),
//		cache.WithCodec(cache.EncryptedCodec(enc)))
//	rec, err := c.GetOrCreate(ctx, key, ttl, generate)
package cache
