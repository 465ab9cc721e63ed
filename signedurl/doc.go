// Package signedurl issues playback URLs for tracks.
//
// Generate checks access, clamps the requested lifetime and serves the URL
// from the single-flight cache, calling the storage signer on a miss. Cached
// records live for CacheTTLRatio of the URL lifetime (jittered by the cache),
// so a cached URL always has most of its validity left when served.
// Invalidate drops every cached URL for a track regardless of owner scope.
//
// Generator calls run under a resilience.Policy: per-attempt timeout,
// bounded retry, a circuit breaker and a bulkhead. An open breaker surfaces
// as GENERATOR_UNAVAILABLE (503) so callers can tell "try again shortly"
// from "you are not allowed".
package signedurl
