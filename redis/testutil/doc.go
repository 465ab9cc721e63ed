// Package testutil starts an in-memory Redis (miniredis) wired to a real
// playurl redis.Client, for packages whose tests need a cache backend or a
// delay queue.
//
//	srv := testutil.New(t)
//	c := cache.New[signedurl.Record](srv.Backend, cache.Config{}, log)
//	srv.Outage() // every later call fails with redis.ErrUnavailable
package testutil
