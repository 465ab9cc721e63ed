// Package storage defines the object-store contract playurl needs: signing
// time-limited read URLs for an object key, deleting objects, and walking a
// key prefix with last-modified times for the orphan scan.
//
// Providers register themselves by name. Import the ones the binary needs:
//
//	import (
//	    _ "github.com/kbukum/playurl/storage/local"
//	    _ "github.com/kbukum/playurl/storage/s3"
//	)
//
//	st, err := storage.New(cfg, &s3Cfg, storage.Deps{Log: log})
package storage
