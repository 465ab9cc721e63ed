package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when the object does not exist.
var ErrNotFound = errors.New("storage: object not found")

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Signer issues time-limited read URLs.
type Signer interface {
	// SignedURL returns a URL for key valid for ttl, and the instant it
	// stops being valid.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (url string, expiresAt time.Time, err error)
}

// ObjectStore deletes and enumerates objects.
type ObjectStore interface {
	// Delete removes the object at key. Returns ErrNotFound if it is absent.
	Delete(ctx context.Context, key string) error

	// Walk calls fn for every object whose key starts with prefix. Returning
	// an error from fn stops the walk and Walk returns that error.
	Walk(ctx context.Context, prefix string, fn func(ObjectInfo) error) error
}

// Storage is implemented by every provider.
type Storage interface {
	Signer
	ObjectStore

	// Upload writes data from reader to key.
	Upload(ctx context.Context, key string, reader io.Reader) error

	// Exists checks whether an object exists at key.
	Exists(ctx context.Context, key string) (bool, error)
}
