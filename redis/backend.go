package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// scanCount is the COUNT hint for pattern deletes.
const scanCount = 256

// Backend is a byte-oriented key-value store on top of Client.
type Backend struct {
	rdb goredis.UniversalClient
}

// NewBackend creates a Backend over client.
func NewBackend(client *Client) *Backend {
	return &Backend{rdb: client.Unwrap()}
}

// NewBackendFromClient creates a Backend over an existing go-redis client.
func NewBackendFromClient(rdb goredis.UniversalClient) *Backend {
	return &Backend{rdb: rdb}
}

// Get returns the value stored at key. A missing key is (nil, false, nil).
func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classify("get", key, err)
	}
	return val, true, nil
}

// Set stores value at key for ttl. ttl must be positive; records without
// an expiry are never written.
func (b *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return classify("set", key, b.rdb.Set(ctx, key, value, ttl).Err())
}

// Delete removes every key matching the glob pattern and returns how many
// were removed. A pattern without glob characters deletes that single key.
func (b *Backend) Delete(ctx context.Context, pattern string) (int, error) {
	if !strings.ContainsAny(pattern, "*?[") {
		n, err := b.rdb.Del(ctx, pattern).Result()
		return int(n), classify("del", pattern, err)
	}

	deleted := 0
	var cursor uint64
	for {
		keys, next, err := b.rdb.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return deleted, classify("scan", pattern, err)
		}
		if len(keys) > 0 {
			n, err := b.rdb.Del(ctx, keys...).Result()
			deleted += int(n)
			if err != nil {
				return deleted, classify("del", pattern, err)
			}
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}
