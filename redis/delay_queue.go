package redis

import (
	"context"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DelayQueue schedules opaque payloads for later delivery using a sorted
// set scored by due time in Unix milliseconds. Several processes may poll
// the same queue; ZREM decides which of them owns each due member.
type DelayQueue struct {
	rdb goredis.UniversalClient
	key string
}

// NewDelayQueue creates a queue stored under key.
func NewDelayQueue(client *Client, key string) *DelayQueue {
	return &DelayQueue{rdb: client.Unwrap(), key: key}
}

// NewDelayQueueFromClient creates a queue over an existing go-redis client.
func NewDelayQueueFromClient(rdb goredis.UniversalClient, key string) *DelayQueue {
	return &DelayQueue{rdb: rdb, key: key}
}

// Schedule makes payload due at the given time. Scheduling an identical
// payload again moves its due time.
func (q *DelayQueue) Schedule(ctx context.Context, payload []byte, at time.Time) error {
	err := q.rdb.ZAdd(ctx, q.key, goredis.Z{
		Score:  float64(at.UnixMilli()),
		Member: string(payload),
	}).Err()
	return classify("zadd", q.key, err)
}

// Claim removes and returns up to limit payloads due at or before now.
// A payload claimed by another process in the meantime is not returned.
func (q *DelayQueue) Claim(ctx context.Context, now time.Time, limit int64) ([][]byte, error) {
	members, err := q.rdb.ZRangeByScore(ctx, q.key, &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, classify("zrangebyscore", q.key, err)
	}

	claimed := make([][]byte, 0, len(members))
	for _, m := range members {
		n, err := q.rdb.ZRem(ctx, q.key, m).Result()
		if err != nil {
			return claimed, classify("zrem", q.key, err)
		}
		if n == 1 {
			claimed = append(claimed, []byte(m))
		}
	}
	return claimed, nil
}

// Len returns the number of scheduled payloads.
func (q *DelayQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.ZCard(ctx, q.key).Result()
	return n, classify("zcard", q.key, err)
}
