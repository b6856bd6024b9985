package distance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Connect parses redisURL, creates a client, and verifies connectivity with a ping.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}

const keyPrefix = "distance:"

// RedisCache is the hot path in front of the persistent distance store.
// Entries carry no TTL: hotspot coordinates are immutable reference data, so
// values never go stale. A coordinate change invalidates everything via
// InvalidateAll.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an already connected client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func redisKey(k Key) string {
	return fmt.Sprintf("%s%d:%d:%s", keyPrefix, k.FromID, k.ToID, k.Class)
}

// Get retrieves a cached leg. Returns nil, nil on a miss (not an error).
func (c *RedisCache) Get(ctx context.Context, k Key) (*Entry, error) {
	val, err := c.client.Get(ctx, redisKey(k)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get for pair %d->%d: %w", k.FromID, k.ToID, err)
	}

	var e Entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return nil, fmt.Errorf("unmarshaling cached entry for pair %d->%d: %w", k.FromID, k.ToID, err)
	}
	return &e, nil
}

// Set stores one entry without expiry.
func (c *RedisCache) Set(ctx context.Context, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling entry for pair %d->%d: %w", e.FromID, e.ToID, err)
	}

	if err := c.client.Set(ctx, redisKey(e.Key()), b, 0).Err(); err != nil {
		return fmt.Errorf("cache set for pair %d->%d: %w", e.FromID, e.ToID, err)
	}
	return nil
}

// InvalidateAll removes every cached distance entry. Called out-of-band when
// hotspot coordinates change.
func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("cache delete %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning distance keys: %w", err)
	}
	return nil
}
