package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/i474232898/road-weather/internal/weather"
)

// RedisCache stores entries as JSON strings whose Redis TTL matches the
// entry's risk-based lifetime, so Redis handles expiry.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache creates a RedisCache. Keys look like "<prefix>:<cache key>".
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "weather"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(k string) string {
	return c.prefix + ":" + k
}

func (c *RedisCache) Get(ctx context.Context, key string) (weather.CacheEntry, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return weather.CacheEntry{}, weather.ErrCacheMiss
	}
	if err != nil {
		return weather.CacheEntry{}, fmt.Errorf("redis get %s: %w", key, err)
	}

	var entry weather.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return weather.CacheEntry{}, fmt.Errorf("decode cached entry %s: %w", key, err)
	}
	return entry, nil
}

func (c *RedisCache) Set(ctx context.Context, entry weather.CacheEntry) error {
	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", entry.Key, err)
	}
	if err := c.client.Set(ctx, c.key(entry.Key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", entry.Key, err)
	}
	return nil
}
