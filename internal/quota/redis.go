package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisRetention keeps a day's hash around long enough to be read across
// the UTC date boundary.
const redisRetention = 48 * time.Hour

// RedisCounter stores counters in one hash per date and provider, with one
// field per endpoint. HINCRBY keeps increments atomic across instances.
type RedisCounter struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCounter creates a RedisCounter. Keys look like "<prefix>:<date>:<provider>".
func NewRedisCounter(client redis.UniversalClient, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "quota"
	}
	return &RedisCounter{client: client, prefix: prefix}
}

func (r *RedisCounter) hashKey(date, provider string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, date, provider)
}

func (r *RedisCounter) Increment(ctx context.Context, key Key) (int64, error) {
	hk := r.hashKey(key.Date, key.Provider)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, hk, key.Endpoint, 1)
		pipe.Expire(ctx, hk, redisRetention)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis hincrby %s: %w", hk, err)
	}
	return incr.Val(), nil
}

func (r *RedisCounter) Usage(ctx context.Context, date, provider string) (int64, error) {
	hk := r.hashKey(date, provider)
	vals, err := r.client.HVals(ctx, hk).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hvals %s: %w", hk, err)
	}

	var total int64
	for _, v := range vals {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("redis counter %s holds %q: %w", hk, v, err)
		}
		total += n
	}
	return total, nil
}
