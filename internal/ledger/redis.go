package ledger

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "remindd:marker:"

// RedisMarkers keeps durable markers in Redis without expiry.
type RedisMarkers struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisMarkers(rdb *redis.Client, prefix string) *RedisMarkers {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisMarkers{rdb: rdb, prefix: prefix}
}

func (r *RedisMarkers) Has(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (r *RedisMarkers) Set(ctx context.Context, key string) error {
	if err := r.rdb.Set(ctx, r.prefix+key, "1", 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
