package redisx

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV is a thin string view of Redis. The status cache and the consumer
// dedup markers go through it so their callers can be tested against an
// in-memory map.
type KV struct {
	RDB *redis.Client
}

func (kv *KV) Get(ctx context.Context, key string) (string, bool, error) {
	s, err := kv.RDB.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

func (kv *KV) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	return kv.RDB.Set(ctx, key, val, ttl).Err()
}
