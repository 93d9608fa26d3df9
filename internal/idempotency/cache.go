package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the TTL key-value store the guard claims and replays through.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// SetNX stores val only if key is absent. The returned bool is the
	// atomic claim: true means this caller owns the key.
	SetNX(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// RedisCache implements Cache on go-redis.
type RedisCache struct {
	RDB *redis.Client
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.RDB.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *RedisCache) SetNX(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error) {
	return c.RDB.SetNX(ctx, key, val, ttl).Result()
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return c.RDB.Set(ctx, key, val, ttl).Err()
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.RDB.Del(ctx, key).Err()
}
