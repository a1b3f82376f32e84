package usecase

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache abstracts the Redis operations used for memoising stats reads.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// ErrCacheMiss is returned by Cache.Get when the key is absent.
var ErrCacheMiss = redis.Nil

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a cached value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// Del removes keys from Redis.
func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// NopCache never stores anything; every Get misses.
type NopCache struct{}

func (NopCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (NopCache) Get(context.Context, string) (string, error)                   { return "", ErrCacheMiss }
func (NopCache) Del(context.Context, ...string) error                          { return nil }
