package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/screener/internal/domain"
	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces screener entries in a shared Redis.
const keyPrefix = "screener:"

// RedisCache implements Cache using Redis. Expiry is left to Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, keyPrefix+key, value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, keyPrefix+key).Err()
}

// GetRecords retrieves a cached record list.
func (c *RedisCache) GetRecords(ctx context.Context, key string) ([]domain.Record, error) {
	data, err := c.Get(ctx, key)
	if err != nil || data == nil {
		return nil, err
	}
	return decodeRecords(data)
}

// SetRecords caches a record list.
func (c *RedisCache) SetRecords(ctx context.Context, key string, records []domain.Record, ttl time.Duration) error {
	data, err := encodeRecords(records)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}

// Purge is a no-op; Redis expires keys itself.
func (c *RedisCache) Purge(ctx context.Context) int {
	return 0
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
