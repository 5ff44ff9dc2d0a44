package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching quote payloads.
// Supports two-phase caching: local LRU in front of Redis.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetRecords retrieves a cached record list. Returns nil, nil on a miss.
	GetRecords(ctx context.Context, key string) ([]Record, error)

	// SetRecords caches a record list.
	SetRecords(ctx context.Context, key string, records []Record, ttl time.Duration) error

	// Purge drops expired entries and returns how many were removed.
	Purge(ctx context.Context) int

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Cache key kinds and their lifetimes.
const (
	CacheKindIndices      = "indices"
	CacheKindStockList    = "stockList"
	CacheKindFilterResult = "filterResult"

	TTLIndices      = 30 * time.Second
	TTLStockList    = 60 * time.Second
	TTLFilterResult = 30 * time.Second
)

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis

	// PurgeSchedule is the cron spec for dropping expired local entries.
	PurgeSchedule string
}
