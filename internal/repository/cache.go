package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when a cache key is not found
var ErrCacheMiss = errors.New("cache miss")

// CacheKeyPrefix namespaces every key written by Cache
const CacheKeyPrefix = "catalog:"

// Cache stores catalog responses in Redis as JSON
type Cache struct {
	client     *redis.Client
	defaultTTL time.Duration
}

// NewCache creates a Cache on an existing client
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		client:     client,
		defaultTTL: ttl,
	}
}

// Get decodes the value stored under key into dest
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, CacheKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("redis get error: %w", err)
	}

	if err := json.Unmarshal(val, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return nil
}

// Set stores value under key. A zero ttl uses the cache default.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if err := c.client.Set(ctx, CacheKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Purge deletes the cached keys matching pattern ("*" for everything)
func (c *Cache) Purge(ctx context.Context, pattern string) (int64, error) {
	if pattern == "" {
		pattern = "*"
	}
	return deleteMatching(ctx, c.client, CacheKeyPrefix+pattern)
}

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
