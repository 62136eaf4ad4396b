package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opensafely-core/reports/common/logger"
)

// RedisCache is a Redis-backed cache implementation, for deployments where
// cached upstream responses must be shared across processes
type RedisCache struct {
	redis *redis.Client
	log   *logger.Logger
}

// NewRedisCache creates a new Redis-backed cache
func NewRedisCache(redisClient *redis.Client, log *logger.Logger) *RedisCache {
	return &RedisCache{
		redis: redisClient,
		log:   log,
	}
}

// Get retrieves a value by key
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		c.log.Error("redis GET failed", "key", key, "error", err)
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores a value with TTL. A zero ttl means no expiration.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		c.log.Error("redis SET failed", "key", key, "error", err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	c.log.Debug("redis SET", "key", key, "ttl", ttl)
	return nil
}

// Delete removes a key
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		c.log.Error("redis DEL failed", "key", key, "error", err)
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// DeleteMatching removes every key containing substr, case-insensitively.
// Keys are URLs, so the scan iterates the whole keyspace rather than relying
// on a glob pattern, which could not express case-insensitive matching.
func (c *RedisCache) DeleteMatching(ctx context.Context, substr string) (int, error) {
	needle := strings.ToLower(substr)
	removed := 0

	iter := c.redis.Scan(ctx, 0, "*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if !strings.Contains(strings.ToLower(key), needle) {
			continue
		}
		if err := c.redis.Del(ctx, key).Err(); err != nil {
			c.log.Error("redis DEL failed", "key", key, "error", err)
			return removed, fmt.Errorf("failed to delete key %s: %w", key, err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		c.log.Error("redis SCAN failed", "error", err)
		return removed, fmt.Errorf("failed to scan keys: %w", err)
	}

	c.log.Debug("redis cache cleared", "substr", substr, "removed", removed)
	return removed, nil
}

// Close closes the underlying Redis connection
func (c *RedisCache) Close() error {
	return c.redis.Close()
}
