package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/phishguard/phishguard/internal/core"
)

// redisKeyPrefix namespaces cache entries in a shared Redis instance.
const redisKeyPrefix = "pg_cache:"

// RedisCache is a Redis implementation of the ResultCache interface. Entries
// carry a server-side TTL, so Cleanup has nothing to sweep.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(addr, password string, db int, logger *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return &RedisCache{
		client: client,
		logger: logger,
	}, nil
}

// Get retrieves a cached result for a content key.
func (c *RedisCache) Get(ctx context.Context, key string) (*core.AnalysisResult, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Error("Failed to query cache", zap.Error(err), zap.String("key", key))
		}
		return nil, false
	}

	var result core.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		c.logger.Error("Failed to decode cached result", zap.Error(err), zap.String("key", key))
		return nil, false
	}
	return &result, true
}

// Set stores a result with a server-side TTL, always overwriting.
func (c *RedisCache) Set(ctx context.Context, key string, result *core.AnalysisResult, ttl time.Duration) {
	raw, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("Failed to encode result for cache", zap.Error(err), zap.String("key", key))
		return
	}

	if err := c.client.Set(ctx, redisKeyPrefix+key, raw, ttl).Err(); err != nil {
		c.logger.Error("Failed to insert cache entry", zap.Error(err), zap.String("key", key))
	}
}

// Cleanup is a no-op; Redis expires entries server-side.
func (c *RedisCache) Cleanup(ctx context.Context) error {
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
