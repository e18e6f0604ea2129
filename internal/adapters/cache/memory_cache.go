// Package cache provides the result-cache backends: in-memory, SQLite,
// MySQL and Redis, all keyed by the email content hash.
package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/phishguard/phishguard/internal/core"
)

// MemoryCache is the in-memory implementation of the ResultCache interface.
type MemoryCache struct {
	entries map[string]*core.CacheEntry
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache(logger *zap.Logger) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*core.CacheEntry),
		logger:  logger,
	}
}

// Get retrieves a cached result. Expired entries are treated as misses but
// left in place; eviction belongs to Cleanup.
func (c *MemoryCache) Get(ctx context.Context, key string) (*core.AnalysisResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		return nil, false
	}
	return entry.Result, true
}

// Set stores a result under key, always overwriting.
func (c *MemoryCache) Set(ctx context.Context, key string, result *core.AnalysisResult, ttl time.Duration) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &core.CacheEntry{
		Key:       key,
		Result:    result,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// Cleanup removes expired entries.
func (c *MemoryCache) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	expiredCount := 0
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
			expiredCount++
		}
	}

	c.logger.Debug("Cleaned up expired cache entries", zap.Int("expired_count", expiredCount))
	return nil
}
