package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/phishguard/phishguard/internal/core"
)

// SQLiteCache is a SQLite implementation of the ResultCache interface.
type SQLiteCache struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteCache creates a new SQLite cache.
func NewSQLiteCache(dbPath string, logger *zap.Logger) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS analysis_cache (
			content_key TEXT PRIMARY KEY,
			result TEXT,
			stored_at TIMESTAMP,
			expires_at TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_analysis_cache_expires_at ON analysis_cache(expires_at)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &SQLiteCache{
		db:     db,
		logger: logger,
	}, nil
}

// Get retrieves a cached result for a content key.
func (c *SQLiteCache) Get(ctx context.Context, key string) (*core.AnalysisResult, bool) {
	var raw string

	err := c.db.QueryRowContext(ctx, `
		SELECT result
		FROM analysis_cache
		WHERE content_key = ? AND expires_at > ?
	`, key, time.Now().Format(time.RFC3339)).Scan(&raw)

	if err != nil {
		if err != sql.ErrNoRows {
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

// Set stores a result, always overwriting.
func (c *SQLiteCache) Set(ctx context.Context, key string, result *core.AnalysisResult, ttl time.Duration) {
	raw, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("Failed to encode result for cache", zap.Error(err), zap.String("key", key))
		return
	}

	now := time.Now()
	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO analysis_cache (content_key, result, stored_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, key, string(raw), now.Format(time.RFC3339), now.Add(ttl).Format(time.RFC3339))

	if err != nil {
		c.logger.Error("Failed to insert cache entry", zap.Error(err), zap.String("key", key))
	}
}

// Cleanup removes expired entries.
func (c *SQLiteCache) Cleanup(ctx context.Context) error {
	result, err := c.db.ExecContext(ctx, `
		DELETE FROM analysis_cache
		WHERE expires_at <= ?
	`, time.Now().Format(time.RFC3339))

	if err != nil {
		return fmt.Errorf("failed to clean up expired entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		c.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		c.logger.Debug("Cleaned up expired cache entries", zap.Int64("expired_count", rowsAffected))
	}
	return nil
}

// Close closes the database connection.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
