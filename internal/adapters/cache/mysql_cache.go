package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/phishguard/phishguard/internal/core"
)

// MySQLCache is a MySQL implementation of the ResultCache interface.
type MySQLCache struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLCache creates a new MySQL cache.
func NewMySQLCache(dsn string, logger *zap.Logger) (*MySQLCache, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS analysis_cache (
			content_key VARCHAR(64) PRIMARY KEY,
			result TEXT,
			stored_at TIMESTAMP,
			expires_at TIMESTAMP,
			INDEX idx_analysis_cache_expires_at (expires_at)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &MySQLCache{
		db:     db,
		logger: logger,
	}, nil
}

// Get retrieves a cached result for a content key.
func (c *MySQLCache) Get(ctx context.Context, key string) (*core.AnalysisResult, bool) {
	var raw string

	err := c.db.QueryRowContext(ctx, `
		SELECT result
		FROM analysis_cache
		WHERE content_key = ? AND expires_at > NOW()
	`, key).Scan(&raw)

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
func (c *MySQLCache) Set(ctx context.Context, key string, result *core.AnalysisResult, ttl time.Duration) {
	raw, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("Failed to encode result for cache", zap.Error(err), zap.String("key", key))
		return
	}

	_, err = c.db.ExecContext(ctx, `
		REPLACE INTO analysis_cache (content_key, result, stored_at, expires_at)
		VALUES (?, ?, NOW(), ?)
	`, key, string(raw), time.Now().Add(ttl))

	if err != nil {
		c.logger.Error("Failed to insert cache entry", zap.Error(err), zap.String("key", key))
	}
}

// Cleanup removes expired entries.
func (c *MySQLCache) Cleanup(ctx context.Context) error {
	result, err := c.db.ExecContext(ctx, `
		DELETE FROM analysis_cache
		WHERE expires_at <= NOW()
	`)

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
func (c *MySQLCache) Close() error {
	return c.db.Close()
}
