package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// CacheRepository is the durable tier backing the two-tier cache: a flat
// key/payload table with an expiry column, in cache.db.
type CacheRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCacheRepository creates a cache repository over the cache database.
func NewCacheRepository(db *sql.DB, log zerolog.Logger) *CacheRepository {
	return &CacheRepository{db: db, log: log.With().Str("repo", "cache").Logger()}
}

// Get returns the payload for key if present and unexpired.
func (r *CacheRepository) Get(key string, now time.Time) ([]byte, bool, error) {
	var payload []byte
	var expiresAt time.Time
	err := r.db.QueryRow(`SELECT payload, expires_at FROM analysis_cache WHERE cache_key = ?`, key).
		Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cache key %s: %w", key, err)
	}
	if now.After(expiresAt) {
		return nil, false, nil
	}
	return payload, true, nil
}

// Set writes (or overwrites) a cache entry with the given TTL.
func (r *CacheRepository) Set(key string, payload []byte, now time.Time, ttl time.Duration) error {
	_, err := r.db.Exec(
		`INSERT INTO analysis_cache (cache_key, payload, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`,
		key, payload, now.Add(ttl).UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set cache key %s: %w", key, err)
	}
	return nil
}

// Delete removes a cache entry if present.
func (r *CacheRepository) Delete(key string) error {
	if _, err := r.db.Exec(`DELETE FROM analysis_cache WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cache key %s: %w", key, err)
	}
	return nil
}

// PruneExpired deletes every entry whose TTL has elapsed as of now, the
// periodic durable-tier sweep.
func (r *CacheRepository) PruneExpired(now time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM analysis_cache WHERE expires_at < ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune expired cache entries: %w", err)
	}
	return res.RowsAffected()
}
