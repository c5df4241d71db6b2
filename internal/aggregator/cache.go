package aggregator

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/giantswarm/muster-fabric/internal/store"
)

// Cache persists aggregated composites keyed by (category, key) with a
// TTL, backed by the shared sqlite store.
type Cache struct {
	db *store.DB
}

// NewCache wraps db as a Cache.
func NewCache(db *store.DB) *Cache {
	return &Cache{db: db}
}

// Get returns the cached Result for (category, key) if present and
// not yet expired. The returned Result's FromCache is always false;
// callers that serve it as a cache hit set that flag themselves.
func (c *Cache) Get(category, key string) (Result, bool, error) {
	var value string
	var expiresAt string
	err := c.db.Read(func(db *sql.DB) error {
		return db.QueryRow(`SELECT value, expires_at FROM cache WHERE category = ? AND key = ?`, category, key).Scan(&value, &expiresAt)
	})
	if err == sql.ErrNoRows {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("cache: get %s/%s: %w", category, key, err)
	}

	expiry, err := time.Parse(time.RFC3339Nano, expiresAt)
	if err != nil {
		return Result{}, false, fmt.Errorf("cache: parse expiry for %s/%s: %w", category, key, err)
	}
	if time.Now().UTC().After(expiry) {
		return Result{}, false, nil
	}

	var stored storedResult
	if err := json.Unmarshal([]byte(value), &stored); err != nil {
		return Result{}, false, fmt.Errorf("cache: unmarshal %s/%s: %w", category, key, err)
	}
	return Result{Values: stored.Values, DataSources: stored.DataSources, GeneratedAt: stored.GeneratedAt}, true, nil
}

// storedResult is the JSON shape persisted to the cache table: the
// fields needed to reconstruct a Result, minus FromCache, which is
// never true for a freshly-written entry.
type storedResult struct {
	Values      Composite         `json:"values"`
	DataSources map[string]string `json:"dataSources"`
	GeneratedAt string            `json:"generatedAt"`
}

// Set stores result for (category, key) with the given TTL.
func (c *Cache) Set(category, key string, result Result, ttl time.Duration) error {
	data, err := json.Marshal(storedResult{Values: result.Values, DataSources: result.DataSources, GeneratedAt: result.GeneratedAt})
	if err != nil {
		return fmt.Errorf("cache: marshal %s/%s: %w", category, key, err)
	}
	expiresAt := time.Now().UTC().Add(ttl).Format(time.RFC3339Nano)

	return c.db.WithWriteLock(func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO cache (category, key, value, expires_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(category, key) DO UPDATE SET value=excluded.value, expires_at=excluded.expires_at
		`, category, key, string(data), expiresAt)
		return err
	})
}

// Invalidate removes any cached entry for (category, key).
func (c *Cache) Invalidate(category, key string) error {
	return c.db.WithWriteLock(func(db *sql.DB) error {
		_, err := db.Exec(`DELETE FROM cache WHERE category = ? AND key = ?`, category, key)
		return err
	})
}
