package sitemap

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Cache is a SQLite-backed catalog cache, one row per region. Entries older
// than the caller's TTL are treated as misses; stale rows stay in place until
// overwritten by the next successful fetch.
type Cache struct {
	db *sqlx.DB
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS sitemap_cache (
	region     TEXT PRIMARY KEY,
	fetched_at TEXT NOT NULL,
	recipes    TEXT NOT NULL
);
`

// OpenCache opens (creating if needed) a cache database at path.
func OpenCache(path string) (*Cache, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached recipes for a region if present and younger than
// maxAge. The second return value reports a usable hit.
func (c *Cache) Get(region string, maxAge time.Duration) ([]Recipe, bool, error) {
	var fetchedAt, recipesJSON string
	err := c.db.QueryRow("SELECT fetched_at, recipes FROM sitemap_cache WHERE region = ?", region).
		Scan(&fetchedAt, &recipesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	ts, err := time.Parse(time.RFC3339Nano, fetchedAt)
	if err != nil {
		return nil, false, fmt.Errorf("parse fetched_at: %w", err)
	}
	if time.Since(ts) >= maxAge {
		return nil, false, nil
	}

	var recipes []Recipe
	if err := json.Unmarshal([]byte(recipesJSON), &recipes); err != nil {
		return nil, false, fmt.Errorf("decode cached recipes: %w", err)
	}
	return recipes, true, nil
}

// Put stores the recipes for a region, replacing any previous row.
func (c *Cache) Put(region string, recipes []Recipe) error {
	b, err := json.Marshal(recipes)
	if err != nil {
		return fmt.Errorf("encode recipes: %w", err)
	}
	_, err = c.db.Exec(`INSERT OR REPLACE INTO sitemap_cache (region, fetched_at, recipes) VALUES (?, ?, ?)`,
		region,
		time.Now().UTC().Format(time.RFC3339Nano),
		string(b),
	)
	return err
}
