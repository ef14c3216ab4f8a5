package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const metadataCacheSchema = `
CREATE TABLE IF NOT EXISTS pano_metadata (
	location_key TEXT PRIMARY KEY,
	body         TEXT NOT NULL,
	fetched_at   INTEGER NOT NULL
)`

// metadataCache stores imagery metadata answers on disk so repeated runs over
// the same route don't re-query the service.
type metadataCache struct {
	db *sql.DB
}

func openMetadataCache(path string) (*metadataCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata cache: %w", err)
	}
	// Pragmas are per connection; one connection serializes writers too.
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", metadataCacheSchema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize metadata cache: %w", err)
		}
	}
	return &metadataCache{db: db}, nil
}

func (c *metadataCache) Close() error {
	return c.db.Close()
}

func metadataCacheKey(c Coordinate) string {
	return c.String()
}

// cacheable reports whether a metadata status is a stable answer rather than
// a transient service condition such as quota exhaustion.
func cacheable(m PanoMetadata) bool {
	return m.Status == metadataStatusOK || m.Status == "ZERO_RESULTS"
}

func (c *metadataCache) get(loc Coordinate) (PanoMetadata, bool, error) {
	var body string
	err := c.db.QueryRow("SELECT body FROM pano_metadata WHERE location_key = ?", metadataCacheKey(loc)).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return PanoMetadata{}, false, nil
	}
	if err != nil {
		return PanoMetadata{}, false, fmt.Errorf("metadata cache lookup: %w", err)
	}
	var meta PanoMetadata
	if err := json.Unmarshal([]byte(body), &meta); err != nil {
		return PanoMetadata{}, false, fmt.Errorf("metadata cache entry for %s is corrupt: %w", loc, err)
	}
	return meta, true, nil
}

func (c *metadataCache) put(loc Coordinate, meta PanoMetadata) error {
	if !cacheable(meta) {
		return nil
	}
	body, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO pano_metadata (location_key, body, fetched_at) VALUES (?, ?, ?)",
		metadataCacheKey(loc), string(body), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("metadata cache store: %w", err)
	}
	return nil
}
