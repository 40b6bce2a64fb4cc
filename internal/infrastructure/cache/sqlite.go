// Package cache provides the local tier: one row per business holding the
// whole pipeline bundle as JSON.
//
// The adapter uses modernc.org/sqlite, a pure Go SQLite implementation, in WAL
// mode. The schema is managed through versioned migrations embedded from the
// migrations/ directory.
package cache

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"Prospector/internal/domain"
	"Prospector/internal/infrastructure/cache/migrations"
	"Prospector/internal/ports"
)

const fileName = "bundles.db"

// SQLiteCache stores bundles in a local SQLite database.
type SQLiteCache struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var _ ports.BundleCache = (*SQLiteCache)(nil)

// Open creates or opens the cache database inside dir.
func Open(dir string) (*SQLiteCache, error) {
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	path := filepath.Join(dir, fileName)
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	c := &SQLiteCache{db: db, path: path, now: time.Now}
	if err := c.migrate(migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return c, nil
}

// Close closes the database connection.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// Path returns the database file path.
func (c *SQLiteCache) Path() string {
	return c.path
}

// Put replaces the bundle stored for its business.
func (c *SQLiteCache) Put(bundle domain.Bundle) error {
	if bundle.BusinessID == "" {
		return errors.New("bundle has no business id")
	}
	if bundle.UpdatedAt.IsZero() {
		bundle.UpdatedAt = c.now().UTC()
	}
	payload, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("marshalling bundle: %w", err)
	}
	_, err = c.db.Exec(`
		INSERT INTO bundles (business_id, stage, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (business_id) DO UPDATE SET
			stage = excluded.stage,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		bundle.BusinessID, bundle.Stage.String(), string(payload), bundle.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving bundle %s: %w", bundle.BusinessID, err)
	}
	return nil
}

// Get loads a bundle. The boolean is false when nothing is cached.
func (c *SQLiteCache) Get(businessID string) (domain.Bundle, bool, error) {
	var payload string
	err := c.db.QueryRow(`SELECT payload FROM bundles WHERE business_id = ?`, businessID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Bundle{}, false, nil
	}
	if err != nil {
		return domain.Bundle{}, false, fmt.Errorf("loading bundle %s: %w", businessID, err)
	}
	var bundle domain.Bundle
	if err := json.Unmarshal([]byte(payload), &bundle); err != nil {
		return domain.Bundle{}, false, fmt.Errorf("decoding bundle %s: %w", businessID, err)
	}
	return bundle, true, nil
}

// List returns every cached bundle, most recently updated first.
func (c *SQLiteCache) List() ([]domain.Bundle, error) {
	rows, err := c.db.Query(`SELECT payload FROM bundles ORDER BY updated_at DESC, business_id`)
	if err != nil {
		return nil, fmt.Errorf("listing bundles: %w", err)
	}
	defer rows.Close()

	var out []domain.Bundle
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning bundle: %w", err)
		}
		var bundle domain.Bundle
		if err := json.Unmarshal([]byte(payload), &bundle); err != nil {
			return nil, fmt.Errorf("decoding bundle: %w", err)
		}
		out = append(out, bundle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bundles: %w", err)
	}
	return out, nil
}

// Delete removes a cached bundle. Missing entries are not an error.
func (c *SQLiteCache) Delete(businessID string) error {
	if _, err := c.db.Exec(`DELETE FROM bundles WHERE business_id = ?`, businessID); err != nil {
		return fmt.Errorf("deleting bundle %s: %w", businessID, err)
	}
	return nil
}

// migrate runs all pending up migrations and records their versions.
func (c *SQLiteCache) migrate(fsys embed.FS) error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := c.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := c.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := c.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}
