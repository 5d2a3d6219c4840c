// Package sqlite provides SQLite-based persistent storage for a sharer node.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/tutu-network/sharer/internal/domain"
	"github.com/tutu-network/sharer/internal/resource"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS node_info (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Owned-resource catalog
		`CREATE TABLE IF NOT EXISTS resources (
			name     TEXT PRIMARY KEY,
			path     TEXT NOT NULL DEFAULT '',
			added_at INTEGER NOT NULL
		)`,

		// Query history
		`CREATE TABLE IF NOT EXISTS queries (
			id         TEXT PRIMARY KEY,
			query      TEXT NOT NULL,
			started_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_queries_started ON queries(started_at)`,
		`CREATE TABLE IF NOT EXISTS query_hits (
			query_id    TEXT NOT NULL REFERENCES queries(id) ON DELETE CASCADE,
			file_name   TEXT NOT NULL,
			owner       TEXT NOT NULL,
			hop_count   INTEGER NOT NULL,
			received_at INTEGER NOT NULL,
			PRIMARY KEY (query_id, file_name, owner)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hits_query ON query_hits(query_id)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Resource Catalog ───────────────────────────────────────────────────────

// UpsertResource inserts or updates an owned resource.
func (d *DB) UpsertResource(r resource.OwnedResource) error {
	_, err := d.db.Exec(
		`INSERT INTO resources (name, path, added_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET path=excluded.path`,
		r.Name, r.Path, time.Now().Unix(),
	)
	return err
}

// DeleteResource removes an owned resource.
func (d *DB) DeleteResource(name string) error {
	result, err := d.db.Exec(`DELETE FROM resources WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrResourceNotFound
	}
	return nil
}

// ListResources returns the catalog ordered by name.
func (d *DB) ListResources() ([]resource.OwnedResource, error) {
	rows, err := d.db.Query(`SELECT name, path FROM resources ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []resource.OwnedResource
	for rows.Next() {
		var r resource.OwnedResource
		if err := rows.Scan(&r.Name, &r.Path); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ─── Query History ──────────────────────────────────────────────────────────

// QueryRecord is one originated query.
type QueryRecord struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	StartedAt time.Time `json:"started_at"`
	Hits      int       `json:"hits"`
}

// HitRecord is one (file, owner) pair returned for a query.
type HitRecord struct {
	FileName   string         `json:"file_name"`
	Owner      domain.Address `json:"owner"`
	HopCount   int            `json:"hop_count"`
	ReceivedAt time.Time      `json:"received_at"`
}

// RecordQuery stores a newly started query.
func (d *DB) RecordQuery(id, query string, startedAt time.Time) error {
	_, err := d.db.Exec(
		`INSERT INTO queries (id, query, started_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id, query, startedAt.Unix(),
	)
	return err
}

// RecordHit stores one hit. A repeated (file, owner) keeps the smallest
// hop count.
func (d *DB) RecordHit(queryID, fileName string, owner domain.Address, hopCount int) error {
	_, err := d.db.Exec(
		`INSERT INTO query_hits (query_id, file_name, owner, hop_count, received_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(query_id, file_name, owner) DO UPDATE SET
			hop_count=MIN(hop_count, excluded.hop_count)`,
		queryID, fileName, owner.String(), hopCount, time.Now().Unix(),
	)
	return err
}

// ListQueries returns the most recent queries first.
func (d *DB) ListQueries(limit int) ([]QueryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.Query(
		`SELECT q.id, q.query, q.started_at, COUNT(h.file_name)
		 FROM queries q LEFT JOIN query_hits h ON h.query_id = q.id
		 GROUP BY q.id ORDER BY q.started_at DESC, q.id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueryRecord
	for rows.Next() {
		var q QueryRecord
		var started int64
		if err := rows.Scan(&q.ID, &q.Query, &started, &q.Hits); err != nil {
			return nil, err
		}
		q.StartedAt = time.Unix(started, 0)
		out = append(out, q)
	}
	return out, rows.Err()
}

// QueryHits returns the hits of one query ordered by file name and owner.
func (d *DB) QueryHits(queryID string) ([]HitRecord, error) {
	rows, err := d.db.Query(
		`SELECT file_name, owner, hop_count, received_at FROM query_hits
		 WHERE query_id = ? ORDER BY file_name, owner`, queryID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HitRecord
	for rows.Next() {
		var h HitRecord
		var owner string
		var received int64
		if err := rows.Scan(&h.FileName, &owner, &h.HopCount, &received); err != nil {
			return nil, err
		}
		if h.Owner, err = domain.ParseAddress(owner); err != nil {
			return nil, fmt.Errorf("hit owner %q: %w", owner, err)
		}
		h.ReceivedAt = time.Unix(received, 0)
		out = append(out, h)
	}
	return out, rows.Err()
}

// ClearQueries deletes the whole query history.
func (d *DB) ClearQueries() error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM query_hits`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM queries`); err != nil {
		return err
	}
	return tx.Commit()
}

// ─── Node Info ──────────────────────────────────────────────────────────────

// Keys stored in node_info.
const (
	KeyLastRole = "last_role"
	KeyLastPort = "last_port"
)

// SetNodeInfo stores a key-value pair in node_info.
func (d *DB) SetNodeInfo(key, value string) error {
	_, err := d.db.Exec(
		`INSERT INTO node_info (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

// GetNodeInfo retrieves a value from node_info.
func (d *DB) GetNodeInfo(key string) (string, error) {
	var value string
	err := d.db.QueryRow(`SELECT value FROM node_info WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}
