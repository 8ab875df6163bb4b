package imagemerge

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const hashCacheSchema = `
CREATE TABLE IF NOT EXISTS fingerprints (
	path     TEXT    NOT NULL,
	method   TEXT    NOT NULL,
	size     INTEGER NOT NULL,
	mtime_ns INTEGER NOT NULL,
	hash     INTEGER NOT NULL,
	PRIMARY KEY (path, method)
);`

// HashCache persists archive fingerprints between runs, keyed by path and
// method and invalidated by file size or modification time.
type HashCache struct {
	db *sql.DB
}

type cachedHash struct {
	size  int64
	mtime int64
	hash  uint64
}

type cacheRow struct {
	path  string
	size  int64
	mtime int64
	fp    Fingerprint
}

// OpenHashCache opens (creating if needed) the SQLite cache at path.
func OpenHashCache(path string) (*HashCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("hash cache: mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("hash cache: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
		hashCacheSchema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("hash cache: %s: %w", stmt, err)
		}
	}
	return &HashCache{db: db}, nil
}

// Close releases the database handle.
func (c *HashCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// load returns every cached fingerprint for method m.
func (c *HashCache) load(ctx context.Context, m Method) (map[string]cachedHash, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT path, size, mtime_ns, hash FROM fingerprints WHERE method = ?`, string(m))
	if err != nil {
		return nil, fmt.Errorf("hash cache: load: %w", err)
	}
	defer rows.Close()

	out := make(map[string]cachedHash)
	for rows.Next() {
		var (
			p    string
			ch   cachedHash
			hash int64
		)
		if err := rows.Scan(&p, &ch.size, &ch.mtime, &hash); err != nil {
			return nil, fmt.Errorf("hash cache: scan: %w", err)
		}
		ch.hash = uint64(hash)
		out[p] = ch
	}
	return out, rows.Err()
}

// store upserts rows for method m in one transaction.
func (c *HashCache) store(ctx context.Context, m Method, rows []cacheRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("hash cache: begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fingerprints (path, method, size, mtime_ns, hash) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path, method) DO UPDATE SET size = excluded.size, mtime_ns = excluded.mtime_ns, hash = excluded.hash`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("hash cache: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.path, string(m), r.size, r.mtime, int64(r.fp.Uint64())); err != nil {
			tx.Rollback()
			return fmt.Errorf("hash cache: upsert %s: %w", r.path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("hash cache: commit: %w", err)
	}
	return nil
}

// prune deletes rows for method m that lie under roots but were not seen in
// the latest walk. Rows outside roots belong to other archives and are kept.
func (c *HashCache) prune(ctx context.Context, m Method, cached map[string]cachedHash, present map[string]bool, roots []string) error {
	var stale []string
	for p := range cached {
		if !present[p] && withinAny(p, roots) {
			stale = append(stale, p)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("hash cache: begin: %w", err)
	}
	for _, p := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM fingerprints WHERE path = ? AND method = ?`, p, string(m)); err != nil {
			tx.Rollback()
			return fmt.Errorf("hash cache: prune %s: %w", p, err)
		}
	}
	return tx.Commit()
}
