package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists cache state between builds. It is loaded once at build
// start and saved once at build end; implementations need not support
// concurrent builds against the same backing file.
type Store interface {
	Load(ctx context.Context) ([]Entry, []Fingerprint, error)
	Save(ctx context.Context, entries []Entry, fingerprints []Fingerprint) error
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the cache database at dbPath.
// Use ":memory:" for tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pages (
		path TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL,
		deps TEXT NOT NULL,
		output_path TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS fingerprints (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		mtime INTEGER NOT NULL,
		size INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load reads all page entries and fingerprints.
func (s *SQLiteStore) Load(ctx context.Context) ([]Entry, []Fingerprint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, content_hash, deps, output_path, updated_at FROM pages`)
	if err != nil {
		return nil, nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var depsJSON string
		var updatedAt int64
		if err := rows.Scan(&e.Path, &e.ContentHash, &depsJSON, &e.OutputPath, &updatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan page row: %w", err)
		}
		if err := json.Unmarshal([]byte(depsJSON), &e.Dependencies); err != nil {
			return nil, nil, fmt.Errorf("decode deps for %s: %w", e.Path, err)
		}
		e.UpdatedAt = time.Unix(updatedAt, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	fpRows, err := s.db.QueryContext(ctx, `SELECT path, hash, mtime, size FROM fingerprints`)
	if err != nil {
		return nil, nil, fmt.Errorf("query fingerprints: %w", err)
	}
	defer fpRows.Close()

	var fingerprints []Fingerprint
	for fpRows.Next() {
		var fp Fingerprint
		var mtime int64
		if err := fpRows.Scan(&fp.Path, &fp.Hash, &mtime, &fp.Size); err != nil {
			return nil, nil, fmt.Errorf("scan fingerprint row: %w", err)
		}
		fp.ModTime = time.Unix(0, mtime)
		fingerprints = append(fingerprints, fp)
	}
	return entries, fingerprints, fpRows.Err()
}

// Save replaces all persisted state in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, entries []Entry, fingerprints []Fingerprint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pages`); err != nil {
		return fmt.Errorf("clear pages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM fingerprints`); err != nil {
		return fmt.Errorf("clear fingerprints: %w", err)
	}

	for _, e := range entries {
		depsJSON, err := json.Marshal(e.Dependencies)
		if err != nil {
			return fmt.Errorf("encode deps for %s: %w", e.Path, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pages (path, content_hash, deps, output_path, updated_at) VALUES (?, ?, ?, ?, ?)`,
			e.Path, e.ContentHash, string(depsJSON), e.OutputPath, e.UpdatedAt.Unix()); err != nil {
			return fmt.Errorf("insert page %s: %w", e.Path, err)
		}
	}
	for _, fp := range fingerprints {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fingerprints (path, hash, mtime, size) VALUES (?, ?, ?, ?)`,
			fp.Path, fp.Hash, fp.ModTime.UnixNano(), fp.Size); err != nil {
			return fmt.Errorf("insert fingerprint %s: %w", fp.Path, err)
		}
	}
	return tx.Commit()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
