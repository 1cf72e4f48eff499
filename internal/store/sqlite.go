package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps *sql.DB for the record store. The schema is owned by this
// package; callers never run SQL of their own.
//
// All statements go through a single pooled connection, so concurrent
// writers are serialized by the pool and the later writer fully supersedes
// the earlier one. Readers either see the pre-write or the fully committed
// post-write state, never a half-written record.
type DB struct {
	*sql.DB
}

// Open opens the SQLite database at path and applies the schema. Creates
// the file if missing.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	// One connection is the serialization point for every read and write.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrStorage, p, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: applying schema: %v", ErrStorage, err)
	}
	return &DB{db}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.DB.Close()
}

// CheckIntegrity verifies the database file and confirms the full-text
// index still mirrors the primary table. Any reported inconsistency is
// surfaced as a storage error; recovery is Reindex, not silent repair.
func (db *DB) CheckIntegrity(ctx context.Context) error {
	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: integrity check: %v", ErrStorage, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: integrity check: %s", ErrStorage, result)
	}
	// FTS5 command that cross-checks the index against the content table.
	if _, err := db.ExecContext(ctx,
		`INSERT INTO records_fts(records_fts, rank) VALUES ('integrity-check', 1)`,
	); err != nil {
		return fmt.Errorf("%w: search index out of sync, reindex required: %v", ErrStorage, err)
	}
	return nil
}

// Reindex rebuilds the full-text index from the primary table.
func (db *DB) Reindex(ctx context.Context) error {
	if _, err := db.ExecContext(ctx,
		`INSERT INTO records_fts(records_fts) VALUES ('rebuild')`,
	); err != nil {
		return fmt.Errorf("%w: rebuilding search index: %v", ErrStorage, err)
	}
	return nil
}
