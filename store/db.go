package store

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Options controls how a sqlite handle is opened and pragma-tuned.
type Options struct {
	// Path is the filesystem location of the database file, or ":memory:".
	Path string
	// BusyTimeout bounds how long a writer waits on SQLITE_BUSY before
	// failing, which matters once the flow engine and the HTTP API share
	// one per-entity file.
	BusyTimeout time.Duration
}

// DefaultOptions mirrors the busy-timeout the flow engine relies on to
// serialize concurrent writers against a single entity database file.
func DefaultOptions(path string) Options {
	return Options{Path: path, BusyTimeout: 5 * time.Second}
}

// Open opens a sqlite database file through mattn/go-sqlite3, applies the
// pragmas every handle in this module needs (foreign keys, WAL, busy
// timeout), and returns the sqlx handle ready for use.
func Open(opts Options) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d",
		opts.Path, opts.BusyTimeout.Milliseconds())

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", opts.Path, err)
	}
	db.SetMaxOpenConns(1)
	// Unsafe: several tables carry columns (projects.settings,
	// document_metadata.tags/custom_fields, ...) that the corresponding model struct intentionally
	// leaves off its db-tagged fields (they're JSON blobs unmarshalled by
	// hand), so a bare `SELECT *` would otherwise fail to find a destination
	// field for them.
	return db.Unsafe(), nil
}

// OpenMain opens (creating if absent) the shared database and applies both
// MainSchema and EntitySchema: when config.UseEntityDB is false, router
// falls every business lookup back to this database, so it has to carry the
// same business tables an entity database would, in addition to the
// identity/entity/routing tables that only ever live here.
func OpenMain(path string) (*sqlx.DB, error) {
	db, err := Open(DefaultOptions(path))
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(MainSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply main schema: %w", err)
	}
	if _, err := db.Exec(EntitySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply entity schema to main db: %w", err)
	}
	return db, nil
}

// OpenEntity opens (creating if absent) one entity's database file and
// applies EntitySchema.
func OpenEntity(path string) (*sqlx.DB, error) {
	db, err := Open(DefaultOptions(path))
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(EntitySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply entity schema: %w", err)
	}
	return db, nil
}
