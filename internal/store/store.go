package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// journalVersion is stamped into PRAGMA user_version. A journal written by a
// newer build is refused rather than read with the wrong layout.
const journalVersion = 1

// connParams are applied by the driver to every connection it opens.
var connParams = url.Values{
	"_journal_mode": {"WAL"},
	"_synchronous":  {"NORMAL"},
	"_busy_timeout": {"5000"},
	"_foreign_keys": {"1"},
}

// Store is the firing journal: one row per firing, one row per effect the
// firing made on working memory.
type Store struct {
	db *sql.DB
}

// Open opens the journal at path, creating the file and its tables on first
// use.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?"+connParams.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// Firings are written by a single session at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	if err := initJournal(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the journal. It is a no-op on a zero Store.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the connection for ad-hoc inspection.
func (s *Store) DB() *sql.DB {
	return s.db
}

func initJournal(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read journal version: %w", err)
	}
	if version > journalVersion {
		return fmt.Errorf("journal version %d is newer than supported version %d", version, journalVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create journal tables: %w", err)
	}
	if version < journalVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", journalVersion)); err != nil {
			return fmt.Errorf("failed to stamp journal version: %w", err)
		}
	}
	return nil
}
