// Package library persists reading state per book in a SQLite database so a
// reader can resume where it left off.
package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const SchemaVersion = 1

// ErrSchemaVersion reports a database written by an incompatible version.
var ErrSchemaVersion = errors.New("unsupported schema version")

var schema = `
CREATE TABLE IF NOT EXISTS schema_info (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS reading_state (
	book_key TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	source_path TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL DEFAULT 0,
	history TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME,
	updated_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_reading_state_updated_at ON reading_state(updated_at);
`

type DB struct {
	*sqlx.DB
	path string
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Create removes any database at path and creates a fresh one.
func Create(path string) (*DB, error) {
	if Exists(path) {
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("removing existing database: %w", err)
		}
	}

	db, err := Open(path)
	if err != nil {
		return nil, err
	}

	if err := db.CreateSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return db, nil
}

func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	sqlDB, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection keeps PRAGMAs and writes on the same handle.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{DB: sqlDB, path: path}
	if _, err := db.Exec(`
		PRAGMA synchronous = NORMAL;
		PRAGMA journal_mode = WAL;
	`); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("configuring database: %w", err)
	}

	return db, nil
}

// OpenOrCreate opens the database at path, creating it when missing. An
// existing database written with another schema version is refused.
func OpenOrCreate(path string) (*DB, error) {
	if !Exists(path) {
		return Create(path)
	}

	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	version, err := db.SchemaVersion()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("reading schema version: %w", err)
	}
	if version != SchemaVersion {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s has version %d, want %d", ErrSchemaVersion, path, version, SchemaVersion)
	}
	return db, nil
}

func (db *DB) CreateSchema() error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	if _, err := db.Exec("INSERT INTO schema_info (version) VALUES (?)", SchemaVersion); err != nil {
		return fmt.Errorf("setting schema version: %w", err)
	}
	return nil
}

func (db *DB) SchemaVersion() (int, error) {
	var version int
	if err := db.Get(&version, "SELECT version FROM schema_info LIMIT 1"); err != nil {
		return 0, err
	}
	return version, nil
}

func (db *DB) Path() string {
	return db.path
}
