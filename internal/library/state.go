package library

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yuanying/epubread/internal/navigation"
)

// Record is one row of reading state.
type Record struct {
	BookKey    string    `db:"book_key"`
	Title      string    `db:"title"`
	SourcePath string    `db:"source_path"`
	Position   int       `db:"position"`
	History    string    `db:"history"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// State decodes the stored position and history.
func (r *Record) State() (navigation.State, error) {
	st := navigation.State{Position: r.Position}
	if r.History != "" {
		if err := json.Unmarshal([]byte(r.History), &st.History); err != nil {
			return navigation.State{}, fmt.Errorf("decoding history for %s: %w", r.BookKey, err)
		}
	}
	return st, nil
}

// SaveState stores st for the book identified by key, replacing any earlier
// state but keeping the creation time.
func (db *DB) SaveState(key, title, sourcePath string, st navigation.State) error {
	history := st.History
	if history == nil {
		history = []int{}
	}
	encoded, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	now := time.Now().UTC()
	_, err = db.Exec(`
		INSERT INTO reading_state (book_key, title, source_path, position, history, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(book_key) DO UPDATE SET
			title = excluded.title,
			source_path = excluded.source_path,
			position = excluded.position,
			history = excluded.history,
			updated_at = excluded.updated_at
	`, key, title, sourcePath, st.Position, string(encoded), now, now)
	if err != nil {
		return fmt.Errorf("saving reading state: %w", err)
	}
	return nil
}

// GetRecord returns the stored record for key, or nil when there is none.
func (db *DB) GetRecord(key string) (*Record, error) {
	var rec Record
	err := db.Get(&rec, `
		SELECT book_key, title, source_path, position, history, created_at, updated_at
		FROM reading_state WHERE book_key = ?
	`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading reading state: %w", err)
	}
	return &rec, nil
}

// LoadState returns the saved state for key. ok is false when the book has
// never been saved.
func (db *DB) LoadState(key string) (st navigation.State, ok bool, err error) {
	rec, err := db.GetRecord(key)
	if err != nil || rec == nil {
		return navigation.State{}, false, err
	}
	st, err = rec.State()
	if err != nil {
		return navigation.State{}, false, err
	}
	return st, true, nil
}

// RecentBooks lists stored records, most recently updated first.
func (db *DB) RecentBooks(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	var recs []Record
	err := db.Select(&recs, `
		SELECT book_key, title, source_path, position, history, created_at, updated_at
		FROM reading_state ORDER BY updated_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	return recs, nil
}

// DeleteState forgets the reading state of key.
func (db *DB) DeleteState(key string) error {
	if _, err := db.Exec("DELETE FROM reading_state WHERE book_key = ?", key); err != nil {
		return fmt.Errorf("deleting reading state: %w", err)
	}
	return nil
}
