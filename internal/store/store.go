// Package store persists books, reading positions and settings in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a book or setting does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS books (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	path TEXT NOT NULL,
	word_count INTEGER NOT NULL,
	added_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	book_id TEXT PRIMARY KEY REFERENCES books(id) ON DELETE CASCADE,
	word_index INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Book is a document the reader has opened.
type Book struct {
	ID        string
	Title     string
	Path      string
	WordCount int
	AddedAt   time.Time
}

// Position is the last saved reading position of a book.
type Position struct {
	BookID    string
	Index     int
	UpdatedAt time.Time
}

// Store is a SQLite backed book and position store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path. Use ":memory:" for a
// throwaway database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertBook records a book, keeping its original added time.
func (s *Store) UpsertBook(ctx context.Context, b Book) error {
	if b.ID == "" {
		return errors.New("book id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO books (id, title, path, word_count, added_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			path = excluded.path,
			word_count = excluded.word_count
	`, b.ID, b.Title, b.Path, b.WordCount, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert book: %w", err)
	}
	return nil
}

// Book returns the book with the given id.
func (s *Store) Book(ctx context.Context, id string) (*Book, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, path, word_count, added_at
		FROM books
		WHERE id = ?
	`, id)

	var b Book
	var addedAt int64
	if err := row.Scan(&b.ID, &b.Title, &b.Path, &b.WordCount, &addedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan book: %w", err)
	}
	b.AddedAt = time.UnixMilli(addedAt)
	return &b, nil
}

// Books returns all books, most recently read first.
func (s *Store) Books(ctx context.Context) ([]Book, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.title, b.path, b.word_count, b.added_at
		FROM books b
		LEFT JOIN positions p ON p.book_id = b.id
		ORDER BY COALESCE(p.updated_at, b.added_at) DESC, b.id
	`)
	if err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}
	defer rows.Close()

	var books []Book
	for rows.Next() {
		var b Book
		var addedAt int64
		if err := rows.Scan(&b.ID, &b.Title, &b.Path, &b.WordCount, &addedAt); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		b.AddedAt = time.UnixMilli(addedAt)
		books = append(books, b)
	}
	return books, rows.Err()
}

// Position returns the saved position for a book. A book that was never
// read returns index 0 and no error.
func (s *Store) Position(ctx context.Context, bookID string) (Position, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT word_index, updated_at
		FROM positions
		WHERE book_id = ?
	`, bookID)

	pos := Position{BookID: bookID}
	var updatedAt int64
	if err := row.Scan(&pos.Index, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pos, nil
		}
		return pos, fmt.Errorf("scan position: %w", err)
	}
	pos.UpdatedAt = time.UnixMilli(updatedAt)
	return pos, nil
}

// UpdatePosition saves the reading position of a known book.
func (s *Store) UpdatePosition(ctx context.Context, bookID string, index int) error {
	if index < 0 {
		return fmt.Errorf("invalid position %d", index)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (book_id, word_index, updated_at)
		SELECT id, ?, ? FROM books WHERE id = ?
		ON CONFLICT(book_id) DO UPDATE SET
			word_index = excluded.word_index,
			updated_at = excluded.updated_at
	`, index, s.now().UnixMilli(), bookID)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("book %s: %w", bookID, ErrNotFound)
	}
	return nil
}

// Setting returns a stored setting value.
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("scan setting: %w", err)
	}
	return value, nil
}

// SetSetting stores a setting value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}
