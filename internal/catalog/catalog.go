// Package catalog keeps a SQLite index of ingested books so a library can be
// listed without loading every artifact.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/yuanying/epubshelf/internal/book"
)

// ErrNotFound is returned by Get for an unknown book id.
var ErrNotFound = errors.New("catalog: book not found")

// Status of the last ingestion attempt.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Entry is one catalogued book.
type Entry struct {
	ID        string
	Title     string
	Authors   []string
	Language  string
	Source    string // archive file name
	Chapters  int
	Cover     string
	Status    string
	Reason    string // failure reason when Status is StatusFailed
	UpdatedAt time.Time
}

// Catalog is a SQLite-backed book index.
type Catalog struct {
	db       *sql.DB
	filePath string
	now      func() time.Time
}

// Open opens or creates the catalog database at filePath.
func Open(filePath string) (*Catalog, error) {
	if filePath == "" {
		filePath = "catalog.db"
	}

	db, err := sql.Open("sqlite", filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// A single connection serializes writers from concurrent ingest jobs.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to SQLite database: %w", err)
	}

	c := &Catalog{db: db, filePath: filePath, now: time.Now}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return c, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) initSchema() error {
	query := `
		CREATE TABLE IF NOT EXISTS books (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			authors TEXT NOT NULL,
			language TEXT NOT NULL,
			source TEXT NOT NULL,
			chapters INTEGER NOT NULL,
			cover TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_books_title ON books(title);
	`
	_, err := c.db.Exec(query)
	return err
}

// EntryFromBook builds a successful entry for a published book.
func EntryFromBook(id string, b *book.Book) Entry {
	return Entry{
		ID:       id,
		Title:    b.Title(),
		Authors:  b.Authors(),
		Language: b.Language(),
		Source:   b.Source,
		Chapters: b.ChapterCount(),
		Cover:    b.Cover,
		Status:   StatusOK,
	}
}

// Record inserts or replaces the entry with the same id. UpdatedAt is set to
// the current time.
func (c *Catalog) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return errors.New("catalog: entry id cannot be empty")
	}
	if e.Status == "" {
		e.Status = StatusOK
	}
	authors, err := json.Marshal(e.Authors)
	if err != nil {
		return fmt.Errorf("failed to encode authors: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO books
			(id, title, authors, language, source, chapters, cover, status, reason, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = c.db.ExecContext(ctx, query,
		e.ID, e.Title, string(authors), e.Language, e.Source, e.Chapters, e.Cover,
		e.Status, e.Reason, c.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", e.ID, err)
	}
	return nil
}

// RecordFailure records a failed ingestion of the archive that would have
// been stored as id. An earlier successful entry is replaced.
func (c *Catalog) RecordFailure(ctx context.Context, id, source, reason string) error {
	return c.Record(ctx, Entry{ID: id, Source: source, Status: StatusFailed, Reason: reason})
}

// Get returns the entry for id.
func (c *Catalog) Get(ctx context.Context, id string) (Entry, error) {
	row := c.db.QueryRowContext(ctx, selectEntries+" WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to get %s: %w", id, err)
	}
	return e, nil
}

// List returns all entries ordered by title, then id.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, selectEntries+" ORDER BY title, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes the entry for id. Deleting an unknown id is not an error.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM books WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	return nil
}

const selectEntries = `SELECT id, title, authors, language, source, chapters, cover, status, reason, updated_at FROM books`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e       Entry
		authors string
		updated int64
	)
	if err := s.Scan(&e.ID, &e.Title, &authors, &e.Language, &e.Source, &e.Chapters,
		&e.Cover, &e.Status, &e.Reason, &updated); err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal([]byte(authors), &e.Authors); err != nil {
		return Entry{}, fmt.Errorf("failed to decode authors: %w", err)
	}
	e.UpdatedAt = time.Unix(updated, 0)
	return e, nil
}
