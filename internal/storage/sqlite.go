package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lehigh-university-libraries/shelfscan/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS books (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    author TEXT NOT NULL DEFAULT '',
    isbn TEXT NOT NULL DEFAULT '',
    genre TEXT NOT NULL DEFAULT '',
    sub_genre TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    cover_image_url TEXT NOT NULL DEFAULT '',
    age_rating TEXT NOT NULL DEFAULT '',
    page_count INTEGER,
    current_page INTEGER NOT NULL DEFAULT 0,
    total_pages INTEGER,
    date_added TEXT NOT NULL,
    date_started_reading TEXT,
    date_finished_reading TEXT
);
CREATE INDEX IF NOT EXISTS idx_books_date_added ON books(date_added);
`

// fixed-width so that text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const bookColumns = `id, title, author, isbn, genre, sub_genre, status, cover_image_url, age_rating,
    page_count, current_page, total_pages, date_added, date_started_reading, date_finished_reading`

// SQLiteStore is a Library backed by SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the library database at path
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save inserts a book or replaces the one with the same ID
func (s *SQLiteStore) Save(ctx context.Context, r models.BookRecord) error {
	if r.ID == "" {
		return errors.New("book id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO books (`+bookColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            title = excluded.title,
            author = excluded.author,
            isbn = excluded.isbn,
            genre = excluded.genre,
            sub_genre = excluded.sub_genre,
            status = excluded.status,
            cover_image_url = excluded.cover_image_url,
            age_rating = excluded.age_rating,
            page_count = excluded.page_count,
            current_page = excluded.current_page,
            total_pages = excluded.total_pages,
            date_started_reading = excluded.date_started_reading,
            date_finished_reading = excluded.date_finished_reading`,
		r.ID,
		r.Title,
		r.Author,
		r.ISBN,
		r.Genre,
		r.SubGenre,
		string(r.Status),
		r.CoverImageURL,
		r.AgeRating,
		nullInt(r.PageCount),
		r.CurrentPage,
		nullInt(r.TotalPages),
		r.DateAdded.UTC().Format(timeLayout),
		nullTime(r.DateStartedReading),
		nullTime(r.DateFinishedReading),
	)
	if err != nil {
		return fmt.Errorf("failed to save book %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (models.BookRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
	r, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.BookRecord{}, ErrNotFound
	}
	return r, err
}

// List returns books in the order they were added
func (s *SQLiteStore) List(ctx context.Context) ([]models.BookRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+bookColumns+` FROM books ORDER BY date_added, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var books []models.BookRecord
	for rows.Next() {
		r, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, r)
	}
	return books, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count books: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete book %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBook(row scanner) (models.BookRecord, error) {
	var (
		r                 models.BookRecord
		status, dateAdded string
		pageCount, total  sql.NullInt64
		started, finished sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.Title, &r.Author, &r.ISBN, &r.Genre, &r.SubGenre, &status,
		&r.CoverImageURL, &r.AgeRating, &pageCount, &r.CurrentPage, &total,
		&dateAdded, &started, &finished,
	)
	if err != nil {
		return models.BookRecord{}, err
	}

	r.Status = models.Status(status)
	if r.DateAdded, err = time.Parse(timeLayout, dateAdded); err != nil {
		return models.BookRecord{}, fmt.Errorf("invalid date_added for %s: %w", r.ID, err)
	}
	r.PageCount = intPtr(pageCount)
	r.TotalPages = intPtr(total)
	r.DateStartedReading = timePtr(started)
	r.DateFinishedReading = timePtr(finished)
	return r, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func timePtr(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil
	}
	return &t
}
