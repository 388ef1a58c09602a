// Package export moves a library to and from Parquet files.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"github.com/lehigh-university-libraries/shelfscan/internal/dedup"
	"github.com/lehigh-university-libraries/shelfscan/internal/models"
)

// Row is the Parquet layout of a library book. Times are Unix milliseconds.
type Row struct {
	ID                  string `parquet:"id"`
	Title               string `parquet:"title"`
	Author              string `parquet:"author"`
	ISBN                string `parquet:"isbn"`
	Genre               string `parquet:"genre"`
	SubGenre            string `parquet:"sub_genre"`
	Status              string `parquet:"status"`
	CoverImageURL       string `parquet:"cover_image_url"`
	AgeRating           string `parquet:"age_rating"`
	PageCount           *int64 `parquet:"page_count,optional"`
	CurrentPage         int64  `parquet:"current_page"`
	TotalPages          *int64 `parquet:"total_pages,optional"`
	DateAdded           int64  `parquet:"date_added"`
	DateStartedReading  *int64 `parquet:"date_started_reading,optional"`
	DateFinishedReading *int64 `parquet:"date_finished_reading,optional"`
}

// Lister reads the whole library
type Lister interface {
	List(ctx context.Context) ([]models.BookRecord, error)
}

// Library is what Import needs from a store
type Library interface {
	Lister
	Save(ctx context.Context, record models.BookRecord) error
}

// Export writes every book in lib to path and returns how many were written
func Export(ctx context.Context, lib Lister, path string) (int, error) {
	records, err := lib.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list library: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer file.Close()

	if err := WriteRecords(file, records); err != nil {
		return 0, err
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("failed to close parquet file: %w", err)
	}

	slog.Info("Exported library", "path", path, "books", len(records))
	return len(records), nil
}

// Import adds the books in path to lib, skipping any that duplicate a book
// already present. It returns how many were added and how many skipped.
func Import(ctx context.Context, lib Library, path string) (added, skipped int, err error) {
	records, err := ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	existing, err := lib.List(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list library: %w", err)
	}

	for _, r := range records {
		if duplicateOf(r, existing) {
			skipped++
			continue
		}
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if !r.Status.Valid() {
			r.Status = models.StatusLibrary
		}
		if err := lib.Save(ctx, r); err != nil {
			return added, skipped, fmt.Errorf("failed to import %q: %w", r.Title, err)
		}
		existing = append(existing, r)
		added++
	}

	slog.Info("Imported library", "path", path, "added", added, "skipped", skipped)
	return added, skipped, nil
}

func duplicateOf(r models.BookRecord, existing []models.BookRecord) bool {
	c := models.CandidateBook{Title: r.Title, Author: r.Author, ISBN: r.ISBN}
	for _, e := range existing {
		if dedup.IsDuplicate(c, e) {
			return true
		}
	}
	return false
}

// WriteRecords encodes records as Parquet
func WriteRecords(w io.Writer, records []models.BookRecord) error {
	rows := make([]Row, len(records))
	for i, r := range records {
		rows[i] = toRow(r)
	}

	writer := parquet.NewGenericWriter[Row](w)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return nil
}

// ReadFile decodes every book in a Parquet file
func ReadFile(path string) ([]models.BookRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	records := make([]models.BookRecord, 0, pf.NumRows())
	rows := make([]Row, 128)
	for {
		n, err := reader.Read(rows)
		for _, row := range rows[:n] {
			records = append(records, fromRow(row))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}
	return records, nil
}

func toRow(r models.BookRecord) Row {
	return Row{
		ID:                  r.ID,
		Title:               r.Title,
		Author:              r.Author,
		ISBN:                r.ISBN,
		Genre:               r.Genre,
		SubGenre:            r.SubGenre,
		Status:              string(r.Status),
		CoverImageURL:       r.CoverImageURL,
		AgeRating:           r.AgeRating,
		PageCount:           int64Ptr(r.PageCount),
		CurrentPage:         int64(r.CurrentPage),
		TotalPages:          int64Ptr(r.TotalPages),
		DateAdded:           r.DateAdded.UnixMilli(),
		DateStartedReading:  millisPtr(r.DateStartedReading),
		DateFinishedReading: millisPtr(r.DateFinishedReading),
	}
}

func fromRow(row Row) models.BookRecord {
	return models.BookRecord{
		ID:                  row.ID,
		Title:               row.Title,
		Author:              row.Author,
		ISBN:                row.ISBN,
		Genre:               row.Genre,
		SubGenre:            row.SubGenre,
		Status:              models.Status(row.Status),
		CoverImageURL:       row.CoverImageURL,
		AgeRating:           row.AgeRating,
		PageCount:           intPtr(row.PageCount),
		CurrentPage:         int(row.CurrentPage),
		TotalPages:          intPtr(row.TotalPages),
		DateAdded:           time.UnixMilli(row.DateAdded).UTC(),
		DateStartedReading:  timePtr(row.DateStartedReading),
		DateFinishedReading: timePtr(row.DateFinishedReading),
	}
}

func int64Ptr(v *int) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	return &n
}

func intPtr(v *int64) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func millisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func timePtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}
