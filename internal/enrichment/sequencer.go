// Package enrichment turns admitted candidates into persisted library
// records, one at a time, with rate-gated cover and classification lookups.
package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/shelfscan/internal/metrics"
	"github.com/lehigh-university-libraries/shelfscan/internal/models"
	"github.com/lehigh-university-libraries/shelfscan/internal/ratelimit"
)

// DefaultPace is the delay inserted between consecutive candidates, and
// the shortest one New accepts
const DefaultPace = 500 * time.Millisecond

// CoverLookup finds a cover image for a book
type CoverLookup interface {
	FetchCover(ctx context.Context, isbn, title, author string) (*models.CoverInfo, error)
}

// Classifier assigns an age rating label to a book
type Classifier interface {
	Classify(ctx context.Context, title, author, description, genre string) (string, error)
}

// Store persists library records
type Store interface {
	Save(ctx context.Context, record models.BookRecord) error
}

// Config wires a Sequencer to its collaborators
type Config struct {
	Covers       CoverLookup
	Classifier   Classifier
	Store        Store
	CoverGate    ratelimit.Gate
	ClassifyGate ratelimit.Gate
	Pace         time.Duration
	Now          func() time.Time
	NewID        func() string
}

// Result is the outcome for one candidate. Err is set when the record
// could not be persisted; Record still holds what was enriched.
type Result struct {
	Index     int
	Candidate models.CandidateBook
	Record    models.BookRecord
	Err       error
}

// Sequencer processes candidates strictly in order
type Sequencer struct {
	covers       CoverLookup
	classifier   Classifier
	store        Store
	coverGate    ratelimit.Gate
	classifyGate ratelimit.Gate
	pace         time.Duration
	now          func() time.Time
	newID        func() string
	sleep        func(ctx context.Context, d time.Duration)
}

// New creates a Sequencer
func New(cfg Config) *Sequencer {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Pace < DefaultPace {
		cfg.Pace = DefaultPace
	}
	return &Sequencer{
		covers:       cfg.Covers,
		classifier:   cfg.Classifier,
		store:        cfg.Store,
		coverGate:    cfg.CoverGate,
		classifyGate: cfg.ClassifyGate,
		pace:         cfg.Pace,
		now:          cfg.Now,
		newID:        cfg.NewID,
		sleep:        sleepContext,
	}
}

// Run enriches and persists each candidate in input order. One candidate
// completes, through persistence, before the next begins. The returned
// channel yields one Result per candidate and is closed afterwards.
func (s *Sequencer) Run(ctx context.Context, admitted []models.CandidateBook) <-chan Result {
	queue := append([]models.CandidateBook(nil), admitted...)
	out := make(chan Result, len(queue))

	go func() {
		defer close(out)
		for i, candidate := range queue {
			if i > 0 {
				s.sleep(ctx, s.pace)
			}
			record, err := s.enrich(ctx, candidate)
			if err != nil {
				slog.Error("Failed to persist book", "title", record.Title, "index", i, "err", err)
				metrics.BooksPersisted.WithLabelValues("error").Inc()
			} else {
				slog.Info("Book added to library", "id", record.ID, "title", record.Title, "age_rating", record.AgeRating)
				metrics.BooksPersisted.WithLabelValues("success").Inc()
			}
			out <- Result{Index: i, Candidate: candidate, Record: record, Err: err}
		}
	}()

	return out
}

func (s *Sequencer) enrich(ctx context.Context, c models.CandidateBook) (models.BookRecord, error) {
	record := models.BookRecord{
		ID:        s.newID(),
		Title:     strings.TrimSpace(c.Title),
		Author:    strings.TrimSpace(c.Author),
		ISBN:      strings.TrimSpace(c.ISBN),
		Genre:     strings.TrimSpace(c.Genre),
		Status:    models.StatusLibrary,
		AgeRating: models.UnknownAgeRating,
		DateAdded: s.now(),
	}

	var description string
	if s.covers != nil && allowed(s.coverGate) {
		info, err := s.covers.FetchCover(ctx, record.ISBN, record.Title, record.Author)
		switch {
		case err != nil:
			slog.Warn("Cover lookup failed", "title", record.Title, "err", err)
		case info == nil:
			slog.Debug("No cover found", "title", record.Title)
		default:
			if info.URL != "" {
				record.CoverImageURL = SecureURL(info.URL)
			}
			description = info.Description
			if record.Genre == "" && len(info.Categories) > 0 {
				record.Genre, record.SubGenre = splitCategory(info.Categories[0])
			}
			if info.PageCount > 0 {
				pages := info.PageCount
				total := info.PageCount
				record.PageCount = &pages
				record.TotalPages = &total
			}
		}
	} else {
		slog.Debug("Cover lookup skipped", "title", record.Title, "reason", "rate limited")
	}

	if s.classifier != nil && allowed(s.classifyGate) {
		label, err := s.classifier.Classify(ctx, record.Title, record.Author, description, record.Genre)
		if err != nil {
			slog.Warn("Classification failed", "title", record.Title, "err", err)
		} else if label = strings.TrimSpace(label); label != "" {
			record.AgeRating = label
		}
	} else {
		slog.Debug("Classification skipped", "title", record.Title, "reason", "rate limited")
	}

	if err := s.store.Save(ctx, record); err != nil {
		return record, fmt.Errorf("failed to save %q: %w", record.Title, err)
	}
	return record, nil
}

// SecureURL rewrites an http URL to https
func SecureURL(u string) string {
	if strings.HasPrefix(u, "http://") {
		return "https://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// splitCategory reads a catalogue path such as "Fiction / Science Fiction / General"
// as a genre and sub-genre.
func splitCategory(category string) (genre, subGenre string) {
	parts := strings.Split(category, "/")
	genre = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		subGenre = strings.TrimSpace(parts[1])
	}
	return genre, subGenre
}

func allowed(g ratelimit.Gate) bool {
	return g == nil || g.TryAcquire()
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
