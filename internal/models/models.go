package models

import (
	"strings"
	"time"
)

// UnknownAgeRating is stored when classification fails or is skipped.
const UnknownAgeRating = "Unknown"

// Status is the reading status of a book in the library
type Status string

const (
	StatusLibrary          Status = "library"
	StatusToRead           Status = "toRead"
	StatusReading          Status = "reading"
	StatusCurrentlyReading Status = "currentlyReading"
	StatusRead             Status = "read"
)

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusLibrary, StatusToRead, StatusReading, StatusCurrentlyReading, StatusRead:
		return true
	}
	return false
}

// Tier is the user's subscription level
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// ParseTier maps a configuration value to a Tier, defaulting to free
func ParseTier(s string) Tier {
	if strings.EqualFold(strings.TrimSpace(s), string(TierPremium)) {
		return TierPremium
	}
	return TierFree
}

// CandidateBook is a book mention parsed from a vision response.
// Empty strings mean the field was not detected.
type CandidateBook struct {
	Title  string `json:"title,omitempty" yaml:"title,omitempty"`
	Author string `json:"author,omitempty" yaml:"author,omitempty"`
	ISBN   string `json:"isbn,omitempty" yaml:"isbn,omitempty"`
	Genre  string `json:"genre,omitempty" yaml:"genre,omitempty"`
}

// IsEmpty reports whether the candidate has neither a title nor an author
func (c CandidateBook) IsEmpty() bool {
	return strings.TrimSpace(c.Title) == "" && strings.TrimSpace(c.Author) == ""
}

// BookRecord is a persisted library entry
type BookRecord struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	Author              string     `json:"author"`
	ISBN                string     `json:"isbn,omitempty"`
	Genre               string     `json:"genre,omitempty"`
	SubGenre            string     `json:"sub_genre,omitempty"`
	Status              Status     `json:"status"`
	CoverImageURL       string     `json:"cover_image_url,omitempty"`
	AgeRating           string     `json:"age_rating,omitempty"`
	PageCount           *int       `json:"page_count,omitempty"`
	CurrentPage         int        `json:"current_page"`
	TotalPages          *int       `json:"total_pages,omitempty"`
	DateAdded           time.Time  `json:"date_added"`
	DateStartedReading  *time.Time `json:"date_started_reading,omitempty"`
	DateFinishedReading *time.Time `json:"date_finished_reading,omitempty"`
}

// CoverInfo is what a cover lookup found for a book
type CoverInfo struct {
	URL         string
	Description string
	PageCount   int
	Categories  []string
}

// ScanSession is one scan request and, once finished, its outcome
type ScanSession struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	State       string    `json:"state"`
	Admitted    int       `json:"admitted"`
	Duplicates  int       `json:"duplicates"`
	QuotaSkip   int       `json:"quota_skipped"`
	Persisted   int       `json:"persisted"`
	Narrative   string    `json:"narrative,omitempty"`
	Failure     string    `json:"failure,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}
