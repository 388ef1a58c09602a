package scan

import (
	"errors"
	"fmt"

	"github.com/lehigh-university-libraries/shelfscan/internal/models"
	"github.com/lehigh-university-libraries/shelfscan/internal/providers"
	"github.com/lehigh-university-libraries/shelfscan/internal/retry"
)

// State is a step of a scan
type State string

const (
	StateIdle      State = "idle"
	StateInFlight  State = "in_flight"
	StateRetrying  State = "retrying"
	StateParsing   State = "parsing"
	StateDeduping  State = "deduping"
	StateQuota     State = "quota"
	StateEnriching State = "enriching"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// EventType tags an Event
type EventType string

const (
	EventStatus       EventType = "status"
	EventBookEnriched EventType = "book_enriched"
	EventBookFailed   EventType = "book_failed"
	EventScanFailed   EventType = "scan_failed"
	EventSummary      EventType = "summary"
)

// ErrorKind classifies why a scan, or one book of it, failed
type ErrorKind string

const (
	KindAuth        ErrorKind = "auth"
	KindRemoteQuota ErrorKind = "remote_quota"
	KindNetwork     ErrorKind = "network"
	KindRateLimited ErrorKind = "rate_limited"
	KindParse       ErrorKind = "parse"
	KindNoBooks     ErrorKind = "no_books"
	KindStorage     ErrorKind = "storage"
	KindPersist     ErrorKind = "persist"
	KindUnknown     ErrorKind = "unknown"
)

// Failure is a user-facing failure description. Retryable tells the
// client whether sending the same photo again may help.
type Failure struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Attempts  int       `json:"attempts,omitempty"`
	Retryable bool      `json:"retryable"`
	Err       error     `json:"-"`
}

func retryableKind(kind ErrorKind) bool {
	switch kind {
	case KindNetwork, KindRateLimited, KindNoBooks, KindStorage, KindPersist, KindUnknown:
		return true
	}
	return false
}

// Summary describes a finished scan
type Summary struct {
	Detected     int    `json:"detected" yaml:"detected"`
	Admitted     int    `json:"admitted" yaml:"admitted"`
	Duplicates   int    `json:"duplicates" yaml:"duplicates"`
	QuotaSkipped int    `json:"quota_skipped" yaml:"quota_skipped"`
	Ignored      int    `json:"ignored,omitempty" yaml:"ignored,omitempty"`
	Persisted    int    `json:"persisted" yaml:"persisted"`
	Failed       int    `json:"failed,omitempty" yaml:"failed,omitempty"`
	LimitReached bool   `json:"limit_reached,omitempty" yaml:"limit_reached,omitempty"`
	Narrative    string `json:"narrative,omitempty" yaml:"narrative,omitempty"`
}

// Event is one item of the stream returned by StartScan
type Event struct {
	Type    EventType          `json:"type"`
	ScanID  string             `json:"scan_id"`
	State   State              `json:"state,omitempty"`
	Attempt int                `json:"attempt,omitempty"`
	Book    *models.BookRecord `json:"book,omitempty"`
	Title   string             `json:"title,omitempty"`
	Failure *Failure           `json:"failure,omitempty"`
	Summary *Summary           `json:"summary,omitempty"`
}

// failureFor maps a vision or parse error to a user-facing failure
func failureFor(err error) *Failure {
	f := &Failure{Err: err}

	var rerr *retry.Error
	if errors.As(err, &rerr) {
		f.Attempts = rerr.Attempts
	}

	var (
		authErr    *providers.AuthError
		quotaErr   *providers.QuotaExceededError
		decodeErr  *providers.DecodingError
		limitedErr *providers.RateLimitedError
	)
	switch {
	case errors.Is(err, ErrNoBooks):
		f.Kind = KindNoBooks
		f.Message = "No books detected. Try a clearer photo of the spines or covers."
	case errors.As(err, &authErr):
		f.Kind = KindAuth
		f.Message = "Book scanning is unavailable right now."
	case errors.As(err, &quotaErr):
		f.Kind = KindRemoteQuota
		f.Message = "Book scanning has hit its service limit. Please try again later."
	case errors.As(err, &limitedErr):
		f.Kind = KindRateLimited
		f.Message = "Too many requests right now. Wait a minute and try again."
	case errors.As(err, &decodeErr):
		f.Kind = KindParse
		f.Message = "Failed to parse the scan results. Try again with a clearer photo."
	case rerr != nil && rerr.Exhausted:
		f.Kind = KindNetwork
		f.Message = fmt.Sprintf("Couldn't reach the scanning service after %d attempts. Check your connection and try again.", rerr.Attempts)
	default:
		f.Kind = KindUnknown
		f.Message = "Something went wrong while scanning. Try again."
	}
	f.Retryable = retryableKind(f.Kind)
	return f
}
