package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/shelfscan/internal/models"
	"github.com/lehigh-university-libraries/shelfscan/internal/ratelimit"
	"github.com/lehigh-university-libraries/shelfscan/internal/scan"
	"github.com/lehigh-university-libraries/shelfscan/internal/storage"
)

// Scanner starts scans and streams their events
type Scanner interface {
	StartScan(ctx context.Context, sessionID string, image []byte) (<-chan scan.Event, error)
}

// CoverLookup finds cover details for a book
type CoverLookup interface {
	FetchCover(ctx context.Context, isbn, title, author string) (*models.CoverInfo, error)
}

// LimitStatus reports the shared rate limiter's current window
type LimitStatus interface {
	Status() ratelimit.Status
}

type Handler struct {
	sessionStore *storage.SessionStore
	scanner      Scanner
	library      storage.Library
	covers       CoverLookup
	coverGate    ratelimit.Gate
	limits       LimitStatus
	httpClient   *http.Client
}

// Options wires a Handler to the running pipeline
type Options struct {
	Sessions  *storage.SessionStore
	Scanner   Scanner
	Library   storage.Library
	Covers    CoverLookup
	CoverGate ratelimit.Gate
	Limits    LimitStatus
}

func New(opts Options) *Handler {
	if opts.Sessions == nil {
		opts.Sessions = storage.New()
	}
	return &Handler{
		sessionStore: opts.Sessions,
		scanner:      opts.Scanner,
		library:      opts.Library,
		covers:       opts.Covers,
		coverGate:    opts.CoverGate,
		limits:       opts.Limits,
		httpClient:   &http.Client{Timeout: defaultDownloadTimeout},
	}
}

// Routes registers every endpoint on mux
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/scans", h.HandleScans)
	mux.HandleFunc("/api/sessions", h.HandleSessions)
	mux.HandleFunc("/api/sessions/", h.HandleSessionDetail)
	mux.HandleFunc("/api/library", h.HandleLibrary)
	mux.HandleFunc("/api/library/", h.HandleBook)
	mux.HandleFunc("/api/covers", h.HandleCovers)
	mux.HandleFunc("/api/ratelimit", h.HandleRateLimit)
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, scanID string) (*models.ScanSession, bool) {
	session, exists := h.sessionStore.Get(scanID)
	if !exists {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return session, true
}
