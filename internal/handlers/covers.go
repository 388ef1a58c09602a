package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/shelfscan/internal/enrichment"
)

// HandleCovers looks up a cover on demand. It draws from the same rate
// limiter as scans.
func (h *Handler) HandleCovers(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	isbn, title, author := q.Get("isbn"), q.Get("title"), q.Get("author")
	if isbn == "" && title == "" {
		h.writeError(w, "isbn or title is required", http.StatusBadRequest)
		return
	}

	if h.coverGate != nil && !h.coverGate.TryAcquire() {
		if h.limits != nil {
			wait := time.Until(h.limits.Status().ResetsAt).Round(time.Second)
			w.Header().Set("Retry-After", fmt.Sprintf("%d", max(int(wait.Seconds()), 1)))
		}
		h.writeError(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	info, err := h.covers.FetchCover(r.Context(), isbn, title, author)
	if err != nil {
		h.writeError(w, "Cover lookup failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	if info == nil {
		h.writeError(w, "No cover found", http.StatusNotFound)
		return
	}
	cover := *info
	cover.URL = enrichment.SecureURL(cover.URL)
	h.writeJSON(w, cover)
}

func (h *Handler) HandleRateLimit(w http.ResponseWriter, r *http.Request) {
	if h.limits == nil {
		h.writeError(w, "Rate limiter not configured", http.StatusNotFound)
		return
	}
	h.writeJSON(w, h.limits.Status())
}
