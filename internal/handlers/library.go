package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/shelfscan/internal/storage"
)

func (h *Handler) HandleLibrary(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	books, err := h.library.List(r.Context())
	if err != nil {
		h.writeError(w, "Failed to list library: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, books)
}

func (h *Handler) HandleBook(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/library/")

	switch r.Method {
	case "GET":
		book, err := h.library.Get(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, "Book not found", http.StatusNotFound)
			return
		}
		if err != nil {
			h.writeError(w, "Failed to load book: "+err.Error(), http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, book)
	case "DELETE":
		err := h.library.Delete(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, "Book not found", http.StatusNotFound)
			return
		}
		if err != nil {
			h.writeError(w, "Failed to delete book: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
