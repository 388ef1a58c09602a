package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/shelfscan/internal/scan"
)

const defaultSessionID = "default"

// HandleScans accepts a photo and streams the scan's events back as
// newline-delimited JSON. The photo may be a multipart "file" field, a raw
// image body, or a JSON body with an image_url.
func (h *Handler) HandleScans(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.Header.Get("X-Session-ID")
	if sessionID == "" {
		sessionID = r.URL.Query().Get("session")
	}

	var (
		data []byte
		err  error
	)
	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "application/json"):
		var request struct {
			ImageURL string `json:"image_url"`
			Session  string `json:"session"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		if request.ImageURL == "" {
			h.writeError(w, "image_url is required", http.StatusBadRequest)
			return
		}
		if request.Session != "" {
			sessionID = request.Session
		}
		data, err = h.downloadImageFromURL(r.Context(), request.ImageURL)
		if err != nil {
			h.writeError(w, "Failed to process image URL: "+err.Error(), http.StatusBadRequest)
			return
		}
	case strings.HasPrefix(contentType, "multipart/"):
		file, _, ferr := r.FormFile("file")
		if ferr != nil {
			file, _, ferr = r.FormFile("files")
			if ferr != nil {
				h.writeError(w, "Failed to read file: "+ferr.Error(), http.StatusBadRequest)
				return
			}
		}
		defer file.Close()
		if s := r.FormValue("session"); s != "" {
			sessionID = s
		}
		data, err = io.ReadAll(io.LimitReader(file, maxImageBytes))
	default:
		data, err = io.ReadAll(io.LimitReader(r.Body, maxImageBytes))
	}
	if err != nil {
		h.writeError(w, "Failed to read file contents: "+err.Error(), http.StatusInternalServerError)
		return
	}

	format, width, height, err := checkImage(data)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if sessionID == "" {
		sessionID = defaultSessionID
	}
	slog.Info("Scan requested", "session_id", sessionID, "format", format, "width", width, "height", height)

	events, err := h.scanner.StartScan(r.Context(), sessionID, data)
	if errors.Is(err, scan.ErrScanInProgress) {
		h.writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		h.writeError(w, "Failed to start scan: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	for event := range events {
		if err := enc.Encode(event); err != nil {
			slog.Warn("Client went away during scan", "session_id", sessionID, "err", err)
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
