package handlers

import (
	"net/http"
	"strings"
)

func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		h.writeJSON(w, h.sessionStore.GetAll())
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	scanID := strings.TrimPrefix(r.URL.Path, "/api/sessions/")

	session, ok := h.getSessionOrError(w, scanID)
	if !ok {
		return
	}

	switch r.Method {
	case "GET":
		h.writeJSON(w, session)
	case "DELETE":
		h.sessionStore.Delete(scanID)
		w.WriteHeader(http.StatusNoContent)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
