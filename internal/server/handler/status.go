package handler

import (
	"net/http"

	"github.com/alanyoungcy/predexchange/internal/feed"
)

// StatusSource reports the live ingestion session.
type StatusSource interface {
	Status() feed.Status
}

// StatusHandler serves the ingestion session status.
type StatusHandler struct {
	mode    string
	session StatusSource
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, session StatusSource) *StatusHandler {
	return &StatusHandler{mode: mode, session: session}
}

// GetStatus responds with the mode and session counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":    h.mode,
		"session": h.session.Status(),
	})
}
