package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

// SportsHandler serves the latest sports game states.
type SportsHandler struct {
	games  domain.SportsStore
	logger *slog.Logger
}

// NewSportsHandler creates a SportsHandler.
func NewSportsHandler(games domain.SportsStore, logger *slog.Logger) *SportsHandler {
	return &SportsHandler{games: games, logger: logger}
}

// ListGames returns games, live first.
// GET /api/sports?league=nba&limit=50
func (h *SportsHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 500)
	league := r.URL.Query().Get("league")

	games, err := h.games.List(r.Context(), league, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list sports games failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list games")
		return
	}
	if games == nil {
		games = []domain.SportsGame{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": games, "count": len(games)})
}
