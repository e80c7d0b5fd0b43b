package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iconidentify/vidgrab/internal/repository"
)

// HistoryHandler serves recent download outcomes.
type HistoryHandler struct {
	store  repository.HistoryStore
	logger *slog.Logger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(store repository.HistoryStore, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		store:  store,
		logger: logger,
	}
}

// HistoryResponse is the JSON response for GET /history.
type HistoryResponse struct {
	Downloads []repository.HistoryRecord `json:"downloads"`
	Count     int                        `json:"count"`
}

// Recent handles GET /history.
func (h *HistoryHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	recs, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("history query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "failed to load history",
			Code:  "InternalError",
		})
		return
	}
	if recs == nil {
		recs = []repository.HistoryRecord{}
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		Downloads: recs,
		Count:     len(recs),
	})
}
