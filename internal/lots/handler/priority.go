package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shelflife/shelflife-backend/internal/lots/service"
	"github.com/shelflife/shelflife-backend/pkg/httputil"
	"github.com/shelflife/shelflife-backend/pkg/logger"
)

// PriorityHandler handles waste-prevention ranking endpoints
type PriorityHandler struct {
	priority *service.PriorityService
	logger   *logger.Logger
}

// NewPriorityHandler creates a new priority handler
func NewPriorityHandler(priority *service.PriorityService, log *logger.Logger) *PriorityHandler {
	return &PriorityHandler{
		priority: priority,
		logger:   log,
	}
}

// Rank lists at-risk lots by priority score, highest first.
// Query params: days (horizon, default 30), limit (default 50).
func (h *PriorityHandler) Rank(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	limit := queryInt(r, "limit", 50)

	scored, err := h.priority.RankAtRisk(r.Context(), days, limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, scored)
}

// Score scores a single lot on demand
func (h *PriorityHandler) Score(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	scored, err := h.priority.ScoreLot(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, scored)
}

func queryInt(r *http.Request, key string, fallback int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}
