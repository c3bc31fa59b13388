package handler

import (
	"net/http"

	"github.com/shelflife/shelflife-backend/internal/lots/service"
	"github.com/shelflife/shelflife-backend/pkg/httputil"
	"github.com/shelflife/shelflife-backend/pkg/logger"
)

// AnalyticsHandler handles the read-only rollup endpoints
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
	logger    *logger.Logger
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(analytics *service.AnalyticsService, log *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		analytics: analytics,
		logger:    log,
	}
}

// Overview returns the waste-prevention dashboard payload
func (h *AnalyticsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.analytics.Overview(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, overview)
}

// Categories returns the per-category stock rollups
func (h *AnalyticsHandler) Categories(w http.ResponseWriter, r *http.Request) {
	rollups, err := h.analytics.CategoryRollups(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rollups)
}

// Branches returns the per-branch stock rollups
func (h *AnalyticsHandler) Branches(w http.ResponseWriter, r *http.Request) {
	rollups, err := h.analytics.BranchRollups(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rollups)
}

// ExpiryTimeline returns the day-by-day expiry buckets
func (h *AnalyticsHandler) ExpiryTimeline(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)

	buckets, err := h.analytics.ExpiryTimeline(r.Context(), days)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, buckets)
}
