package handler

import (
	"net/http"

	"github.com/shelflife/shelflife-backend/internal/lots/service"
	"github.com/shelflife/shelflife-backend/pkg/httputil"
	"github.com/shelflife/shelflife-backend/pkg/logger"
)

// DisposalHandler handles disposal workflow endpoints
type DisposalHandler struct {
	disposal *service.DisposalService
	logger   *logger.Logger
}

// NewDisposalHandler creates a new disposal handler
func NewDisposalHandler(disposal *service.DisposalService, log *logger.Logger) *DisposalHandler {
	return &DisposalHandler{
		disposal: disposal,
		logger:   log,
	}
}

// DisposeRequest marks lots as written off
type DisposeRequest struct {
	LotIDs []string `json:"lot_ids" validate:"required,min=1,dive,uuid"`
	Method string   `json:"method" validate:"required"`
	Notes  *string  `json:"notes,omitempty"`
}

// Dispose marks the given lots as disposed
func (h *DisposalHandler) Dispose(w http.ResponseWriter, r *http.Request) {
	var req DisposeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.disposal.Dispose(r.Context(), req.LotIDs, req.Method, httputil.GetActorID(r.Context()), req.Notes)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Undo clears the disposed flag on the given lots
func (h *DisposalHandler) Undo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LotIDs []string `json:"lot_ids" validate:"required,min=1,dive,uuid"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.disposal.UndoDisposal(r.Context(), req.LotIDs, httputil.GetActorID(r.Context())); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// ListDisposable lists expired lots awaiting disposal
func (h *DisposalHandler) ListDisposable(w http.ResponseWriter, r *http.Request) {
	var branchID *string
	if b := r.URL.Query().Get("branch_id"); b != "" {
		branchID = &b
	}

	views, err := h.disposal.ListDisposable(r.Context(), branchID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, views)
}
