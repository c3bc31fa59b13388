package handler

import (
	"net/http"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/shelflife/shelflife-backend/internal/lots/service"
	"github.com/shelflife/shelflife-backend/pkg/database"
	"github.com/shelflife/shelflife-backend/pkg/httputil"
	"github.com/shelflife/shelflife-backend/pkg/logger"
)

// AllocationHandler handles FEFO planning and sale-time consumption
// endpoints
type AllocationHandler struct {
	db          *database.DB
	allocator   *service.AllocatorService
	consumption *service.ConsumptionService
	logger      *logger.Logger
}

// NewAllocationHandler creates a new allocation handler
func NewAllocationHandler(
	db *database.DB,
	allocator *service.AllocatorService,
	consumption *service.ConsumptionService,
	log *logger.Logger,
) *AllocationHandler {
	return &AllocationHandler{
		db:          db,
		allocator:   allocator,
		consumption: consumption,
		logger:      log,
	}
}

// PlanRequest asks for an advisory FEFO allocation plan
type PlanRequest struct {
	ProductID string  `json:"product_id" validate:"required,uuid"`
	Quantity  int     `json:"quantity" validate:"required,gt=0"`
	BranchID  *string `json:"branch_id,omitempty"`
}

// Plan computes an advisory allocation plan without touching stock
func (h *AllocationHandler) Plan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	plan, err := h.allocator.Allocate(r.Context(), req.ProductID, req.Quantity, req.BranchID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, plan)
}

// ValidateRequest carries sale lines with their lot-level breakdown
type ValidateRequest struct {
	Lines []service.AllocationLine `json:"lines" validate:"required,min=1,dive"`
}

// Validate checks an allocation without committing it
func (h *AllocationHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.consumption.ValidateAllocation(r.Context(), req.Lines)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Commit validates and commits an allocation in one transaction. Sale
// orchestrators embedding this service in a larger transaction call
// CommitAllocation directly; this endpoint serves standalone consumers.
func (h *AllocationHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.consumption.ValidateAllocation(r.Context(), req.Lines)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if !result.Valid {
		httputil.JSON(w, http.StatusUnprocessableEntity, result)
		return
	}

	sale := service.SaleContext{PerformedBy: httputil.GetActorID(r.Context())}

	var committed []service.CommittedDraw
	err = h.db.Transaction(r.Context(), func(tx *sqlx.Tx) error {
		var txErr error
		committed, txErr = h.consumption.CommitAllocation(r.Context(), tx, req.Lines, sale)
		return txErr
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	h.consumption.NotifyCommitted(r.Context(), committed)

	records := make([]interface{}, len(committed))
	for i, d := range committed {
		records[i] = d.Record
	}
	httputil.Created(w, map[string]interface{}{
		"records":  records,
		"warnings": result.Warnings,
	})
}

// Reverse restores a cancelled sale line to the lots it originally drew
// from
func (h *AllocationHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SaleLineID string `json:"sale_line_id" validate:"required"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	actor := httputil.GetActorID(r.Context())

	var summary *service.ReversalSummary
	err := h.db.Transaction(r.Context(), func(tx *sqlx.Tx) error {
		var txErr error
		summary, txErr = h.consumption.ReverseAllocation(r.Context(), tx, req.SaleLineID, actor)
		return txErr
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	h.consumption.NotifyReversed(r.Context(), summary.ProductIDs)

	httputil.JSON(w, http.StatusOK, map[string]string{
		"reversed_records": strconv.Itoa(summary.Reversed),
	})
}
