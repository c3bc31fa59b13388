package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/shelflife/shelflife-backend/internal/lots/repository"
	"github.com/shelflife/shelflife-backend/internal/lots/service"
	"github.com/shelflife/shelflife-backend/pkg/httputil"
	"github.com/shelflife/shelflife-backend/pkg/logger"
)

// LotHandler handles lot ledger endpoints
type LotHandler struct {
	ledger *service.LedgerService
	logger *logger.Logger
}

// NewLotHandler creates a new lot handler
func NewLotHandler(ledger *service.LedgerService, log *logger.Logger) *LotHandler {
	return &LotHandler{
		ledger: ledger,
		logger: log,
	}
}

// CreateLotRequest is the receipt payload
type CreateLotRequest struct {
	ProductID        string          `json:"product_id" validate:"required,uuid"`
	BatchNumber      string          `json:"batch_number" validate:"required"`
	ProductionDate   *time.Time      `json:"production_date,omitempty"`
	ExpiryDate       *time.Time      `json:"expiry_date,omitempty"`
	InitialQuantity  int             `json:"initial_quantity" validate:"required,gt=0"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	SupplierRef      *string         `json:"supplier_ref,omitempty"`
	PurchaseOrderRef *string         `json:"purchase_order_ref,omitempty"`
	Notes            *string         `json:"notes,omitempty"`
	BranchID         *string         `json:"branch_id,omitempty"`
}

// Create records a newly received lot
func (h *LotHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateLotRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	lot := &repository.Lot{
		ProductID:        req.ProductID,
		BatchNumber:      req.BatchNumber,
		ProductionDate:   req.ProductionDate,
		ExpiryDate:       req.ExpiryDate,
		InitialQuantity:  req.InitialQuantity,
		UnitCost:         req.UnitCost,
		SupplierRef:      req.SupplierRef,
		PurchaseOrderRef: req.PurchaseOrderRef,
		Notes:            req.Notes,
		BranchID:         req.BranchID,
	}

	view, err := h.ledger.CreateLot(r.Context(), lot)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, view)
}

// Get gets a lot with its derived expiry classification
func (h *LotHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := h.ledger.GetLot(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, view)
}

// ListByProduct lists a product's lots in first-expires-first order
func (h *LotHandler) ListByProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	views, err := h.ledger.ListLots(r.Context(), productID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, views)
}

// Update applies a manual correction to a lot
func (h *LotHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var upd service.LotUpdate
	if err := httputil.DecodeJSON(r, &upd); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&upd); err != nil {
		httputil.Error(w, err)
		return
	}

	view, err := h.ledger.UpdateLot(r.Context(), id, &upd, httputil.GetActorID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, view)
}

// Delete removes an empty lot
func (h *LotHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.ledger.DeleteLot(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Block excludes a lot from allocation
func (h *LotHandler) Block(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Reason string `json:"reason" validate:"required"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.ledger.BlockLot(r.Context(), id, req.Reason); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Unblock returns a lot to allocation eligibility
func (h *LotHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.ledger.UnblockLot(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Audit returns a lot's quantity-affecting history
func (h *LotHandler) Audit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entries, err := h.ledger.LotAudit(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, entries)
}

// Sweep triggers an expiry sweep on demand
func (h *LotHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	count, err := h.ledger.SweepExpired(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]int64{"flagged": count})
}

// Reconcile checks the lot ledger against the product's aggregate stock
func (h *LotHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	if err := h.ledger.Reconcile(r.Context(), productID); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"status": "consistent"})
}
