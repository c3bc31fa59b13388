package service

import (
	"context"
	"strconv"
	"time"

	"github.com/shelflife/shelflife-backend/internal/lots/expiry"
	"github.com/shelflife/shelflife-backend/internal/lots/repository"
	"github.com/shelflife/shelflife-backend/pkg/errors"
	"github.com/shelflife/shelflife-backend/pkg/logger"
)

// LedgerService owns lot lifecycle: receipt, correction, blocking,
// deletion and the expiry sweep.
type LedgerService struct {
	lotRepo         *repository.LotRepository
	productRepo     *repository.ProductRepository
	consumptionRepo *repository.ConsumptionRepository
	auditRepo       *repository.AuditRepository
	logger          *logger.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	lotRepo *repository.LotRepository,
	productRepo *repository.ProductRepository,
	consumptionRepo *repository.ConsumptionRepository,
	auditRepo *repository.AuditRepository,
	log *logger.Logger,
) *LedgerService {
	return &LedgerService{
		lotRepo:         lotRepo,
		productRepo:     productRepo,
		consumptionRepo: consumptionRepo,
		auditRepo:       auditRepo,
		logger:          log,
	}
}

// LotView is a lot enriched with its derived expiry classification
type LotView struct {
	*repository.Lot
	ExpiryStatus    expiry.Status  `json:"expiry_status"`
	Urgency         expiry.Urgency `json:"urgency"`
	DaysUntilExpiry *int           `json:"days_until_expiry,omitempty"`
}

func enrichLot(lot *repository.Lot, now time.Time) *LotView {
	view := &LotView{
		Lot:          lot,
		ExpiryStatus: expiry.Classify(lot.ExpiryDate, now),
		Urgency:      expiry.ClassifyUrgency(lot.ExpiryDate, now),
	}
	if lot.ExpiryDate != nil {
		d := expiry.DaysUntil(*lot.ExpiryDate, now)
		view.DaysUntilExpiry = &d
	}
	return view
}

// CreateLot records a newly received lot. Products whose category mandates
// an expiry date reject lots without one.
func (s *LedgerService) CreateLot(ctx context.Context, lot *repository.Lot) (*LotView, error) {
	product, err := s.productRepo.GetByID(ctx, lot.ProductID)
	if err != nil {
		return nil, err
	}

	details := map[string]string{}
	if product.RequiresExpiry && lot.ExpiryDate == nil {
		details["expiry_date"] = "category " + product.Category + " requires an expiry date"
	}
	if lot.InitialQuantity <= 0 {
		details["initial_quantity"] = "must be greater than zero"
	}
	if lot.UnitCost.IsNegative() {
		details["unit_cost"] = "must not be negative"
	}
	if lot.ProductionDate != nil && lot.ExpiryDate != nil && lot.ExpiryDate.Before(*lot.ProductionDate) {
		details["expiry_date"] = "must not precede the production date"
	}
	if len(details) > 0 {
		return nil, errors.Validation(details)
	}

	if err := s.lotRepo.Create(ctx, lot); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("lot_id", lot.ID).
		Str("product_id", lot.ProductID).
		Str("batch_number", lot.BatchNumber).
		Int("quantity", lot.InitialQuantity).
		Msg("lot created")

	return enrichLot(lot, time.Now()), nil
}

// GetLot gets a lot with its derived expiry classification
func (s *LedgerService) GetLot(ctx context.Context, id string) (*LotView, error) {
	lot, err := s.lotRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return enrichLot(lot, time.Now()), nil
}

// ListLots lists a product's lots in first-expires-first order
func (s *LedgerService) ListLots(ctx context.Context, productID string) ([]*LotView, error) {
	lots, err := s.lotRepo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	views := make([]*LotView, len(lots))
	for i, lot := range lots {
		views[i] = enrichLot(lot, now)
	}
	return views, nil
}

// LotUpdate carries the fields a manual correction may change. Nil fields
// are left as they are; initial quantity and unit cost are immutable.
type LotUpdate struct {
	BatchNumber      *string    `json:"batch_number,omitempty"`
	ProductionDate   *time.Time `json:"production_date,omitempty"`
	ExpiryDate       *time.Time `json:"expiry_date,omitempty"`
	ClearExpiryDate  bool       `json:"clear_expiry_date,omitempty"`
	CurrentQuantity  *int       `json:"current_quantity,omitempty" validate:"omitempty,min=0"`
	SupplierRef      *string    `json:"supplier_ref,omitempty"`
	PurchaseOrderRef *string    `json:"purchase_order_ref,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
	Reason           *string    `json:"reason,omitempty"`
}

// UpdateLot applies a manual correction. Quantity corrections are audited
// and must stay within the lot's initial quantity.
func (s *LedgerService) UpdateLot(ctx context.Context, id string, upd *LotUpdate, actor string) (*LotView, error) {
	lot, err := s.lotRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if lot.Disposed {
		return nil, errors.Conflict("disposed lot " + id + " cannot be updated")
	}

	previousQuantity := lot.CurrentQuantity

	if upd.BatchNumber != nil {
		lot.BatchNumber = *upd.BatchNumber
	}
	if upd.ProductionDate != nil {
		lot.ProductionDate = upd.ProductionDate
	}
	if upd.ClearExpiryDate {
		lot.ExpiryDate = nil
	} else if upd.ExpiryDate != nil {
		lot.ExpiryDate = upd.ExpiryDate
	}
	if upd.CurrentQuantity != nil {
		if *upd.CurrentQuantity < 0 || *upd.CurrentQuantity > lot.InitialQuantity {
			return nil, errors.Validation(map[string]string{
				"current_quantity": "must be between 0 and the initial quantity (" + strconv.Itoa(lot.InitialQuantity) + ")",
			})
		}
		lot.CurrentQuantity = *upd.CurrentQuantity
	}
	if upd.SupplierRef != nil {
		lot.SupplierRef = upd.SupplierRef
	}
	if upd.PurchaseOrderRef != nil {
		lot.PurchaseOrderRef = upd.PurchaseOrderRef
	}
	if upd.Notes != nil {
		lot.Notes = upd.Notes
	}

	if err := s.lotRepo.Update(ctx, lot, previousQuantity); err != nil {
		return nil, err
	}

	if lot.CurrentQuantity != previousQuantity {
		entry := &repository.AuditEntry{
			LotID:            lot.ID,
			ProductID:        lot.ProductID,
			Action:           repository.AuditActionAdjust,
			Quantity:         lot.CurrentQuantity - previousQuantity,
			PreviousQuantity: previousQuantity,
			NewQuantity:      lot.CurrentQuantity,
			Reason:           upd.Reason,
			PerformedBy:      actor,
		}
		if err := s.auditRepo.Append(ctx, entry); err != nil {
			s.logger.Error().Err(err).Str("lot_id", lot.ID).Msg("failed to record adjustment audit entry")
		}
	}

	return enrichLot(lot, time.Now()), nil
}

// DeleteLot removes an empty lot. Lots with remaining stock or consumption
// history are refused: the history backs profit accounting and must not be
// orphaned.
func (s *LedgerService) DeleteLot(ctx context.Context, id string) error {
	lot, err := s.lotRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if lot.CurrentQuantity > 0 {
		return errors.Conflict("lot " + id + " still has " + strconv.Itoa(lot.CurrentQuantity) + " units in stock")
	}

	hasHistory, err := s.consumptionRepo.ExistsForLot(ctx, id)
	if err != nil {
		return err
	}
	if hasHistory {
		return errors.Conflict("lot " + id + " has consumption history and cannot be deleted")
	}

	if err := s.lotRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info().Str("lot_id", id).Msg("lot deleted")
	return nil
}

// BlockLot excludes a lot from allocation without hiding it
func (s *LedgerService) BlockLot(ctx context.Context, id string, reason string) error {
	if reason == "" {
		return errors.Validation(map[string]string{"reason": "blocking requires a reason"})
	}
	return s.lotRepo.SetBlocked(ctx, id, true, &reason)
}

// UnblockLot returns a blocked lot to allocation eligibility
func (s *LedgerService) UnblockLot(ctx context.Context, id string) error {
	return s.lotRepo.SetBlocked(ctx, id, false, nil)
}

// SweepExpired flips the cached is_expired flag on lots past their expiry
// date. Idempotent; returns the number of lots flipped.
func (s *LedgerService) SweepExpired(ctx context.Context) (int64, error) {
	count, err := s.lotRepo.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info().Int64("count", count).Msg("expiry sweep flagged lots")
	}
	return count, nil
}

// LotAudit returns the quantity-affecting history of a lot, newest first
func (s *LedgerService) LotAudit(ctx context.Context, lotID string) ([]*repository.AuditEntry, error) {
	if _, err := s.lotRepo.GetByID(ctx, lotID); err != nil {
		return nil, err
	}
	return s.auditRepo.ListByLot(ctx, lotID)
}

// Reconcile compares the sum of a product's non-disposed lot quantities
// against its aggregate stock counter. Divergence is surfaced, never
// auto-corrected.
func (s *LedgerService) Reconcile(ctx context.Context, productID string) error {
	lotSum, err := s.lotRepo.SumActiveQuantity(ctx, productID)
	if err != nil {
		return err
	}

	aggregate, err := s.productRepo.GetStock(ctx, productID)
	if err != nil {
		return err
	}

	if lotSum != aggregate {
		s.logger.Error().
			Str("product_id", productID).
			Int("lot_sum", lotSum).
			Int("aggregate_stock", aggregate).
			Msg("lot ledger diverges from aggregate stock")
		return errors.Integrity("lot quantities diverge from aggregate stock", map[string]string{
			"product_id":      productID,
			"lot_sum":         strconv.Itoa(lotSum),
			"aggregate_stock": strconv.Itoa(aggregate),
		})
	}
	return nil
}
