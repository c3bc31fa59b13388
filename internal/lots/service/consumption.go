package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shelflife/shelflife-backend/internal/lots/events"
	"github.com/shelflife/shelflife-backend/internal/lots/expiry"
	"github.com/shelflife/shelflife-backend/internal/lots/repository"
	"github.com/shelflife/shelflife-backend/internal/lots/velocity"
	"github.com/shelflife/shelflife-backend/pkg/errors"
	"github.com/shelflife/shelflife-backend/pkg/logger"
)

// ConsumptionService validates and commits multi-lot allocations as part
// of a surrounding sale transaction. Commit and reversal run inside a
// transaction owned by the caller: the sale orchestrator decides when the
// whole sale commits or rolls back, and this service's writes go with it.
type ConsumptionService struct {
	lotRepo         *repository.LotRepository
	consumptionRepo *repository.ConsumptionRepository
	productRepo     *repository.ProductRepository
	auditRepo       *repository.AuditRepository
	publisher       *events.LotEventPublisher
	velocityCache   velocity.Invalidator
	logger          *logger.Logger
}

// NewConsumptionService creates a new consumption service. velocityCache
// may be nil when no cache is in play.
func NewConsumptionService(
	lotRepo *repository.LotRepository,
	consumptionRepo *repository.ConsumptionRepository,
	productRepo *repository.ProductRepository,
	auditRepo *repository.AuditRepository,
	publisher *events.LotEventPublisher,
	velocityCache velocity.Invalidator,
	log *logger.Logger,
) *ConsumptionService {
	return &ConsumptionService{
		lotRepo:         lotRepo,
		consumptionRepo: consumptionRepo,
		productRepo:     productRepo,
		auditRepo:       auditRepo,
		publisher:       publisher,
		velocityCache:   velocityCache,
		logger:          log,
	}
}

// LotDraw is one (lot, quantity) pair within a sale line
type LotDraw struct {
	LotID    string `json:"lot_id" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

// AllocationLine is one sale line with its lot-level breakdown
type AllocationLine struct {
	SaleLineID string   `json:"sale_line_id" validate:"required"`
	ProductID  string   `json:"product_id" validate:"required,uuid"`
	Quantity   int      `json:"quantity" validate:"required,gt=0"`
	Draws      []LotDraw `json:"draws" validate:"required,min=1,dive"`
}

// Issue names one violated rule on one entity
type Issue struct {
	SaleLineID string `json:"sale_line_id"`
	LotID      string `json:"lot_id,omitempty"`
	Rule       string `json:"rule"`
	Message    string `json:"message"`
}

// ValidationResult accumulates every violation and warning across all
// lines. Warnings never block a commit.
type ValidationResult struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// ValidateAllocation checks every line and draw, accumulating all
// violations instead of stopping at the first. Near-expiry lots produce
// non-blocking warnings.
func (s *ConsumptionService) ValidateAllocation(ctx context.Context, lines []AllocationLine) (*ValidationResult, error) {
	result := &ValidationResult{Errors: []Issue{}, Warnings: []Issue{}}
	now := time.Now()

	for _, line := range lines {
		sum := 0
		for _, draw := range line.Draws {
			sum += draw.Quantity
		}
		if sum != line.Quantity {
			result.Errors = append(result.Errors, Issue{
				SaleLineID: line.SaleLineID,
				Rule:       "quantity_mismatch",
				Message:    fmt.Sprintf("line requests %d but lot draws sum to %d", line.Quantity, sum),
			})
		}

		for _, draw := range line.Draws {
			lot, err := s.lotRepo.GetByID(ctx, draw.LotID)
			if err != nil {
				if errors.Is(err, errors.ErrNotFound) {
					result.Errors = append(result.Errors, Issue{
						SaleLineID: line.SaleLineID,
						LotID:      draw.LotID,
						Rule:       "unknown_lot",
						Message:    "lot does not exist",
					})
					continue
				}
				return nil, err
			}

			if lot.ProductID != line.ProductID {
				result.Errors = append(result.Errors, Issue{
					SaleLineID: line.SaleLineID,
					LotID:      draw.LotID,
					Rule:       "product_mismatch",
					Message:    "lot belongs to a different product",
				})
			}
			if lot.Disposed {
				result.Errors = append(result.Errors, Issue{
					SaleLineID: line.SaleLineID,
					LotID:      draw.LotID,
					Rule:       "lot_disposed",
					Message:    "lot has been disposed",
				})
			}
			if lot.Blocked {
				result.Errors = append(result.Errors, Issue{
					SaleLineID: line.SaleLineID,
					LotID:      draw.LotID,
					Rule:       "lot_blocked",
					Message:    "lot is blocked from allocation",
				})
			}
			if lot.CurrentQuantity < draw.Quantity {
				result.Errors = append(result.Errors, Issue{
					SaleLineID: line.SaleLineID,
					LotID:      draw.LotID,
					Rule:       "insufficient_quantity",
					Message:    fmt.Sprintf("lot has %d units, %d requested", lot.CurrentQuantity, draw.Quantity),
				})
			}

			if lot.ExpiryDate != nil {
				d := expiry.DaysUntil(*lot.ExpiryDate, now)
				switch {
				case d <= 0:
					result.Warnings = append(result.Warnings, Issue{
						SaleLineID: line.SaleLineID,
						LotID:      draw.LotID,
						Rule:       "lot_expired",
						Message:    "lot has reached its expiry date",
					})
				case d <= 3:
					result.Warnings = append(result.Warnings, Issue{
						SaleLineID: line.SaleLineID,
						LotID:      draw.LotID,
						Rule:       "lot_expiring_soon",
						Message:    fmt.Sprintf("lot expires in %d days", d),
					})
				}
			}
		}
	}

	result.Valid = len(result.Errors) == 0
	return result, nil
}

// SaleContext identifies who is committing and on which sale
type SaleContext struct {
	PerformedBy string
}

// CommittedDraw is one completed draw with the snapshots the caller needs
// to publish events after the outer transaction commits.
type CommittedDraw struct {
	Record      *repository.ConsumptionRecord
	BatchNumber string
	Remaining   int
}

// CommitAllocation applies a validated allocation inside the caller's
// transaction: per draw it decrements the lot under a guard, snapshots an
// immutable consumption record and appends an audit entry, then moves the
// product's aggregate counter by the line total. A failed guard aborts the
// whole commit; nothing is observable until the caller commits.
func (s *ConsumptionService) CommitAllocation(ctx context.Context, tx *sqlx.Tx, lines []AllocationLine, sale SaleContext) ([]CommittedDraw, error) {
	var committed []CommittedDraw

	for _, line := range lines {
		draws, err := s.orderDrawsFEFO(ctx, tx, line.Draws)
		if err != nil {
			return nil, err
		}

		lineTotal := 0
		for _, d := range draws {
			remaining, err := s.lotRepo.DecrementTx(ctx, tx, d.lot.ID, d.quantity)
			if err != nil {
				return nil, err
			}

			rec := &repository.ConsumptionRecord{
				SaleLineID:       line.SaleLineID,
				LotID:            d.lot.ID,
				ProductID:        line.ProductID,
				Quantity:         d.quantity,
				UnitCostAtTime:   d.lot.UnitCost,
				ExpiryDateAtTime: d.lot.ExpiryDate,
			}
			if err := s.consumptionRepo.InsertTx(ctx, tx, rec); err != nil {
				return nil, err
			}

			entry := &repository.AuditEntry{
				LotID:            d.lot.ID,
				ProductID:        line.ProductID,
				Action:           repository.AuditActionConsume,
				Quantity:         -d.quantity,
				PreviousQuantity: remaining + d.quantity,
				NewQuantity:      remaining,
				PerformedBy:      sale.PerformedBy,
			}
			if err := s.auditRepo.AppendTx(ctx, tx, entry); err != nil {
				return nil, err
			}

			committed = append(committed, CommittedDraw{
				Record:      rec,
				BatchNumber: d.lot.BatchNumber,
				Remaining:   remaining,
			})
			lineTotal += d.quantity
		}

		if err := s.productRepo.AdjustStockTx(ctx, tx, line.ProductID, -lineTotal); err != nil {
			return nil, err
		}
	}

	return committed, nil
}

// NotifyCommitted publishes consumption events and drops the stale
// velocity cache entries for draws whose outer transaction has committed.
// Separate from CommitAllocation so nothing is announced for a sale that
// later rolled back.
func (s *ConsumptionService) NotifyCommitted(ctx context.Context, draws []CommittedDraw) {
	seen := map[string]struct{}{}
	for _, d := range draws {
		s.publisher.PublishStockConsumed(ctx, d.Record, d.BatchNumber, d.Remaining)
		if _, ok := seen[d.Record.ProductID]; !ok {
			seen[d.Record.ProductID] = struct{}{}
			s.invalidateVelocity(ctx, d.Record.ProductID)
		}
	}
}

// NotifyReversed drops the velocity cache entries touched by a committed
// reversal
func (s *ConsumptionService) NotifyReversed(ctx context.Context, productIDs []string) {
	for _, productID := range productIDs {
		s.invalidateVelocity(ctx, productID)
	}
}

func (s *ConsumptionService) invalidateVelocity(ctx context.Context, productID string) {
	if s.velocityCache == nil {
		return
	}
	s.velocityCache.Invalidate(ctx, productID)
}

// ReversalSummary reports what a committed reversal touched
type ReversalSummary struct {
	Reversed   int
	ProductIDs []string
}

// ReverseAllocation restores a cancelled or refunded sale line to the same
// lots it originally drew from. Restoring to arbitrary lots would corrupt
// both FEFO ordering and the cost basis behind the consumption records.
func (s *ConsumptionService) ReverseAllocation(ctx context.Context, tx *sqlx.Tx, saleLineID, actor string) (*ReversalSummary, error) {
	records, err := s.consumptionRepo.ListBySaleLineTx(ctx, tx, saleLineID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.NotFound("consumption records for sale line " + saleLineID)
	}

	totalsByProduct := map[string]int{}
	for _, rec := range records {
		remaining, err := s.lotRepo.RestoreTx(ctx, tx, rec.LotID, rec.Quantity)
		if err != nil {
			return nil, err
		}
		if err := s.consumptionRepo.MarkReversedTx(ctx, tx, rec.ID); err != nil {
			return nil, err
		}

		entry := &repository.AuditEntry{
			LotID:            rec.LotID,
			ProductID:        rec.ProductID,
			Action:           repository.AuditActionReverse,
			Quantity:         rec.Quantity,
			PreviousQuantity: remaining - rec.Quantity,
			NewQuantity:      remaining,
			PerformedBy:      actor,
		}
		if err := s.auditRepo.AppendTx(ctx, tx, entry); err != nil {
			return nil, err
		}

		totalsByProduct[rec.ProductID] += rec.Quantity
	}

	summary := &ReversalSummary{Reversed: len(records)}
	for productID, total := range totalsByProduct {
		if err := s.productRepo.AdjustStockTx(ctx, tx, productID, total); err != nil {
			return nil, err
		}
		summary.ProductIDs = append(summary.ProductIDs, productID)
	}

	return summary, nil
}

type orderedDraw struct {
	lot      *repository.Lot
	quantity int
}

// orderDrawsFEFO loads each draw's lot inside the transaction and orders
// the decrements first-expires-first so the final state matches the plan
// regardless of the order the caller listed the draws in.
func (s *ConsumptionService) orderDrawsFEFO(ctx context.Context, tx *sqlx.Tx, draws []LotDraw) ([]orderedDraw, error) {
	ordered := make([]orderedDraw, 0, len(draws))
	for _, draw := range draws {
		lot, err := s.lotRepo.GetByIDTx(ctx, tx, draw.LotID)
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, orderedDraw{lot: lot, quantity: draw.Quantity})
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].lot, ordered[j].lot
		switch {
		case a.ExpiryDate == nil && b.ExpiryDate == nil:
			return a.CreatedAt.Before(b.CreatedAt)
		case a.ExpiryDate == nil:
			return false
		case b.ExpiryDate == nil:
			return true
		case a.ExpiryDate.Equal(*b.ExpiryDate):
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
	})
	return ordered, nil
}
