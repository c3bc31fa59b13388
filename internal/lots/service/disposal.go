package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/shelflife/shelflife-backend/internal/lots/events"
	"github.com/shelflife/shelflife-backend/internal/lots/repository"
	"github.com/shelflife/shelflife-backend/pkg/database"
	"github.com/shelflife/shelflife-backend/pkg/errors"
	"github.com/shelflife/shelflife-backend/pkg/logger"
)

// DisposalService marks lots as written off and reverses mistakes.
// Disposal is a classification, not a stock movement: quantity stays put
// and the remaining quantity at disposal time is the loss figure.
type DisposalService struct {
	db        *database.DB
	lotRepo   *repository.LotRepository
	auditRepo *repository.AuditRepository
	publisher *events.LotEventPublisher
	logger    *logger.Logger
}

// NewDisposalService creates a new disposal service
func NewDisposalService(
	db *database.DB,
	lotRepo *repository.LotRepository,
	auditRepo *repository.AuditRepository,
	publisher *events.LotEventPublisher,
	log *logger.Logger,
) *DisposalService {
	return &DisposalService{
		db:        db,
		lotRepo:   lotRepo,
		auditRepo: auditRepo,
		publisher: publisher,
		logger:    log,
	}
}

// DisposalResult reports the outcome of a disposal run. Skipped counts
// lots that were already disposed; re-disposing is a no-op, not an error.
type DisposalResult struct {
	DisposedLotIDs  []string        `json:"disposed_lot_ids"`
	SkippedLotIDs   []string        `json:"skipped_lot_ids"`
	WrittenOffValue decimal.Decimal `json:"written_off_value"`
}

// Dispose marks the given lots as disposed in one transaction and reports
// the total value written off at cost basis.
func (s *DisposalService) Dispose(ctx context.Context, lotIDs []string, method, actor string, notes *string) (*DisposalResult, error) {
	if len(lotIDs) == 0 {
		return nil, errors.Validation(map[string]string{"lot_ids": "at least one lot is required"})
	}
	if method == "" {
		return nil, errors.Validation(map[string]string{"method": "disposal method is required"})
	}

	result := &DisposalResult{
		DisposedLotIDs:  []string{},
		SkippedLotIDs:   []string{},
		WrittenOffValue: decimal.Zero,
	}
	var branchID *string

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, lotID := range lotIDs {
			lot, err := s.lotRepo.GetByIDTx(ctx, tx, lotID)
			if err != nil {
				return err
			}

			affected, err := s.lotRepo.SetDisposedTx(ctx, tx, lotID, method, actor, notes)
			if err != nil {
				return err
			}
			if !affected {
				result.SkippedLotIDs = append(result.SkippedLotIDs, lotID)
				continue
			}

			entry := &repository.AuditEntry{
				LotID:            lot.ID,
				ProductID:        lot.ProductID,
				Action:           repository.AuditActionDispose,
				Quantity:         0,
				PreviousQuantity: lot.CurrentQuantity,
				NewQuantity:      lot.CurrentQuantity,
				Reason:           notes,
				PerformedBy:      actor,
			}
			if err := s.auditRepo.AppendTx(ctx, tx, entry); err != nil {
				return err
			}

			result.DisposedLotIDs = append(result.DisposedLotIDs, lotID)
			result.WrittenOffValue = result.WrittenOffValue.Add(lot.Value())
			if branchID == nil {
				branchID = lot.BranchID
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("disposed", len(result.DisposedLotIDs)).
		Int("skipped", len(result.SkippedLotIDs)).
		Str("method", method).
		Str("written_off_value", result.WrittenOffValue.String()).
		Msg("disposal completed")

	if len(result.DisposedLotIDs) > 0 {
		s.publisher.PublishDisposalCompleted(ctx, result.DisposedLotIDs, method, actor,
			result.WrittenOffValue.String(), branchID)
	}

	return result, nil
}

// UndoDisposal clears the disposed flag on the given lots. Quantity is
// untouched and the undo is always permitted.
func (s *DisposalService) UndoDisposal(ctx context.Context, lotIDs []string, actor string) error {
	if len(lotIDs) == 0 {
		return errors.Validation(map[string]string{"lot_ids": "at least one lot is required"})
	}

	return s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, lotID := range lotIDs {
			lot, err := s.lotRepo.GetByIDTx(ctx, tx, lotID)
			if err != nil {
				return err
			}

			affected, err := s.lotRepo.ClearDisposedTx(ctx, tx, lotID)
			if err != nil {
				return err
			}
			if !affected {
				continue
			}

			entry := &repository.AuditEntry{
				LotID:            lot.ID,
				ProductID:        lot.ProductID,
				Action:           repository.AuditActionUndispose,
				Quantity:         0,
				PreviousQuantity: lot.CurrentQuantity,
				NewQuantity:      lot.CurrentQuantity,
				PerformedBy:      actor,
			}
			if err := s.auditRepo.AppendTx(ctx, tx, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListDisposable lists expired lots awaiting disposal
func (s *DisposalService) ListDisposable(ctx context.Context, branchID *string) ([]*LotView, error) {
	lots, err := s.lotRepo.ListDisposable(ctx, branchID)
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
