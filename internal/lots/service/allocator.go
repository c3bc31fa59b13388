package service

import (
	"context"
	"time"

	"github.com/shelflife/shelflife-backend/internal/lots/allocation"
	"github.com/shelflife/shelflife-backend/internal/lots/repository"
	"github.com/shelflife/shelflife-backend/pkg/errors"
	"github.com/shelflife/shelflife-backend/pkg/logger"
)

// AllocatorService builds advisory first-expires-first-out allocation
// plans. Planning never mutates stock; the consumption coordinator owns
// the commit.
type AllocatorService struct {
	lotRepo     *repository.LotRepository
	productRepo *repository.ProductRepository
	logger      *logger.Logger
}

// NewAllocatorService creates a new allocator service
func NewAllocatorService(
	lotRepo *repository.LotRepository,
	productRepo *repository.ProductRepository,
	log *logger.Logger,
) *AllocatorService {
	return &AllocatorService{
		lotRepo:     lotRepo,
		productRepo: productRepo,
		logger:      log,
	}
}

// Allocate plans a draw of quantity units of a product across its eligible
// lots. A shortfall is reported in the plan, not as an error; the caller
// decides whether partial fulfillment is acceptable.
func (s *AllocatorService) Allocate(ctx context.Context, productID string, quantity int, branchID *string) (*allocation.Plan, error) {
	if quantity <= 0 {
		return nil, errors.Validation(map[string]string{"quantity": "must be greater than zero"})
	}

	if _, err := s.productRepo.GetByID(ctx, productID); err != nil {
		return nil, err
	}

	candidates, err := s.lotRepo.AllocationCandidates(ctx, productID, branchID)
	if err != nil {
		return nil, err
	}

	plan := allocation.Build(productID, quantity, candidates, time.Now())

	if plan.Shortfall > 0 {
		s.logger.Warn().
			Str("product_id", productID).
			Int("requested", plan.Requested).
			Int("shortfall", plan.Shortfall).
			Msg("allocation plan has shortfall")
	}

	return plan, nil
}
