package service

import (
	"context"
	"sort"
	"time"

	"github.com/shelflife/shelflife-backend/internal/lots/repository"
	"github.com/shelflife/shelflife-backend/internal/lots/scoring"
	"github.com/shelflife/shelflife-backend/internal/lots/velocity"
	"github.com/shelflife/shelflife-backend/pkg/logger"
)

// PriorityService ranks at-risk lots for waste-prevention action and
// attaches markdown price recommendations. Read-only.
type PriorityService struct {
	lotRepo     *repository.LotRepository
	productRepo *repository.ProductRepository
	velocity    velocity.Provider
	scorer      *scoring.Scorer
	logger      *logger.Logger
}

// NewPriorityService creates a new priority service
func NewPriorityService(
	lotRepo *repository.LotRepository,
	productRepo *repository.ProductRepository,
	velocityProvider velocity.Provider,
	scorer *scoring.Scorer,
	log *logger.Logger,
) *PriorityService {
	return &PriorityService{
		lotRepo:     lotRepo,
		productRepo: productRepo,
		velocity:    velocityProvider,
		scorer:      scorer,
		logger:      log,
	}
}

// ScoredLot pairs a lot with its priority score and markdown
// recommendation
type ScoredLot struct {
	Lot         *repository.Lot  `json:"lot"`
	ProductName string           `json:"product_name"`
	Score       scoring.Result   `json:"score"`
	Markdown    scoring.Markdown `json:"markdown"`
}

// RankAtRisk scores every non-disposed lot expiring within horizonDays and
// returns the top limit, highest priority first. A zero limit returns all.
func (s *PriorityService) RankAtRisk(ctx context.Context, horizonDays, limit int) ([]*ScoredLot, error) {
	lots, err := s.lotRepo.ListExpiringWithin(ctx, horizonDays)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	products := map[string]*repository.Product{}
	velocities := map[string]float64{}

	scored := make([]*ScoredLot, 0, len(lots))
	for _, lot := range lots {
		product, ok := products[lot.ProductID]
		if !ok {
			product, err = s.productRepo.GetByID(ctx, lot.ProductID)
			if err != nil {
				return nil, err
			}
			products[lot.ProductID] = product
		}

		dailyVelocity, ok := velocities[lot.ProductID]
		if !ok {
			dailyVelocity, err = s.velocity.DailyVelocity(ctx, lot.ProductID)
			if err != nil {
				// The velocity signal is advisory; score without it rather
				// than failing the whole ranking.
				s.logger.Warn().Err(err).Str("product_id", lot.ProductID).Msg("velocity lookup failed")
				dailyVelocity = 0
			}
			velocities[lot.ProductID] = dailyVelocity
		}

		in := scoring.Input{
			LotID:           lot.ID,
			BatchNumber:     lot.BatchNumber,
			ProductID:       lot.ProductID,
			ExpiryDate:      lot.ExpiryDate,
			Quantity:        lot.CurrentQuantity,
			UnitCost:        lot.UnitCost,
			CurrentPrice:    product.Price,
			ExpirySensitive: product.ExpirySensitive,
			DailyVelocity:   dailyVelocity,
		}

		scored = append(scored, &ScoredLot{
			Lot:         lot,
			ProductName: product.Name,
			Score:       s.scorer.Score(in, now),
			Markdown:    s.scorer.Recommend(in, now),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score.Score > scored[j].Score.Score
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// ScoreLot scores a single lot on demand
func (s *PriorityService) ScoreLot(ctx context.Context, lotID string) (*ScoredLot, error) {
	lot, err := s.lotRepo.GetByID(ctx, lotID)
	if err != nil {
		return nil, err
	}

	product, err := s.productRepo.GetByID(ctx, lot.ProductID)
	if err != nil {
		return nil, err
	}

	dailyVelocity, err := s.velocity.DailyVelocity(ctx, lot.ProductID)
	if err != nil {
		s.logger.Warn().Err(err).Str("product_id", lot.ProductID).Msg("velocity lookup failed")
		dailyVelocity = 0
	}

	now := time.Now()
	in := scoring.Input{
		LotID:           lot.ID,
		BatchNumber:     lot.BatchNumber,
		ProductID:       lot.ProductID,
		ExpiryDate:      lot.ExpiryDate,
		Quantity:        lot.CurrentQuantity,
		UnitCost:        lot.UnitCost,
		CurrentPrice:    product.Price,
		ExpirySensitive: product.ExpirySensitive,
		DailyVelocity:   dailyVelocity,
	}

	return &ScoredLot{
		Lot:         lot,
		ProductName: product.Name,
		Score:       s.scorer.Score(in, now),
		Markdown:    s.scorer.Recommend(in, now),
	}, nil
}
