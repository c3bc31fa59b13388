package service

import (
	"context"

	"github.com/shelflife/shelflife-backend/internal/lots/repository"
	"github.com/shelflife/shelflife-backend/pkg/logger"
)

// AnalyticsService rolls lot data up into category, branch and timeline
// views. Read-only consumer of the ledger; every query here is freely
// retryable.
type AnalyticsService struct {
	analyticsRepo *repository.AnalyticsRepository
	priority      *PriorityService
	logger        *logger.Logger
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(
	analyticsRepo *repository.AnalyticsRepository,
	priority *PriorityService,
	log *logger.Logger,
) *AnalyticsService {
	return &AnalyticsService{
		analyticsRepo: analyticsRepo,
		priority:      priority,
		logger:        log,
	}
}

// Overview is the waste-prevention dashboard payload
type Overview struct {
	Categories         []*repository.CategoryRollup `json:"categories"`
	Branches           []*repository.BranchRollup   `json:"branches"`
	RecentWaste        *repository.WasteRollup      `json:"recent_waste"`
	TopRecommendations []*ScoredLot                 `json:"top_recommendations"`
}

// Overview assembles the category and branch rollups, the trailing 30-day
// waste summary, and the top 10 lots by priority score.
func (s *AnalyticsService) Overview(ctx context.Context) (*Overview, error) {
	categories, err := s.analyticsRepo.CategoryRollups(ctx)
	if err != nil {
		return nil, err
	}

	branches, err := s.analyticsRepo.BranchRollups(ctx)
	if err != nil {
		return nil, err
	}

	waste, err := s.analyticsRepo.DisposedSince(ctx, 30)
	if err != nil {
		return nil, err
	}

	recommendations, err := s.priority.RankAtRisk(ctx, 30, 10)
	if err != nil {
		return nil, err
	}

	return &Overview{
		Categories:         categories,
		Branches:           branches,
		RecentWaste:        waste,
		TopRecommendations: recommendations,
	}, nil
}

// CategoryRollups returns the per-category stock aggregates
func (s *AnalyticsService) CategoryRollups(ctx context.Context) ([]*repository.CategoryRollup, error) {
	return s.analyticsRepo.CategoryRollups(ctx)
}

// BranchRollups returns the per-branch stock aggregates
func (s *AnalyticsService) BranchRollups(ctx context.Context) ([]*repository.BranchRollup, error) {
	return s.analyticsRepo.BranchRollups(ctx)
}

// ExpiryTimeline returns the day-by-day expiry buckets over the horizon
func (s *AnalyticsService) ExpiryTimeline(ctx context.Context, horizonDays int) ([]*repository.ExpiryBucket, error) {
	if horizonDays <= 0 {
		horizonDays = 30
	}
	return s.analyticsRepo.ExpiryTimeline(ctx, horizonDays)
}
