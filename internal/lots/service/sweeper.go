package service

import (
	"context"
	"time"

	"github.com/shelflife/shelflife-backend/internal/lots/events"
	"github.com/shelflife/shelflife-backend/internal/lots/repository"
	"github.com/shelflife/shelflife-backend/pkg/logger"
)

// alertHorizonDays bounds which lots get expiry alerts each cycle; it
// covers the warning band with room to spare.
const alertHorizonDays = 7

// Sweeper periodically flips the cached is_expired flag and publishes
// expiry alerts for lots entering their warning and critical windows. It
// is the only writer of is_expired.
type Sweeper struct {
	ledger      *LedgerService
	lotRepo     *repository.LotRepository
	productRepo *repository.ProductRepository
	publisher   *events.LotEventPublisher
	interval    time.Duration
	logger      *logger.Logger
	cancel      context.CancelFunc
}

// NewSweeper creates a new expiry sweeper
func NewSweeper(
	ledger *LedgerService,
	lotRepo *repository.LotRepository,
	productRepo *repository.ProductRepository,
	publisher *events.LotEventPublisher,
	interval time.Duration,
	log *logger.Logger,
) *Sweeper {
	return &Sweeper{
		ledger:      ledger,
		lotRepo:     lotRepo,
		productRepo: productRepo,
		publisher:   publisher,
		interval:    interval,
		logger:      log,
	}
}

// Start starts the sweeper in a background goroutine.
// An initial sweep runs immediately, then one per interval.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		s.logger.Info().Dur("interval", s.interval).Msg("expiry sweeper started")

		s.runCycle(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("expiry sweeper stopped")
				return
			case <-ticker.C:
				s.runCycle(ctx)
			}
		}
	}()
}

// Stop stops the sweeper goroutine
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// runCycle flips expired flags and publishes alerts for near-expiry lots
func (s *Sweeper) runCycle(ctx context.Context) {
	start := time.Now()

	flipped, err := s.ledger.SweepExpired(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("expiry sweep failed")
		return
	}

	lots, err := s.lotRepo.ListExpiringWithin(ctx, alertHorizonDays)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list near-expiry lots")
		return
	}

	now := time.Now()
	productNames := map[string]string{}
	for _, lot := range lots {
		name, ok := productNames[lot.ProductID]
		if !ok {
			product, err := s.productRepo.GetByID(ctx, lot.ProductID)
			if err != nil {
				s.logger.Error().Err(err).Str("product_id", lot.ProductID).Msg("failed to resolve product for alert")
				continue
			}
			name = product.Name
			productNames[lot.ProductID] = name
		}
		s.publisher.PublishExpiryAlert(ctx, lot, name, now)
	}

	s.logger.Info().
		Dur("duration", time.Since(start)).
		Int64("flipped", flipped).
		Int("alerted", len(lots)).
		Msg("expiry sweep cycle completed")
}
