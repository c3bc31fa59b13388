package events

import (
	"context"
	"time"

	"github.com/shelflife/shelflife-backend/internal/lots/expiry"
	"github.com/shelflife/shelflife-backend/internal/lots/repository"
	"github.com/shelflife/shelflife-backend/pkg/logger"
	"github.com/shelflife/shelflife-backend/pkg/messaging"
)

// LotEventPublisher publishes lot lifecycle events. A nil publisher is
// safe to call; services run without a broker in tests.
type LotEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewLotEventPublisher creates a new lot event publisher
func NewLotEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*LotEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeLotEvents, "lot-service", log)
	if err != nil {
		return nil, err
	}

	return &LotEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishExpiryAlert publishes a critical/warning/expired alert for a lot
func (p *LotEventPublisher) PublishExpiryAlert(ctx context.Context, lot *repository.Lot, productName string, now time.Time) {
	if p == nil {
		return
	}

	data := messaging.ExpiryAlertEvent{
		ProductID:    lot.ProductID,
		ProductName:  productName,
		LotID:        lot.ID,
		BatchNumber:  lot.BatchNumber,
		ExpiryDate:   lot.ExpiryDate,
		CurrentStock: lot.CurrentQuantity,
		BranchID:     lot.BranchID,
	}

	var eventType string
	switch expiry.Classify(lot.ExpiryDate, now) {
	case expiry.StatusExpired:
		eventType = messaging.EventLotExpired
	case expiry.StatusCritical:
		eventType = messaging.EventExpiryCritical
	case expiry.StatusWarning:
		eventType = messaging.EventExpiryWarning
	default:
		return
	}
	if lot.ExpiryDate != nil {
		data.DaysUntil = expiry.DaysUntil(*lot.ExpiryDate, now)
	}

	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("lot_id", lot.ID).Msg("failed to publish expiry alert event")
	}
}

// PublishStockConsumed publishes one event per lot drawn in a sale commit
func (p *LotEventPublisher) PublishStockConsumed(ctx context.Context, rec *repository.ConsumptionRecord, batchNumber string, remaining int) {
	if p == nil {
		return
	}

	data := messaging.StockConsumedEvent{
		ProductID:   rec.ProductID,
		LotID:       rec.LotID,
		BatchNumber: batchNumber,
		Quantity:    rec.Quantity,
		SaleLineID:  rec.SaleLineID,
		Remaining:   remaining,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockConsumed, data); err != nil {
		p.logger.Error().Err(err).Str("lot_id", rec.LotID).Msg("failed to publish stock consumed event")
	}
}

// PublishDisposalCompleted publishes the outcome of a disposal run
func (p *LotEventPublisher) PublishDisposalCompleted(ctx context.Context, lotIDs []string, method, disposedBy, writtenOffValue string, branchID *string) {
	if p == nil {
		return
	}

	data := messaging.DisposalCompletedEvent{
		LotIDs:          lotIDs,
		Method:          method,
		DisposedBy:      disposedBy,
		WrittenOffValue: writtenOffValue,
		BranchID:        branchID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventDisposalCompleted, data); err != nil {
		p.logger.Error().Err(err).Int("lot_count", len(lotIDs)).Msg("failed to publish disposal completed event")
	}
}
