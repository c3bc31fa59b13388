package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/shelflife/shelflife-backend/pkg/database"
)

// ConsumptionRecord links a sale line to the lot it drew from, with a
// quantity and cost snapshot taken at commit time. Records are immutable;
// a reversal flips the reversed flag instead of deleting.
type ConsumptionRecord struct {
	ID               string          `db:"id" json:"id"`
	SaleLineID       string          `db:"sale_line_id" json:"sale_line_id"`
	LotID            string          `db:"lot_id" json:"lot_id"`
	ProductID        string          `db:"product_id" json:"product_id"`
	Quantity         int             `db:"quantity" json:"quantity"`
	UnitCostAtTime   decimal.Decimal `db:"unit_cost_at_time" json:"unit_cost_at_time"`
	TotalCost        decimal.Decimal `db:"total_cost" json:"total_cost"`
	ExpiryDateAtTime *time.Time      `db:"expiry_date_at_time" json:"expiry_date_at_time,omitempty"`
	Reversed         bool            `db:"reversed" json:"reversed"`
	ReversedAt       *time.Time      `db:"reversed_at" json:"reversed_at,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// ConsumptionRepository handles consumption record persistence
type ConsumptionRepository struct {
	db *database.DB
}

// NewConsumptionRepository creates a new consumption repository
func NewConsumptionRepository(db *database.DB) *ConsumptionRepository {
	return &ConsumptionRepository{db: db}
}

// InsertTx inserts a consumption record inside the caller's transaction
func (r *ConsumptionRepository) InsertTx(ctx context.Context, tx *sqlx.Tx, rec *ConsumptionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.TotalCost = rec.UnitCostAtTime.Mul(decimal.NewFromInt(int64(rec.Quantity)))

	query := `
		INSERT INTO lot_consumptions (
			id, sale_line_id, lot_id, product_id, quantity,
			unit_cost_at_time, total_cost, expiry_date_at_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := tx.QueryRowxContext(ctx, query,
		rec.ID, rec.SaleLineID, rec.LotID, rec.ProductID, rec.Quantity,
		rec.UnitCostAtTime, rec.TotalCost, rec.ExpiryDateAtTime,
	).Scan(&rec.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// ListBySaleLine lists the consumption records behind a sale line. One sale
// line may span several lots.
func (r *ConsumptionRepository) ListBySaleLine(ctx context.Context, saleLineID string) ([]*ConsumptionRecord, error) {
	var records []*ConsumptionRecord
	query := `
		SELECT * FROM lot_consumptions
		WHERE sale_line_id = $1
		ORDER BY created_at ASC
	`
	if err := r.db.SelectContext(ctx, &records, query, saleLineID); err != nil {
		return nil, err
	}
	return records, nil
}

// ListBySaleLineTx is ListBySaleLine inside the caller's transaction, used
// by the reversal path so it sees its own writes.
func (r *ConsumptionRepository) ListBySaleLineTx(ctx context.Context, tx *sqlx.Tx, saleLineID string) ([]*ConsumptionRecord, error) {
	var records []*ConsumptionRecord
	query := `
		SELECT * FROM lot_consumptions
		WHERE sale_line_id = $1 AND NOT reversed
		ORDER BY created_at ASC
	`
	if err := tx.SelectContext(ctx, &records, query, saleLineID); err != nil {
		return nil, err
	}
	return records, nil
}

// MarkReversedTx flags a record as reversed inside the caller's transaction
func (r *ConsumptionRepository) MarkReversedTx(ctx context.Context, tx *sqlx.Tx, recordID string) error {
	query := `UPDATE lot_consumptions SET reversed = TRUE, reversed_at = NOW() WHERE id = $1 AND NOT reversed`
	_, err := tx.ExecContext(ctx, query, recordID)
	return err
}

// ExistsForLot reports whether any consumption record references the lot.
// Lots with consumption history must not be deleted: it would orphan the
// audit trail behind profit accounting.
func (r *ConsumptionRepository) ExistsForLot(ctx context.Context, lotID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM lot_consumptions WHERE lot_id = $1)`
	if err := r.db.GetContext(ctx, &exists, query, lotID); err != nil {
		return false, err
	}
	return exists, nil
}
