package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/shelflife/shelflife-backend/pkg/database"
)

// CategoryRollup aggregates active lot stock per product category
type CategoryRollup struct {
	Category         string          `db:"category" json:"category"`
	LotCount         int             `db:"lot_count" json:"lot_count"`
	TotalQuantity    int             `db:"total_quantity" json:"total_quantity"`
	TotalValue       decimal.Decimal `db:"total_value" json:"total_value"`
	ExpiringQuantity int             `db:"expiring_quantity" json:"expiring_quantity"`
	ExpiredQuantity  int             `db:"expired_quantity" json:"expired_quantity"`
}

// BranchRollup aggregates active lot stock per branch
type BranchRollup struct {
	BranchID         *string         `db:"branch_id" json:"branch_id"`
	LotCount         int             `db:"lot_count" json:"lot_count"`
	TotalQuantity    int             `db:"total_quantity" json:"total_quantity"`
	TotalValue       decimal.Decimal `db:"total_value" json:"total_value"`
	ExpiringQuantity int             `db:"expiring_quantity" json:"expiring_quantity"`
	ExpiredQuantity  int             `db:"expired_quantity" json:"expired_quantity"`
}

// ExpiryBucket is one day of the expiry timeline: how much stock runs out
// on that date and what it is worth at cost
type ExpiryBucket struct {
	ExpiryDate    string          `db:"expiry_date" json:"expiry_date"`
	LotCount      int             `db:"lot_count" json:"lot_count"`
	TotalQuantity int             `db:"total_quantity" json:"total_quantity"`
	TotalValue    decimal.Decimal `db:"total_value" json:"total_value"`
}

// WasteRollup summarizes disposed stock over a trailing window
type WasteRollup struct {
	LotCount      int             `db:"lot_count" json:"lot_count"`
	TotalQuantity int             `db:"total_quantity" json:"total_quantity"`
	TotalValue    decimal.Decimal `db:"total_value" json:"total_value"`
}

// AnalyticsRepository runs the read-only rollup queries behind the
// analytics endpoints
type AnalyticsRepository struct {
	db *database.DB
}

// NewAnalyticsRepository creates a new analytics repository
func NewAnalyticsRepository(db *database.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// CategoryRollups aggregates non-disposed lots per product category
func (r *AnalyticsRepository) CategoryRollups(ctx context.Context) ([]*CategoryRollup, error) {
	var rollups []*CategoryRollup
	query := `
		SELECT
			p.category,
			COUNT(l.id) AS lot_count,
			COALESCE(SUM(l.current_quantity), 0) AS total_quantity,
			COALESCE(SUM(l.current_quantity * l.unit_cost), 0) AS total_value,
			COALESCE(SUM(l.current_quantity) FILTER (
				WHERE l.expiry_date IS NOT NULL
				  AND l.expiry_date >= CURRENT_DATE
				  AND l.expiry_date <= CURRENT_DATE + INTERVAL '7 days'
			), 0) AS expiring_quantity,
			COALESCE(SUM(l.current_quantity) FILTER (
				WHERE l.expiry_date IS NOT NULL AND l.expiry_date < CURRENT_DATE
			), 0) AS expired_quantity
		FROM lots l
		JOIN products p ON p.id = l.product_id
		WHERE NOT l.disposed
		GROUP BY p.category
		ORDER BY total_value DESC
	`
	if err := r.db.SelectContext(ctx, &rollups, query); err != nil {
		return nil, err
	}
	return rollups, nil
}

// BranchRollups aggregates non-disposed lots per branch. Shared lots show
// up under a NULL branch.
func (r *AnalyticsRepository) BranchRollups(ctx context.Context) ([]*BranchRollup, error) {
	var rollups []*BranchRollup
	query := `
		SELECT
			l.branch_id,
			COUNT(l.id) AS lot_count,
			COALESCE(SUM(l.current_quantity), 0) AS total_quantity,
			COALESCE(SUM(l.current_quantity * l.unit_cost), 0) AS total_value,
			COALESCE(SUM(l.current_quantity) FILTER (
				WHERE l.expiry_date IS NOT NULL
				  AND l.expiry_date >= CURRENT_DATE
				  AND l.expiry_date <= CURRENT_DATE + INTERVAL '7 days'
			), 0) AS expiring_quantity,
			COALESCE(SUM(l.current_quantity) FILTER (
				WHERE l.expiry_date IS NOT NULL AND l.expiry_date < CURRENT_DATE
			), 0) AS expired_quantity
		FROM lots l
		WHERE NOT l.disposed
		GROUP BY l.branch_id
		ORDER BY total_value DESC
	`
	if err := r.db.SelectContext(ctx, &rollups, query); err != nil {
		return nil, err
	}
	return rollups, nil
}

// ExpiryTimeline buckets non-disposed stock by expiry date over the next
// horizon days
func (r *AnalyticsRepository) ExpiryTimeline(ctx context.Context, horizonDays int) ([]*ExpiryBucket, error) {
	var buckets []*ExpiryBucket
	query := `
		SELECT
			TO_CHAR(l.expiry_date, 'YYYY-MM-DD') AS expiry_date,
			COUNT(l.id) AS lot_count,
			COALESCE(SUM(l.current_quantity), 0) AS total_quantity,
			COALESCE(SUM(l.current_quantity * l.unit_cost), 0) AS total_value
		FROM lots l
		WHERE NOT l.disposed
		  AND l.current_quantity > 0
		  AND l.expiry_date IS NOT NULL
		  AND l.expiry_date >= CURRENT_DATE
		  AND l.expiry_date <= CURRENT_DATE + $1 * INTERVAL '1 day'
		GROUP BY l.expiry_date
		ORDER BY l.expiry_date ASC
	`
	if err := r.db.SelectContext(ctx, &buckets, query, horizonDays); err != nil {
		return nil, err
	}
	return buckets, nil
}

// DisposedSince summarizes lots disposed within the trailing window
func (r *AnalyticsRepository) DisposedSince(ctx context.Context, days int) (*WasteRollup, error) {
	var rollup WasteRollup
	query := `
		SELECT
			COUNT(id) AS lot_count,
			COALESCE(SUM(current_quantity), 0) AS total_quantity,
			COALESCE(SUM(current_quantity * unit_cost), 0) AS total_value
		FROM lots
		WHERE disposed
		  AND disposed_at >= NOW() - $1 * INTERVAL '1 day'
	`
	if err := r.db.GetContext(ctx, &rollup, query, days); err != nil {
		return nil, err
	}
	return &rollup, nil
}
