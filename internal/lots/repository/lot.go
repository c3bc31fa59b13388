package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/shelflife/shelflife-backend/pkg/database"
	"github.com/shelflife/shelflife-backend/pkg/errors"
)

// Lot represents a received batch of one product, tracked with its own
// expiry date, cost basis and remaining quantity.
type Lot struct {
	ID               string          `db:"id" json:"id"`
	ProductID        string          `db:"product_id" json:"product_id"`
	BatchNumber      string          `db:"batch_number" json:"batch_number"`
	ProductionDate   *time.Time      `db:"production_date" json:"production_date,omitempty"`
	ExpiryDate       *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	InitialQuantity  int             `db:"initial_quantity" json:"initial_quantity"`
	CurrentQuantity  int             `db:"current_quantity" json:"current_quantity"`
	UnitCost         decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	SupplierRef      *string         `db:"supplier_ref" json:"supplier_ref,omitempty"`
	PurchaseOrderRef *string         `db:"purchase_order_ref" json:"purchase_order_ref,omitempty"`
	Notes            *string         `db:"notes" json:"notes,omitempty"`
	Blocked          bool            `db:"blocked" json:"blocked"`
	BlockedReason    *string         `db:"blocked_reason" json:"blocked_reason,omitempty"`
	Disposed         bool            `db:"disposed" json:"disposed"`
	DisposedAt       *time.Time      `db:"disposed_at" json:"disposed_at,omitempty"`
	DisposalMethod   *string         `db:"disposal_method" json:"disposal_method,omitempty"`
	DisposedBy       *string         `db:"disposed_by" json:"disposed_by,omitempty"`
	BranchID         *string         `db:"branch_id" json:"branch_id,omitempty"`
	IsExpired        bool            `db:"is_expired" json:"is_expired"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// Value returns the stock value of the lot at cost basis
func (l *Lot) Value() decimal.Decimal {
	return l.UnitCost.Mul(decimal.NewFromInt(int64(l.CurrentQuantity)))
}

// LotRepository handles lot persistence
type LotRepository struct {
	db *database.DB
}

// NewLotRepository creates a new lot repository
func NewLotRepository(db *database.DB) *LotRepository {
	return &LotRepository{db: db}
}

// lotColumns is the canonical select list, kept in sync with the lots table
const lotColumns = `
	id, product_id, batch_number, production_date, expiry_date,
	initial_quantity, current_quantity, unit_cost, supplier_ref,
	purchase_order_ref, notes, blocked, blocked_reason, disposed,
	disposed_at, disposal_method, disposed_by, branch_id, is_expired,
	created_at, updated_at`

// Create inserts a new lot. CurrentQuantity starts at InitialQuantity.
func (r *LotRepository) Create(ctx context.Context, lot *Lot) error {
	if lot.ID == "" {
		lot.ID = uuid.New().String()
	}
	lot.CurrentQuantity = lot.InitialQuantity

	query := `
		INSERT INTO lots (
			id, product_id, batch_number, production_date, expiry_date,
			initial_quantity, current_quantity, unit_cost, supplier_ref,
			purchase_order_ref, notes, branch_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		lot.ID, lot.ProductID, lot.BatchNumber, lot.ProductionDate, lot.ExpiryDate,
		lot.InitialQuantity, lot.CurrentQuantity, lot.UnitCost, lot.SupplierRef,
		lot.PurchaseOrderRef, lot.Notes, lot.BranchID,
	).Scan(&lot.CreatedAt, &lot.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a lot by ID
func (r *LotRepository) GetByID(ctx context.Context, id string) (*Lot, error) {
	var lot Lot
	query := `SELECT ` + lotColumns + ` FROM lots WHERE id = $1`
	if err := r.db.GetContext(ctx, &lot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("lot")
		}
		return nil, err
	}
	return &lot, nil
}

// GetByIDTx gets a lot inside the caller's transaction. The commit path
// reads cost and expiry snapshots through this so they match the row it is
// about to decrement.
func (r *LotRepository) GetByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*Lot, error) {
	var lot Lot
	query := `SELECT ` + lotColumns + ` FROM lots WHERE id = $1`
	if err := tx.GetContext(ctx, &lot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("lot")
		}
		return nil, err
	}
	return &lot, nil
}

// ListByProduct lists all lots for a product ordered first-expires-first,
// lots without an expiry date last, ties broken by receipt order.
func (r *LotRepository) ListByProduct(ctx context.Context, productID string) ([]*Lot, error) {
	var lots []*Lot
	query := `
		SELECT ` + lotColumns + ` FROM lots
		WHERE product_id = $1
		ORDER BY expiry_date ASC NULLS LAST, created_at ASC
	`
	if err := r.db.SelectContext(ctx, &lots, query, productID); err != nil {
		return nil, err
	}
	return lots, nil
}

// AllocationCandidates returns the lots eligible for allocation for a
// product, in FEFO order. Disposed, blocked and already-expired lots are
// excluded. When branchID is set, shared lots (branch_id IS NULL) remain
// eligible alongside the branch's own lots.
func (r *LotRepository) AllocationCandidates(ctx context.Context, productID string, branchID *string) ([]*Lot, error) {
	var lots []*Lot
	query := `
		SELECT ` + lotColumns + ` FROM lots
		WHERE product_id = $1
		  AND current_quantity > 0
		  AND NOT disposed
		  AND NOT blocked
		  AND (expiry_date IS NULL OR expiry_date >= CURRENT_DATE)
		  AND ($2::text IS NULL OR branch_id IS NULL OR branch_id = $2)
		ORDER BY expiry_date ASC NULLS LAST, created_at ASC
	`
	if err := r.db.SelectContext(ctx, &lots, query, productID, branchID); err != nil {
		return nil, err
	}
	return lots, nil
}

// Update applies a manual correction to a lot. Initial quantity and unit
// cost are immutable after receipt and are not touched here. The write is
// guarded on the quantity the caller read: a sale committing in between
// makes the guard miss and the correction is refused instead of silently
// overwriting the decrement.
func (r *LotRepository) Update(ctx context.Context, lot *Lot, expectedQuantity int) error {
	query := `
		UPDATE lots SET
			batch_number = $2, production_date = $3, expiry_date = $4,
			current_quantity = $5, supplier_ref = $6, purchase_order_ref = $7,
			notes = $8, branch_id = $9, updated_at = NOW()
		WHERE id = $1 AND current_quantity = $10
	`

	result, err := r.db.ExecContext(ctx, query,
		lot.ID, lot.BatchNumber, lot.ProductionDate, lot.ExpiryDate,
		lot.CurrentQuantity, lot.SupplierRef, lot.PurchaseOrderRef,
		lot.Notes, lot.BranchID, expectedQuantity,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		var exists bool
		if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM lots WHERE id = $1)`, lot.ID); err != nil {
			return err
		}
		if !exists {
			return errors.NotFound("lot")
		}
		return errors.Conflict("lot " + lot.ID + " was modified concurrently, re-read and retry")
	}

	return nil
}

// SetBlocked blocks or unblocks a lot. Blocked lots stay visible in
// listings but are excluded from allocation.
func (r *LotRepository) SetBlocked(ctx context.Context, id string, blocked bool, reason *string) error {
	query := `UPDATE lots SET blocked = $2, blocked_reason = $3, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, blocked, reason)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("lot")
	}
	return nil
}

// Delete removes a lot row. Callers must check emptiness and consumption
// history first; the service layer owns those rules.
func (r *LotRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM lots WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("lot")
	}

	return nil
}

// DecrementTx atomically draws quantity from a lot inside the caller's
// transaction. The WHERE clause is the concurrency guard: two concurrent
// sales can never jointly drive current_quantity negative, and a lot
// disposed or blocked after planning fails closed here.
func (r *LotRepository) DecrementTx(ctx context.Context, tx *sqlx.Tx, lotID string, quantity int) (int, error) {
	var remaining int
	query := `
		UPDATE lots
		SET current_quantity = current_quantity - $2, updated_at = NOW()
		WHERE id = $1
		  AND current_quantity >= $2
		  AND NOT disposed
		  AND NOT blocked
		RETURNING current_quantity
	`
	err := tx.QueryRowxContext(ctx, query, lotID, quantity).Scan(&remaining)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, errors.Conflict("lot " + lotID + " has insufficient available quantity")
		}
		return 0, err
	}
	return remaining, nil
}

// RestoreTx returns previously consumed quantity to the same lot inside the
// caller's transaction. The guard keeps current_quantity within the initial
// quantity.
func (r *LotRepository) RestoreTx(ctx context.Context, tx *sqlx.Tx, lotID string, quantity int) (int, error) {
	var remaining int
	query := `
		UPDATE lots
		SET current_quantity = current_quantity + $2, updated_at = NOW()
		WHERE id = $1
		  AND current_quantity + $2 <= initial_quantity
		RETURNING current_quantity
	`
	err := tx.QueryRowxContext(ctx, query, lotID, quantity).Scan(&remaining)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, errors.Conflict("restoring " + lotID + " would exceed its initial quantity")
		}
		return 0, err
	}
	return remaining, nil
}

// SetDisposedTx flags a lot as disposed inside the caller's transaction.
// Quantity is untouched: the remaining quantity at disposal time is the
// written-off figure. Already-disposed lots are skipped (affected == 0).
func (r *LotRepository) SetDisposedTx(ctx context.Context, tx *sqlx.Tx, lotID, method, actor string, notes *string) (bool, error) {
	query := `
		UPDATE lots
		SET disposed = TRUE, disposed_at = NOW(), disposal_method = $2,
		    disposed_by = $3,
		    notes = CASE WHEN $4::text IS NULL THEN notes
		                 ELSE COALESCE(notes || E'\n', '') || $4 END,
		    updated_at = NOW()
		WHERE id = $1 AND NOT disposed
	`
	result, err := tx.ExecContext(ctx, query, lotID, method, actor, notes)
	if err != nil {
		return false, err
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// ClearDisposedTx reverses a disposal inside the caller's transaction.
func (r *LotRepository) ClearDisposedTx(ctx context.Context, tx *sqlx.Tx, lotID string) (bool, error) {
	query := `
		UPDATE lots
		SET disposed = FALSE, disposed_at = NULL, disposal_method = NULL,
		    disposed_by = NULL, updated_at = NOW()
		WHERE id = $1 AND disposed
	`
	result, err := tx.ExecContext(ctx, query, lotID)
	if err != nil {
		return false, err
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// ListDisposable lists expired lots that have not been disposed yet.
// Zero-quantity lots are included: they still need the paperwork.
func (r *LotRepository) ListDisposable(ctx context.Context, branchID *string) ([]*Lot, error) {
	var lots []*Lot
	query := `
		SELECT ` + lotColumns + ` FROM lots
		WHERE expiry_date IS NOT NULL
		  AND expiry_date < CURRENT_DATE
		  AND NOT disposed
		  AND ($1::text IS NULL OR branch_id IS NULL OR branch_id = $1)
		ORDER BY expiry_date ASC, created_at ASC
	`
	if err := r.db.SelectContext(ctx, &lots, query, branchID); err != nil {
		return nil, err
	}
	return lots, nil
}

// ListExpiringWithin lists non-disposed, non-empty lots whose expiry date
// falls within the given number of days (expired lots included).
func (r *LotRepository) ListExpiringWithin(ctx context.Context, days int) ([]*Lot, error) {
	var lots []*Lot
	query := `
		SELECT ` + lotColumns + ` FROM lots
		WHERE expiry_date IS NOT NULL
		  AND expiry_date <= CURRENT_DATE + $1 * INTERVAL '1 day'
		  AND NOT disposed
		  AND current_quantity > 0
		ORDER BY expiry_date ASC, created_at ASC
	`
	if err := r.db.SelectContext(ctx, &lots, query, days); err != nil {
		return nil, err
	}
	return lots, nil
}

// ListActive lists all non-disposed lots. Used by the analytics rollups.
func (r *LotRepository) ListActive(ctx context.Context) ([]*Lot, error) {
	var lots []*Lot
	query := `
		SELECT ` + lotColumns + ` FROM lots
		WHERE NOT disposed
		ORDER BY expiry_date ASC NULLS LAST, created_at ASC
	`
	if err := r.db.SelectContext(ctx, &lots, query); err != nil {
		return nil, err
	}
	return lots, nil
}

// SweepExpired flips the cached is_expired flag for lots whose expiry date
// has passed. Idempotent: lots already flagged are not touched, so a second
// sweep with no elapsed time flips zero rows.
func (r *LotRepository) SweepExpired(ctx context.Context) (int64, error) {
	query := `
		UPDATE lots
		SET is_expired = TRUE, updated_at = NOW()
		WHERE expiry_date IS NOT NULL
		  AND expiry_date < CURRENT_DATE
		  AND NOT is_expired
	`
	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// SumActiveQuantity returns the sum of current quantity across the
// product's non-disposed lots. Compared against the product's aggregate
// stock counter by the reconciliation check.
func (r *LotRepository) SumActiveQuantity(ctx context.Context, productID string) (int, error) {
	var total sql.NullInt64
	query := `SELECT SUM(current_quantity) FROM lots WHERE product_id = $1 AND NOT disposed`
	if err := r.db.GetContext(ctx, &total, query, productID); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}
