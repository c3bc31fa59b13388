package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shelflife/shelflife-backend/pkg/database"
)

// AuditEntry records a quantity-affecting action against a lot
type AuditEntry struct {
	ID               string    `db:"id" json:"id"`
	LotID            string    `db:"lot_id" json:"lot_id"`
	ProductID        string    `db:"product_id" json:"product_id"`
	Action           string    `db:"action" json:"action"`
	Quantity         int       `db:"quantity" json:"quantity"`
	PreviousQuantity int       `db:"previous_quantity" json:"previous_quantity"`
	NewQuantity      int       `db:"new_quantity" json:"new_quantity"`
	Reason           *string   `db:"reason" json:"reason,omitempty"`
	PerformedBy      string    `db:"performed_by" json:"performed_by"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// Audit actions
const (
	AuditActionConsume   = "consume"
	AuditActionReverse   = "reverse"
	AuditActionAdjust    = "adjust"
	AuditActionDispose   = "dispose"
	AuditActionUndispose = "undispose"
)

// AuditRepository handles lot audit trail persistence
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditInsert = `
	INSERT INTO lot_audit_log (
		id, lot_id, product_id, action, quantity,
		previous_quantity, new_quantity, reason, performed_by
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING created_at
`

// AppendTx appends an audit entry inside the caller's transaction
func (r *AuditRepository) AppendTx(ctx context.Context, tx *sqlx.Tx, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	return tx.QueryRowxContext(ctx, auditInsert,
		entry.ID, entry.LotID, entry.ProductID, entry.Action, entry.Quantity,
		entry.PreviousQuantity, entry.NewQuantity, entry.Reason, entry.PerformedBy,
	).Scan(&entry.CreatedAt)
}

// Append appends an audit entry outside any transaction
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	return r.db.QueryRowxContext(ctx, auditInsert,
		entry.ID, entry.LotID, entry.ProductID, entry.Action, entry.Quantity,
		entry.PreviousQuantity, entry.NewQuantity, entry.Reason, entry.PerformedBy,
	).Scan(&entry.CreatedAt)
}

// ListByLot lists audit entries for a lot, newest first
func (r *AuditRepository) ListByLot(ctx context.Context, lotID string) ([]*AuditEntry, error) {
	var entries []*AuditEntry
	query := `SELECT * FROM lot_audit_log WHERE lot_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &entries, query, lotID); err != nil {
		return nil, err
	}
	return entries, nil
}
