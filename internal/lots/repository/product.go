package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/shelflife/shelflife-backend/pkg/database"
	"github.com/shelflife/shelflife-backend/pkg/errors"
)

// Product is the read model of the external product catalog: existence,
// category expiry policy, current price and the aggregate stock counter.
// The catalog itself is owned elsewhere; this repository only reads it and
// keeps the stock counter reconciled on consumption.
type Product struct {
	ID              string          `db:"id" json:"id"`
	Name            string          `db:"name" json:"name"`
	Category        string          `db:"category" json:"category"`
	RequiresExpiry  bool            `db:"requires_expiry" json:"requires_expiry"`
	ExpirySensitive bool            `db:"expiry_sensitive" json:"expiry_sensitive"`
	Price           decimal.Decimal `db:"price" json:"price"`
	Stock           int             `db:"stock" json:"stock"`
}

// ProductRepository reads the product catalog and maintains the aggregate
// stock counter
type ProductRepository struct {
	db *database.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *database.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID gets a product by ID
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*Product, error) {
	var product Product
	query := `SELECT id, name, category, requires_expiry, expiry_sensitive, price, stock FROM products WHERE id = $1`
	if err := r.db.GetContext(ctx, &product, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("product")
		}
		return nil, err
	}
	return &product, nil
}

// GetStock returns the product's aggregate stock counter
func (r *ProductRepository) GetStock(ctx context.Context, id string) (int, error) {
	var stock int
	query := `SELECT stock FROM products WHERE id = $1`
	if err := r.db.GetContext(ctx, &stock, query, id); err != nil {
		if err == sql.ErrNoRows {
			return 0, errors.NotFound("product")
		}
		return 0, err
	}
	return stock, nil
}

// AdjustStockTx moves the aggregate stock counter inside the caller's
// transaction. Delta is negative for consumption, positive for reversal.
// The counter mirrors the per-lot ledger; it is never the source of truth.
func (r *ProductRepository) AdjustStockTx(ctx context.Context, tx *sqlx.Tx, productID string, delta int) error {
	query := `UPDATE products SET stock = stock + $2 WHERE id = $1`
	result, err := tx.ExecContext(ctx, query, productID, delta)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("product")
	}
	return nil
}
