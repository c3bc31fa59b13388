package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductFixture represents test product catalog data
type ProductFixture struct {
	ID              string
	Name            string
	Category        string
	RequiresExpiry  bool
	ExpirySensitive bool
	Price           decimal.Decimal
	Stock           int
}

// LotFixture represents test lot data
type LotFixture struct {
	ID              string
	ProductID       string
	BatchNumber     string
	ProductionDate  *time.Time
	ExpiryDate      *time.Time
	InitialQuantity int
	CurrentQuantity int
	UnitCost        decimal.Decimal
	BranchID        *string
	Blocked         bool
	Disposed        bool
	CreatedAt       time.Time
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Product creates a product fixture with defaults
func (f *FixtureFactory) Product(opts ...func(*ProductFixture)) ProductFixture {
	seq := f.nextSeq()

	product := ProductFixture{
		ID:              uuid.New().String(),
		Name:            fmt.Sprintf("Test Product %d", seq),
		Category:        "dairy",
		RequiresExpiry:  true,
		ExpirySensitive: true,
		Price:           decimal.NewFromInt(5000),
		Stock:           0,
	}

	for _, opt := range opts {
		opt(&product)
	}

	return product
}

// WithCategory sets the product category
func WithCategory(category string) func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.Category = category
	}
}

// WithoutExpiryPolicy makes the product accept lots without an expiry date
func WithoutExpiryPolicy() func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.RequiresExpiry = false
		p.ExpirySensitive = false
	}
}

// WithPrice sets the product price
func WithPrice(price int64) func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.Price = decimal.NewFromInt(price)
	}
}

// WithStock sets the product's aggregate stock counter
func WithStock(stock int) func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.Stock = stock
	}
}

// Lot creates a lot fixture with defaults: 100 units expiring in 30 days
func (f *FixtureFactory) Lot(productID string, opts ...func(*LotFixture)) LotFixture {
	seq := f.nextSeq()
	expiry := time.Now().AddDate(0, 0, 30)

	lot := LotFixture{
		ID:              uuid.New().String(),
		ProductID:       productID,
		BatchNumber:     fmt.Sprintf("BATCH-%04d", seq),
		ExpiryDate:      &expiry,
		InitialQuantity: 100,
		CurrentQuantity: 100,
		UnitCost:        decimal.NewFromInt(1000),
		CreatedAt:       time.Now(),
	}

	for _, opt := range opts {
		opt(&lot)
	}

	return lot
}

// WithBatchNumber sets the lot batch number
func WithBatchNumber(batchNumber string) func(*LotFixture) {
	return func(l *LotFixture) {
		l.BatchNumber = batchNumber
	}
}

// ExpiringIn sets the lot's expiry date relative to now
func ExpiringIn(days int) func(*LotFixture) {
	return func(l *LotFixture) {
		expiry := time.Now().AddDate(0, 0, days)
		l.ExpiryDate = &expiry
	}
}

// NeverExpires clears the lot's expiry date
func NeverExpires() func(*LotFixture) {
	return func(l *LotFixture) {
		l.ExpiryDate = nil
	}
}

// WithQuantity sets both the initial and current quantity
func WithQuantity(quantity int) func(*LotFixture) {
	return func(l *LotFixture) {
		l.InitialQuantity = quantity
		l.CurrentQuantity = quantity
	}
}

// WithRemaining sets the current quantity only
func WithRemaining(quantity int) func(*LotFixture) {
	return func(l *LotFixture) {
		l.CurrentQuantity = quantity
	}
}

// WithUnitCost sets the lot's unit cost
func WithUnitCost(cost int64) func(*LotFixture) {
	return func(l *LotFixture) {
		l.UnitCost = decimal.NewFromInt(cost)
	}
}

// WithBranch sets the lot's branch
func WithBranch(branchID string) func(*LotFixture) {
	return func(l *LotFixture) {
		l.BranchID = &branchID
	}
}

// AsBlocked marks the lot as blocked
func AsBlocked() func(*LotFixture) {
	return func(l *LotFixture) {
		l.Blocked = true
	}
}

// AsDisposed marks the lot as disposed
func AsDisposed() func(*LotFixture) {
	return func(l *LotFixture) {
		l.Disposed = true
	}
}
