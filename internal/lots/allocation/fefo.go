// Package allocation builds first-expires-first-out allocation plans.
// Plan construction is pure: the caller supplies candidate lots already
// filtered for eligibility, and nothing here mutates them.
package allocation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/shelflife/shelflife-backend/internal/lots/expiry"
	"github.com/shelflife/shelflife-backend/internal/lots/repository"
)

// Entry is one (lot, quantity) draw within a plan
type Entry struct {
	LotID       string          `json:"lot_id"`
	BatchNumber string          `json:"batch_number"`
	Quantity    int             `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	ExpiryDate  *time.Time      `json:"expiry_date,omitempty"`
	DaysUntil   *int            `json:"days_until_expiry,omitempty"`
	Urgency     expiry.Urgency  `json:"urgency"`
}

// Plan is an advisory multi-lot allocation for one requested quantity.
// Shortfall is the unsatisfiable remainder; a non-zero shortfall is a
// signal for the caller, not an error.
type Plan struct {
	ProductID string          `json:"product_id"`
	Requested int             `json:"requested"`
	Allocated int             `json:"allocated"`
	Shortfall int             `json:"shortfall"`
	TotalCost decimal.Decimal `json:"total_cost"`
	Entries   []Entry         `json:"entries"`
}

// Satisfied reports whether the plan covers the full requested quantity
func (p *Plan) Satisfied() bool {
	return p.Shortfall == 0
}

// Build walks the candidate lots in FEFO order and draws from each until
// the requested quantity is satisfied or the candidates run out. Candidates
// are re-sorted defensively by (expiry asc, nulls last, created_at asc) so
// the plan stays deterministic regardless of input order.
func Build(productID string, quantity int, candidates []*repository.Lot, now time.Time) *Plan {
	plan := &Plan{
		ProductID: productID,
		Requested: quantity,
		TotalCost: decimal.Zero,
		Entries:   []Entry{},
	}

	sorted := make([]*repository.Lot, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a.ExpiryDate == nil && b.ExpiryDate == nil:
			return a.CreatedAt.Before(b.CreatedAt)
		case a.ExpiryDate == nil:
			return false
		case b.ExpiryDate == nil:
			return true
		case a.ExpiryDate.Equal(*b.ExpiryDate):
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
	})

	remaining := quantity
	for _, lot := range sorted {
		if remaining == 0 {
			break
		}
		if lot.CurrentQuantity <= 0 {
			continue
		}

		draw := remaining
		if lot.CurrentQuantity < draw {
			draw = lot.CurrentQuantity
		}

		entry := Entry{
			LotID:       lot.ID,
			BatchNumber: lot.BatchNumber,
			Quantity:    draw,
			UnitCost:    lot.UnitCost,
			ExpiryDate:  lot.ExpiryDate,
			Urgency:     expiry.ClassifyUrgency(lot.ExpiryDate, now),
		}
		if lot.ExpiryDate != nil {
			d := expiry.DaysUntil(*lot.ExpiryDate, now)
			entry.DaysUntil = &d
		}

		plan.Entries = append(plan.Entries, entry)
		plan.TotalCost = plan.TotalCost.Add(lot.UnitCost.Mul(decimal.NewFromInt(int64(draw))))
		remaining -= draw
	}

	plan.Allocated = quantity - remaining
	plan.Shortfall = remaining
	return plan
}
