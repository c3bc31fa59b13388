// Package scoring ranks lots for waste-prevention action and computes
// markdown price recommendations. Scoring reads state, never mutates it.
package scoring

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/shelflife/shelflife-backend/internal/lots/expiry"
	"github.com/shelflife/shelflife-backend/pkg/config"
)

// Label buckets a priority score for display and routing
type Label string

const (
	LabelCritical Label = "critical"
	LabelHigh     Label = "high"
	LabelMedium   Label = "medium"
	LabelLow      Label = "low"
)

// Input carries everything the score needs about one lot. DailyVelocity is
// the external trailing-window average; zero means the product is not
// selling.
type Input struct {
	LotID           string
	BatchNumber     string
	ProductID       string
	ExpiryDate      *time.Time
	Quantity        int
	UnitCost        decimal.Decimal
	CurrentPrice    decimal.Decimal
	ExpirySensitive bool
	DailyVelocity   float64
}

// Result is the scored lot with its component breakdown
type Result struct {
	LotID             string          `json:"lot_id"`
	BatchNumber       string          `json:"batch_number"`
	ProductID         string          `json:"product_id"`
	Score             int             `json:"score"`
	Label             Label           `json:"label"`
	ExpiryPoints      float64         `json:"expiry_points"`
	ValuePoints       float64         `json:"value_points"`
	SellThroughPoints float64         `json:"sell_through_points"`
	CategoryPoints    float64         `json:"category_points"`
	ValueAtRisk       decimal.Decimal `json:"value_at_risk"`
	DaysUntilExpiry   *int            `json:"days_until_expiry,omitempty"`
}

// Markdown is a discount recommendation for one lot
type Markdown struct {
	LotID            string          `json:"lot_id"`
	DiscountPercent  int             `json:"discount_percent"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	RecommendedPrice decimal.Decimal `json:"recommended_price"`
	Floored          bool            `json:"floored"`
	NetBenefit       decimal.Decimal `json:"net_benefit"`
}

// Scorer computes priority scores and markdowns under tunable weights
type Scorer struct {
	scoring  config.ScoringConfig
	markdown config.MarkdownConfig
}

// New creates a scorer from configuration
func New(scoring config.ScoringConfig, markdown config.MarkdownConfig) *Scorer {
	return &Scorer{scoring: scoring, markdown: markdown}
}

// Score computes the weighted priority score for one lot. Each signal
// contributes a fraction of its configured weight; the raw point tables
// below define the fractions on the default 40/30/20/10 scale.
func (s *Scorer) Score(in Input, now time.Time) Result {
	res := Result{
		LotID:       in.LotID,
		BatchNumber: in.BatchNumber,
		ProductID:   in.ProductID,
		ValueAtRisk: in.UnitCost.Mul(decimal.NewFromInt(int64(in.Quantity))),
	}

	var days *int
	if in.ExpiryDate != nil {
		d := expiry.DaysUntil(*in.ExpiryDate, now)
		days = &d
		res.DaysUntilExpiry = &d
	}

	res.ExpiryPoints = scale(expiryPoints(days), 40, s.scoring.ExpiryWeight)
	res.ValuePoints = scale(s.valuePoints(res.ValueAtRisk), 30, s.scoring.ValueWeight)
	res.SellThroughPoints = scale(sellThroughPoints(in.Quantity, in.DailyVelocity, days), 20, s.scoring.SellThroughWeight)
	res.CategoryPoints = scale(categoryPoints(in.ExpirySensitive), 10, s.scoring.CategoryWeight)

	total := res.ExpiryPoints + res.ValuePoints + res.SellThroughPoints + res.CategoryPoints
	res.Score = int(math.Round(math.Max(0, math.Min(100, total))))
	res.Label = labelFor(res.Score)
	return res
}

// Recommend computes a markdown for one lot. The discount ladder is a
// direct function of days until expiry; the recommended price never drops
// below unit cost times the configured margin ratio.
func (s *Scorer) Recommend(in Input, now time.Time) Markdown {
	md := Markdown{
		LotID:        in.LotID,
		CurrentPrice: in.CurrentPrice,
	}

	if in.ExpiryDate != nil {
		d := expiry.DaysUntil(*in.ExpiryDate, now)
		switch {
		case d <= 1:
			md.DiscountPercent = 40
		case d <= 3:
			md.DiscountPercent = 25
		case d <= 7:
			md.DiscountPercent = 15
		case d <= 14:
			md.DiscountPercent = 10
		}
	}

	discount := decimal.NewFromInt(int64(md.DiscountPercent)).Div(decimal.NewFromInt(100))
	md.RecommendedPrice = in.CurrentPrice.Mul(decimal.NewFromInt(1).Sub(discount))

	floor := in.UnitCost.Mul(decimal.NewFromFloat(s.markdown.MinMarginRatio))
	if md.RecommendedPrice.LessThan(floor) {
		md.RecommendedPrice = floor
		md.Floored = true
	}

	qty := decimal.NewFromInt(int64(in.Quantity))
	md.NetBenefit = qty.Mul(md.RecommendedPrice).Sub(qty.Mul(in.UnitCost))
	return md
}

// scale converts raw points on the default scale to the configured weight
func scale(raw float64, defaultMax float64, weight int) float64 {
	if defaultMax == 0 {
		return 0
	}
	return raw / defaultMax * float64(weight)
}

func expiryPoints(days *int) float64 {
	if days == nil {
		return 0
	}
	switch d := *days; {
	case d <= 1:
		return 40
	case d <= 3:
		return 35
	case d <= 7:
		return 30
	case d <= 14:
		return 20
	case d <= 30:
		return 10
	default:
		return 0
	}
}

func (s *Scorer) valuePoints(valueAtRisk decimal.Decimal) float64 {
	v, _ := valueAtRisk.Float64()
	switch {
	case v >= s.scoring.ValueBandHigh:
		return 30
	case v >= s.scoring.ValueBandMedium:
		return 22
	case v >= s.scoring.ValueBandLow:
		return 15
	default:
		return 5
	}
}

// sellThroughPoints compares projected days to sell out against days to
// expiry. Zero velocity means the stock will not sell before expiry and
// takes the maximum. Lots without an expiry date carry no sell-through
// risk beyond the baseline.
func sellThroughPoints(quantity int, dailyVelocity float64, days *int) float64 {
	if days == nil {
		return 5
	}
	d := float64(*days)
	if d < 0 {
		d = 0
	}

	if dailyVelocity <= 0 {
		return 20
	}

	daysToSellOut := float64(quantity) / dailyVelocity
	switch {
	case daysToSellOut > 2*d:
		return 20
	case daysToSellOut > d:
		return 15
	default:
		return 5
	}
}

func categoryPoints(expirySensitive bool) float64 {
	if expirySensitive {
		return 10
	}
	return 5
}

func labelFor(score int) Label {
	switch {
	case score >= 80:
		return LabelCritical
	case score >= 60:
		return LabelHigh
	case score >= 40:
		return LabelMedium
	default:
		return LabelLow
	}
}
