// Package expiry derives status bands and handling urgency from an expiry
// date and a reference time. Everything here is a pure function of its
// inputs; the cached is_expired column is maintained separately by the
// sweep so the two never drift inside one computation.
package expiry

import "time"

// Status is the expiry band of a lot
type Status string

const (
	StatusNoExpiry Status = "no_expiry"
	StatusExpired  Status = "expired"
	StatusCritical Status = "critical"
	StatusWarning  Status = "warning"
	StatusNormal   Status = "normal"
	StatusGood     Status = "good"
)

// Urgency is the coarser scale that drives recommended handling
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

// DaysUntil returns whole days from now until the expiry date, at date
// granularity: a lot expiring today returns 0, one that expired yesterday
// returns -1.
func DaysUntil(expiryDate time.Time, now time.Time) int {
	expiry := time.Date(expiryDate.Year(), expiryDate.Month(), expiryDate.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(expiry.Sub(today).Hours() / 24)
}

// Classify returns the status band for an expiry date. A nil date means the
// lot never expires.
func Classify(expiryDate *time.Time, now time.Time) Status {
	if expiryDate == nil {
		return StatusNoExpiry
	}

	d := DaysUntil(*expiryDate, now)
	switch {
	case d < 0:
		return StatusExpired
	case d <= 3:
		return StatusCritical
	case d <= 7:
		return StatusWarning
	case d <= 30:
		return StatusNormal
	default:
		return StatusGood
	}
}

// ClassifyUrgency returns the handling urgency for an expiry date. Expired
// lots are Critical: they need action more urgently than anything still
// sellable.
func ClassifyUrgency(expiryDate *time.Time, now time.Time) Urgency {
	if expiryDate == nil {
		return UrgencyLow
	}

	d := DaysUntil(*expiryDate, now)
	switch {
	case d <= 1:
		return UrgencyCritical
	case d <= 3:
		return UrgencyHigh
	case d <= 7:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}
