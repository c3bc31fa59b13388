package expiry

import (
	"testing"
	"time"
)

func datePtr(t time.Time) *time.Time { return &t }

func TestDaysUntil(t *testing.T) {
	now := time.Date(2024, 6, 15, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		expiry time.Time
		want   int
	}{
		{"expires today", time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), 0},
		{"expires today later hour", time.Date(2024, 6, 15, 23, 59, 0, 0, time.UTC), 0},
		{"expired yesterday", time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), -1},
		{"expires tomorrow", time.Date(2024, 6, 16, 8, 0, 0, 0, time.UTC), 1},
		{"expires in a week", time.Date(2024, 6, 22, 0, 0, 0, 0, time.UTC), 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysUntil(tt.expiry, now); got != tt.want {
				t.Errorf("DaysUntil() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	day := func(offset int) *time.Time {
		return datePtr(now.AddDate(0, 0, offset))
	}

	tests := []struct {
		name   string
		expiry *time.Time
		want   Status
	}{
		{"nil date never expires", nil, StatusNoExpiry},
		{"past date expired", day(-1), StatusExpired},
		{"today critical", day(0), StatusCritical},
		{"three days critical", day(3), StatusCritical},
		{"four days warning", day(4), StatusWarning},
		{"seven days warning", day(7), StatusWarning},
		{"eight days normal", day(8), StatusNormal},
		{"thirty days normal", day(30), StatusNormal},
		{"beyond thirty good", day(31), StatusGood},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.expiry, now); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyUrgency(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	day := func(offset int) *time.Time {
		return datePtr(now.AddDate(0, 0, offset))
	}

	tests := []struct {
		name   string
		expiry *time.Time
		want   Urgency
	}{
		{"nil date low", nil, UrgencyLow},
		{"expired critical", day(-2), UrgencyCritical},
		{"tomorrow critical", day(1), UrgencyCritical},
		{"two days high", day(2), UrgencyHigh},
		{"three days high", day(3), UrgencyHigh},
		{"five days medium", day(5), UrgencyMedium},
		{"seven days medium", day(7), UrgencyMedium},
		{"two weeks low", day(14), UrgencyLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyUrgency(tt.expiry, now); got != tt.want {
				t.Errorf("ClassifyUrgency() = %s, want %s", got, tt.want)
			}
		})
	}
}
