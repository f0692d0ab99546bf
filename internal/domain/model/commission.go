package model

import (
	"math"
	"time"
)

// CommissionEntry is an append-only ledger row for one referral payout.
type CommissionEntry struct {
	ID         string // ULID
	ReferrerID string
	OrderID    string
	PaymentID  string
	Amount     int64
	Available  int64
	Locked     int64
	Percent    float64
	CreatedAt  time.Time
}

// CommissionSplit is a commission divided into what the referrer can use now and what stays locked.
type CommissionSplit struct {
	Total     int64
	Available int64
	Locked    int64
}

// SplitCommission computes round(amount*percent/100) and gives availablePercent of it,
// rounded down, to the available portion. The locked portion takes the rest so the two
// always add up to Total.
func SplitCommission(amount int64, percent, availablePercent float64) CommissionSplit {
	if amount <= 0 || percent <= 0 {
		return CommissionSplit{}
	}
	total := int64(math.Round(float64(amount) * percent / 100))
	if availablePercent < 0 {
		availablePercent = 0
	}
	if availablePercent > 100 {
		availablePercent = 100
	}
	available := int64(math.Floor(float64(total) * availablePercent / 100))
	return CommissionSplit{Total: total, Available: available, Locked: total - available}
}
