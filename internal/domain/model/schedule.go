package model

import (
	"fmt"
	"sort"
	"time"

	"installment-engine/internal/domain"
)

type InstallmentStatus string

const (
	InstallmentStatusPending InstallmentStatus = "PENDING"
	InstallmentStatusPaid    InstallmentStatus = "PAID"
	InstallmentStatusFree    InstallmentStatus = "FREE"
	InstallmentStatusSkipped InstallmentStatus = "SKIPPED"
)

// Installment is one dated obligation inside an order's schedule.
type Installment struct {
	Number    int // 1-based, contiguous
	DueDate   time.Time
	Amount    int64
	Status    InstallmentStatus
	PaidAt    *time.Time
	PaymentID *string // PaymentRecord that settled it
}

// Payable reports whether the installment still requires money.
func (i Installment) Payable() bool {
	return i.Status == InstallmentStatusPending && i.Amount > 0
}

// ReduceDaysEffect is the schedule-level effect of a REDUCE_DAYS coupon.
type ReduceDaysEffect struct {
	Discount int64
}

// ScheduleTier caps the installment count for orders priced up to MaxPrice.
// MaxPrice <= 0 means unbounded.
type ScheduleTier struct {
	MaxPrice int64
	MaxDays  int
}

// SchedulePolicy bounds what schedules may be generated.
type SchedulePolicy struct {
	MinDays   int
	MinAmount int64
	Tiers     []ScheduleTier
}

func DefaultSchedulePolicy() SchedulePolicy {
	return SchedulePolicy{
		MinDays:   5,
		MinAmount: 50,
		Tiers: []ScheduleTier{
			{MaxPrice: 10000, MaxDays: 30}, // short
			{MaxPrice: 50000, MaxDays: 90}, // medium
			{MaxPrice: 0, MaxDays: 180},    // long
		},
	}
}

// MaxDaysFor returns the largest installment count allowed for price.
func (p SchedulePolicy) MaxDaysFor(price int64) int {
	tiers := make([]ScheduleTier, len(p.Tiers))
	copy(tiers, p.Tiers)
	sort.SliceStable(tiers, func(i, j int) bool {
		if tiers[i].MaxPrice <= 0 {
			return false
		}
		if tiers[j].MaxPrice <= 0 {
			return true
		}
		return tiers[i].MaxPrice < tiers[j].MaxPrice
	})
	for _, t := range tiers {
		if t.MaxPrice <= 0 || price <= t.MaxPrice {
			return t.MaxDays
		}
	}
	if len(tiers) == 0 {
		return 0
	}
	return tiers[len(tiers)-1].MaxDays
}

// Validate rejects (price, days) combinations outside the policy. Nothing is clamped.
func (p SchedulePolicy) Validate(price int64, days int) error {
	if price <= 0 || days <= 0 {
		return domain.ErrInvalidArgument
	}
	maxDays := p.MaxDaysFor(price)
	if days < p.MinDays || (maxDays > 0 && days > maxDays) {
		return fmt.Errorf("%w: %d days requested, allowed %d-%d for price %d",
			domain.ErrInvalidInstallmentDays, days, p.MinDays, maxDays, price)
	}
	if base := BaseInstallmentAmount(price, days); base < p.MinAmount {
		return fmt.Errorf("%w: %d per day, minimum is %d", domain.ErrInstallmentBelowMinimum, base, p.MinAmount)
	}
	return nil
}

// BaseInstallmentAmount is ceil(price / days).
func BaseInstallmentAmount(price int64, days int) int64 {
	if days <= 0 {
		return 0
	}
	d := int64(days)
	return (price + d - 1) / d
}

// GenerateSchedule builds the installment list for an order.
//
// Every installment is worth the base amount until the payable total runs out; the
// installment where it runs out carries the remainder and every later one is FREE with
// amount 0. The payable total is price minus the REDUCE_DAYS discount, so the sum of
// non-FREE amounts always equals the coupon-adjusted price.
func GenerateSchedule(price int64, days int, start time.Time, reduce *ReduceDaysEffect) ([]Installment, error) {
	if price <= 0 || days <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	payable := price
	if reduce != nil {
		if reduce.Discount < 0 || reduce.Discount >= price {
			return nil, domain.ErrCouponNotApplicable
		}
		payable -= reduce.Discount
	}

	base := BaseInstallmentAmount(price, days)
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	remaining := payable

	out := make([]Installment, days)
	for i := 0; i < days; i++ {
		amount := base
		if remaining < amount {
			amount = remaining
		}
		remaining -= amount

		status := InstallmentStatusPending
		if amount == 0 {
			status = InstallmentStatusFree
		}
		out[i] = Installment{
			Number:  i + 1,
			DueDate: day.AddDate(0, 0, i),
			Amount:  amount,
			Status:  status,
		}
	}
	return out, nil
}

// SumPayable adds up the amounts of every non-FREE installment.
func SumPayable(installments []Installment) int64 {
	var sum int64
	for _, in := range installments {
		if in.Status != InstallmentStatusFree {
			sum += in.Amount
		}
	}
	return sum
}
