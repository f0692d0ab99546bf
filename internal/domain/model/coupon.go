package model

import (
	"fmt"
	"math"
	"time"

	"installment-engine/internal/domain"
)

type CouponType string

const (
	CouponTypeInstant         CouponType = "INSTANT"
	CouponTypeReduceDays      CouponType = "REDUCE_DAYS"
	CouponTypeMilestoneReward CouponType = "MILESTONE_REWARD"
)

type DiscountKind string

const (
	DiscountFlat    DiscountKind = "flat"
	DiscountPercent DiscountKind = "percent"
)

// Coupon is read-only here; coupons are managed elsewhere.
type Coupon struct {
	ID            string
	Code          string
	Type          CouponType
	DiscountKind  DiscountKind
	DiscountValue float64 // currency units for flat, 0-100 for percent
	MinOrderValue int64
	// MILESTONE_REWARD: after PaymentsRequired paid installments, RewardDays installments become free.
	PaymentsRequired int
	RewardDays       int
	IsActive         bool
	ExpiresAt        *time.Time
}

// CheckApplicable reports whether the coupon may be used on an order of price at now.
func (c *Coupon) CheckApplicable(price int64, now time.Time) error {
	if c == nil {
		return domain.ErrCouponNotFound
	}
	if !c.IsActive {
		return fmt.Errorf("%w: coupon %s is inactive", domain.ErrCouponNotApplicable, c.Code)
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return fmt.Errorf("%w: coupon %s expired", domain.ErrCouponNotApplicable, c.Code)
	}
	if price < c.MinOrderValue {
		return fmt.Errorf("%w: minimum order value is %d", domain.ErrCouponNotApplicable, c.MinOrderValue)
	}
	if c.Type == CouponTypeMilestoneReward && (c.PaymentsRequired <= 0 || c.RewardDays <= 0) {
		return fmt.Errorf("%w: milestone coupon %s has no reward condition", domain.ErrCouponNotApplicable, c.Code)
	}
	return nil
}

// DiscountFor returns the money value of the coupon on price, never more than price.
func (c *Coupon) DiscountFor(price int64) int64 {
	var d int64
	switch c.DiscountKind {
	case DiscountPercent:
		d = int64(math.Round(float64(price) * c.DiscountValue / 100))
	default:
		d = int64(math.Round(c.DiscountValue))
	}
	if d < 0 {
		return 0
	}
	if d > price {
		return price
	}
	return d
}
