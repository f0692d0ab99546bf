package repository

import (
	"context"

	"installment-engine/internal/domain/model"
)

type CouponRepository interface {
	// FindByCode returns domain.ErrCouponNotFound for unknown codes.
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Coupon, error)
	Save(ctx context.Context, tx Tx, c *model.Coupon) error
}
