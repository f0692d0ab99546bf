package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"installment-engine/internal/domain"
	"installment-engine/internal/domain/model"
	"installment-engine/internal/domain/ports/repository"
)

var _ repository.CouponRepository = (*couponRepo)(nil)

type couponRepo struct{ pool *pgxpool.Pool }

func NewCouponRepo(pool *pgxpool.Pool) *couponRepo {
	return &couponRepo{pool: pool}
}

func (r *couponRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error) {
	const q = `SELECT id, code, type, discount_kind, discount_value, min_order_value, payments_required, reward_days, is_active, expires_at
FROM coupons WHERE code=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, code)
	if err != nil {
		return nil, err
	}
	c := &model.Coupon{}
	if err := row.Scan(&c.ID, &c.Code, &c.Type, &c.DiscountKind, &c.DiscountValue, &c.MinOrderValue,
		&c.PaymentsRequired, &c.RewardDays, &c.IsActive, &c.ExpiresAt); err != nil {
		if err = mapScanErr(err); errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrCouponNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *couponRepo) Save(ctx context.Context, tx repository.Tx, c *model.Coupon) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.DiscountKind == "" {
		c.DiscountKind = model.DiscountFlat
	}
	const q = `
INSERT INTO coupons (id, code, type, discount_kind, discount_value, min_order_value, payments_required, reward_days, is_active, expires_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (code) DO UPDATE SET
  type=$3, discount_kind=$4, discount_value=$5, min_order_value=$6, payments_required=$7, reward_days=$8, is_active=$9, expires_at=$10;`
	_, err := execSQL(ctx, r.pool, tx, q, c.ID, c.Code, c.Type, c.DiscountKind, c.DiscountValue, c.MinOrderValue,
		c.PaymentsRequired, c.RewardDays, c.IsActive, c.ExpiresAt)
	return mapExecErr(err)
}
