package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"installment-engine/internal/domain"
	"installment-engine/internal/domain/model"
	"installment-engine/internal/domain/ports/repository"
)

var _ repository.OrderRepository = (*orderRepo)(nil)

type orderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepo(pool *pgxpool.Pool) *orderRepo {
	return &orderRepo{pool: pool}
}

const orderColumns = `id, buyer_id, product_ref, original_price, total_price, total_installments, installment_amount,
  paid_installments, paid_amount, remaining_amount, status, funding_source, last_payment_date,
  referrer_id, commission_percent, coupon_code, coupon_type, coupon_discount,
  milestone_payments_required, milestone_reward_days, milestone_reward_applied,
  created_at, updated_at, completed_at, cancelled_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	o := &model.Order{}
	err := row.Scan(&o.ID, &o.BuyerID, &o.ProductRef, &o.OriginalPrice, &o.TotalPrice, &o.TotalInstallments, &o.InstallmentAmount,
		&o.PaidInstallments, &o.PaidAmount, &o.RemainingAmount, &o.Status, &o.FundingSource, &o.LastPaymentDate,
		&o.ReferrerID, &o.CommissionPercent, &o.CouponCode, &o.CouponType, &o.CouponDiscount,
		&o.MilestonePaymentsRequired, &o.MilestoneRewardDays, &o.MilestoneRewardApplied,
		&o.CreatedAt, &o.UpdatedAt, &o.CompletedAt, &o.CancelledAt)
	return o, err
}

func (r *orderRepo) Create(ctx context.Context, tx repository.Tx, o *model.Order) error {
	const q = `
INSERT INTO orders (` + orderColumns + `) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25
);`
	_, err := execSQL(ctx, r.pool, tx, q, o.ID, o.BuyerID, o.ProductRef, o.OriginalPrice, o.TotalPrice, o.TotalInstallments, o.InstallmentAmount,
		o.PaidInstallments, o.PaidAmount, o.RemainingAmount, o.Status, o.FundingSource, o.LastPaymentDate,
		o.ReferrerID, o.CommissionPercent, o.CouponCode, o.CouponType, o.CouponDiscount,
		o.MilestonePaymentsRequired, o.MilestoneRewardDays, o.MilestoneRewardApplied,
		o.CreatedAt, o.UpdatedAt, o.CompletedAt, o.CancelledAt)
	if err != nil {
		return mapExecErr(err)
	}

	const qi = `INSERT INTO installments (order_id, number, due_date, amount, status, paid_at, payment_id) VALUES ($1,$2,$3,$4,$5,$6,$7);`
	for _, in := range o.Installments {
		if _, err := execSQL(ctx, r.pool, tx, qi, o.ID, in.Number, in.DueDate, in.Amount, in.Status, in.PaidAt, in.PaymentID); err != nil {
			return mapExecErr(err)
		}
	}
	return nil
}

func (r *orderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1` + lockSuffix(tx) + `;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	o, err := scanOrder(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	if o.Installments, err = r.installments(ctx, tx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepo) ListByBuyer(ctx context.Context, tx repository.Tx, buyerID string) ([]*model.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE buyer_id=$1 ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, buyerID)
	if err != nil {
		return nil, mapExecErr(err)
	}
	var out []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, o)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}

	// installments are loaded after the cursor is closed; a tx allows one open query at a time
	for _, o := range out {
		if o.Installments, err = r.installments(ctx, tx, o.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *orderRepo) installments(ctx context.Context, tx repository.Tx, orderID string) ([]model.Installment, error) {
	const q = `SELECT number, due_date, amount, status, paid_at, payment_id FROM installments WHERE order_id=$1 ORDER BY number ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []model.Installment
	for rows.Next() {
		var in model.Installment
		if err := rows.Scan(&in.Number, &in.DueDate, &in.Amount, &in.Status, &in.PaidAt, &in.PaymentID); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

func (r *orderRepo) Update(ctx context.Context, tx repository.Tx, o *model.Order) error {
	const q = `
UPDATE orders SET
  total_price=$2, installment_amount=$3, paid_installments=$4, paid_amount=$5, remaining_amount=$6,
  status=$7, last_payment_date=$8, commission_percent=$9, milestone_reward_applied=$10,
  updated_at=$11, completed_at=$12, cancelled_at=$13
WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, o.ID, o.TotalPrice, o.InstallmentAmount, o.PaidInstallments, o.PaidAmount, o.RemainingAmount,
		o.Status, o.LastPaymentDate, o.CommissionPercent, o.MilestoneRewardApplied,
		o.UpdatedAt, o.CompletedAt, o.CancelledAt)
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	const qi = `UPDATE installments SET amount=$3, status=$4, paid_at=$5, payment_id=$6 WHERE order_id=$1 AND number=$2;`
	for _, in := range o.Installments {
		if _, err := execSQL(ctx, r.pool, tx, qi, o.ID, in.Number, in.Amount, in.Status, in.PaidAt, in.PaymentID); err != nil {
			return mapExecErr(err)
		}
	}
	return nil
}
