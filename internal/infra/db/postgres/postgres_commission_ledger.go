package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"installment-engine/internal/domain"
	"installment-engine/internal/domain/model"
	"installment-engine/internal/domain/ports/repository"
)

var _ repository.CommissionLedger = (*commissionLedger)(nil)

type commissionLedger struct{ pool *pgxpool.Pool }

func NewCommissionLedger(pool *pgxpool.Pool) *commissionLedger {
	return &commissionLedger{pool: pool}
}

// Append never updates; payment_id is unique so a payment pays out at most once.
func (r *commissionLedger) Append(ctx context.Context, tx repository.Tx, e *model.CommissionEntry) error {
	const q = `
INSERT INTO commission_ledger (id, referrer_id, order_id, payment_id, amount, available, locked, percent, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`
	_, err := execSQL(ctx, r.pool, tx, q, e.ID, e.ReferrerID, e.OrderID, e.PaymentID, e.Amount, e.Available, e.Locked, e.Percent, e.CreatedAt)
	return mapExecErr(err)
}

func (r *commissionLedger) ListByReferrer(ctx context.Context, tx repository.Tx, referrerID string) ([]*model.CommissionEntry, error) {
	const q = `SELECT id, referrer_id, order_id, payment_id, amount, available, locked, percent, created_at
FROM commission_ledger WHERE referrer_id=$1 ORDER BY id ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, referrerID)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.CommissionEntry
	for rows.Next() {
		e := &model.CommissionEntry{}
		if err := rows.Scan(&e.ID, &e.ReferrerID, &e.OrderID, &e.PaymentID, &e.Amount, &e.Available, &e.Locked, &e.Percent, &e.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}
