package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"installment-engine/internal/domain/model"
	"installment-engine/internal/domain/ports/repository"
)

var _ repository.DepositRepository = (*depositRepo)(nil)

type depositRepo struct{ pool *pgxpool.Pool }

func NewDepositRepo(pool *pgxpool.Pool) *depositRepo {
	return &depositRepo{pool: pool}
}

const depositColumns = `id, buyer_id, amount, status, gateway_order_id, external_payment_id, failure_reason, created_at, updated_at, completed_at`

func (r *depositRepo) Create(ctx context.Context, tx repository.Tx, d *model.WalletDeposit) error {
	const q = `INSERT INTO wallet_deposits (` + depositColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`
	_, err := execSQL(ctx, r.pool, tx, q, d.ID, d.BuyerID, d.Amount, d.Status, d.GatewayOrderID, d.ExternalPaymentID, d.FailureReason,
		d.CreatedAt, d.UpdatedAt, d.CompletedAt)
	return mapExecErr(err)
}

func (r *depositRepo) findOne(ctx context.Context, tx repository.Tx, column, value string) (*model.WalletDeposit, error) {
	q := `SELECT ` + depositColumns + ` FROM wallet_deposits WHERE ` + column + `=$1` + lockSuffix(tx) + `;`
	row, err := pickRow(ctx, r.pool, tx, q, value)
	if err != nil {
		return nil, err
	}
	d := &model.WalletDeposit{}
	if err := row.Scan(&d.ID, &d.BuyerID, &d.Amount, &d.Status, &d.GatewayOrderID, &d.ExternalPaymentID, &d.FailureReason,
		&d.CreatedAt, &d.UpdatedAt, &d.CompletedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return d, nil
}

func (r *depositRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.WalletDeposit, error) {
	return r.findOne(ctx, tx, "id", id)
}

func (r *depositRepo) FindByGatewayOrderID(ctx context.Context, tx repository.Tx, gatewayOrderID string) (*model.WalletDeposit, error) {
	return r.findOne(ctx, tx, "gateway_order_id", gatewayOrderID)
}

func (r *depositRepo) CompleteIfPending(ctx context.Context, tx repository.Tx, id, externalPaymentID string, at time.Time) (bool, error) {
	const q = `
UPDATE wallet_deposits SET status='COMPLETED', external_payment_id=$2, completed_at=$3, updated_at=$3
 WHERE id=$1 AND status='PENDING';`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, externalPaymentID, at)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *depositRepo) FailIfPending(ctx context.Context, tx repository.Tx, gatewayOrderID, reason string) (bool, error) {
	const q = `UPDATE wallet_deposits SET status='FAILED', failure_reason=$2, updated_at=NOW() WHERE gateway_order_id=$1 AND status='PENDING';`
	cmd, err := execSQL(ctx, r.pool, tx, q, gatewayOrderID, reason)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}
