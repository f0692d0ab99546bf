package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"installment-engine/internal/domain"
	"installment-engine/internal/domain/model"
	"installment-engine/internal/domain/ports/repository"
)

var _ repository.PaymentRecordRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, order_id, buyer_id, installment_number, amount, method, status, idempotency_key,
  gateway_order_id, external_payment_id, signature_verified, failure_reason, refund_id,
  commission_calculated, commission_amount, commission_percent, commission_credited, commission_ref,
  created_at, updated_at, completed_at`

// open covers PENDING and PROCESSING
const openStatuses = `('PENDING','PROCESSING')`

func scanPayment(row pgx.Row) (*model.PaymentRecord, error) {
	p := &model.PaymentRecord{}
	err := row.Scan(&p.ID, &p.OrderID, &p.BuyerID, &p.InstallmentNumber, &p.Amount, &p.Method, &p.Status, &p.IdempotencyKey,
		&p.GatewayOrderID, &p.ExternalPaymentID, &p.SignatureVerified, &p.FailureReason, &p.RefundID,
		&p.CommissionCalculated, &p.CommissionAmount, &p.CommissionPercent, &p.CommissionCredited, &p.CommissionRef,
		&p.CreatedAt, &p.UpdatedAt, &p.CompletedAt)
	return p, err
}

func (r *paymentRepo) Insert(ctx context.Context, tx repository.Tx, p *model.PaymentRecord) error {
	const q = `
INSERT INTO payment_records (` + paymentColumns + `) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21
);`
	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.OrderID, p.BuyerID, p.InstallmentNumber, p.Amount, p.Method, p.Status, p.IdempotencyKey,
		p.GatewayOrderID, p.ExternalPaymentID, p.SignatureVerified, p.FailureReason, p.RefundID,
		p.CommissionCalculated, p.CommissionAmount, p.CommissionPercent, p.CommissionCredited, p.CommissionRef,
		p.CreatedAt, p.UpdatedAt, p.CompletedAt)
	return mapExecErr(err)
}

func (r *paymentRepo) findOne(ctx context.Context, tx repository.Tx, where string, args ...interface{}) (*model.PaymentRecord, error) {
	q := `SELECT ` + paymentColumns + ` FROM payment_records WHERE ` + where + ` LIMIT 1` + lockSuffix(tx) + `;`
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return p, nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentRecord, error) {
	return r.findOne(ctx, tx, `id=$1`, id)
}

func (r *paymentRepo) FindByIdempotencyKey(ctx context.Context, tx repository.Tx, key string) (*model.PaymentRecord, error) {
	return r.findOne(ctx, tx, `idempotency_key=$1 AND status NOT IN ('FAILED','CANCELLED')`, key)
}

func (r *paymentRepo) FindCompletedByExternalID(ctx context.Context, tx repository.Tx, orderID, externalPaymentID string) (*model.PaymentRecord, error) {
	return r.findOne(ctx, tx, `order_id=$1 AND external_payment_id=$2 AND status='COMPLETED'`, orderID, externalPaymentID)
}

func (r *paymentRepo) list(ctx context.Context, tx repository.Tx, tail string, args ...interface{}) ([]*model.PaymentRecord, error) {
	q := `SELECT ` + paymentColumns + ` FROM payment_records WHERE ` + tail + `;`
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

func (r *paymentRepo) ListByOrder(ctx context.Context, tx repository.Tx, orderID string) ([]*model.PaymentRecord, error) {
	return r.list(ctx, tx, `order_id=$1 ORDER BY installment_number ASC, created_at ASC`, orderID)
}

func (r *paymentRepo) ListByExternalID(ctx context.Context, tx repository.Tx, externalPaymentID string) ([]*model.PaymentRecord, error) {
	return r.list(ctx, tx, `external_payment_id=$1 ORDER BY created_at ASC`, externalPaymentID)
}

func (r *paymentRepo) ListOpenByGatewayOrder(ctx context.Context, tx repository.Tx, gatewayOrderID string) ([]*model.PaymentRecord, error) {
	return r.list(ctx, tx, `gateway_order_id=$1 AND status IN `+openStatuses+` ORDER BY created_at ASC`, gatewayOrderID)
}

func (r *paymentRepo) ListStaleOpen(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, tx, `status IN `+openStatuses+` AND updated_at < $1 ORDER BY updated_at ASC LIMIT $2`, olderThan, limit)
}

// Complete only succeeds while the row is open. A second COMPLETED row for the same capture
// on the same order trips ux_payment_records_capture and comes back as ErrAlreadyExists.
func (r *paymentRepo) Complete(ctx context.Context, tx repository.Tx, p *model.PaymentRecord) (bool, error) {
	const q = `
UPDATE payment_records
   SET status='COMPLETED', amount=$2, method=$3, gateway_order_id=$4, external_payment_id=$5,
       signature_verified=$6, completed_at=$7, updated_at=$8
 WHERE id=$1 AND status IN ` + openStatuses + `;`
	cmd, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Amount, p.Method, p.GatewayOrderID, p.ExternalPaymentID,
		p.SignatureVerified, p.CompletedAt, p.UpdatedAt)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

// AttachGatewayOrder binds once. A bound attempt is superseded instead of rebound so that a
// capture on the earlier provider order still finds its record.
func (r *paymentRepo) AttachGatewayOrder(ctx context.Context, tx repository.Tx, id, gatewayOrderID string) (bool, error) {
	const q = `
UPDATE payment_records SET gateway_order_id=$2, updated_at=NOW()
 WHERE id=$1 AND gateway_order_id='' AND status IN ` + openStatuses + `;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, gatewayOrderID)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) HoldCapture(ctx context.Context, tx repository.Tx, id, externalPaymentID string) (bool, error) {
	const q = `
UPDATE payment_records SET external_payment_id=$2, updated_at=NOW()
 WHERE id=$1 AND external_payment_id='' AND status IN ` + openStatuses + `;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, externalPaymentID)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

// UpdateStatusIfOpen atomically updates status only when the attempt is still open.
func (r *paymentRepo) UpdateStatusIfOpen(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, reason string) (bool, error) {
	query := `
    UPDATE payment_records
       SET status = $2,
           failure_reason = $3,
           updated_at = NOW()
     WHERE id = $1
       AND status IN ` + openStatuses

	cmd, err := execSQL(ctx, r.pool, tx, query, id, string(status), reason)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) MarkRefunding(ctx context.Context, tx repository.Tx, id, reason string) (bool, error) {
	const q = `UPDATE payment_records SET status='REFUNDING', failure_reason=$2, updated_at=NOW() WHERE id=$1 AND status='COMPLETED';`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, reason)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) MarkRefunded(ctx context.Context, tx repository.Tx, id, reason, refundID string) (bool, error) {
	const q = `
UPDATE payment_records SET status='REFUNDED', failure_reason=$2, refund_id=$3, updated_at=NOW()
 WHERE id=$1 AND status IN ('COMPLETED','REFUNDING');`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, reason, refundID)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) CancelOpenByOrder(ctx context.Context, tx repository.Tx, orderID string) (int64, error) {
	const q = `UPDATE payment_records SET status='CANCELLED', updated_at=NOW() WHERE order_id=$1 AND status IN ` + openStatuses + `;`
	cmd, err := execSQL(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return 0, mapExecErr(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *paymentRepo) MarkCommission(ctx context.Context, tx repository.Tx, id string, amount int64, percent float64, ref string) (bool, error) {
	const q = `
UPDATE payment_records
   SET commission_calculated=TRUE, commission_amount=$2, commission_percent=$3,
       commission_credited=($2::bigint > 0), commission_ref=$4, updated_at=NOW()
 WHERE id=$1 AND commission_calculated=FALSE;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, amount, percent, ref)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}
