package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"installment-engine/internal/domain"
	"installment-engine/internal/domain/model"
	"installment-engine/internal/domain/ports/repository"
)

var _ repository.WebhookEventRepository = (*webhookEventRepo)(nil)

type webhookEventRepo struct{ pool *pgxpool.Pool }

func NewWebhookEventRepo(pool *pgxpool.Pool) *webhookEventRepo {
	return &webhookEventRepo{pool: pool}
}

// Claim relies on UNIQUE (external_payment_id, event_type). The losing insert of two
// concurrent deliveries sees ErrAlreadyExists.
func (r *webhookEventRepo) Claim(ctx context.Context, tx repository.Tx, e *model.WebhookEvent) error {
	const q = `
INSERT INTO webhook_events (id, external_payment_id, event_type, payment_type, status, note, payload, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`
	var payload interface{}
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}
	_, err := execSQL(ctx, r.pool, tx, q, e.ID, e.ExternalPaymentID, e.EventType, e.PaymentType, e.Status, e.Note, payload, e.CreatedAt, e.UpdatedAt)
	return mapExecErr(err)
}

func (r *webhookEventRepo) Finish(ctx context.Context, tx repository.Tx, id string, status model.WebhookStatus, kind model.PaymentKind, note string) error {
	const q = `UPDATE webhook_events SET status=$2, payment_type=$3, note=$4, updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, status, kind, note)
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *webhookEventRepo) FindByKey(ctx context.Context, tx repository.Tx, externalPaymentID, eventType string) (*model.WebhookEvent, error) {
	q := `SELECT id, external_payment_id, event_type, payment_type, status, note, COALESCE(payload::text, ''), created_at, updated_at
FROM webhook_events WHERE external_payment_id=$1 AND event_type=$2` + lockSuffix(tx) + `;`
	row, err := pickRow(ctx, r.pool, tx, q, externalPaymentID, eventType)
	if err != nil {
		return nil, err
	}
	e := &model.WebhookEvent{}
	var payload string
	if err := row.Scan(&e.ID, &e.ExternalPaymentID, &e.EventType, &e.PaymentType, &e.Status, &e.Note, &payload, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	if payload != "" {
		e.Payload = []byte(payload)
	}
	return e, nil
}
