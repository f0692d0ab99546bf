package repository

import (
	"context"

	"installment-engine/internal/domain/model"
)

// WebhookEventRepository is the dedup store for inbound gateway events.
type WebhookEventRepository interface {
	// Claim inserts the event. domain.ErrAlreadyExists means someone else owns it.
	Claim(ctx context.Context, tx Tx, e *model.WebhookEvent) error
	Finish(ctx context.Context, tx Tx, id string, status model.WebhookStatus, kind model.PaymentKind, note string) error
	FindByKey(ctx context.Context, tx Tx, externalPaymentID, eventType string) (*model.WebhookEvent, error)
}
