package repository

import (
	"context"
	"time"

	"installment-engine/internal/domain/model"
)

// -----------------------------
// Payment records
// -----------------------------

// PaymentRecordRepository stores settlement attempts. Insert returns domain.ErrAlreadyExists
// when a live (not FAILED or CANCELLED) attempt holds the same idempotency key or the same
// (order, installment) pair.
type PaymentRecordRepository interface {
	Insert(ctx context.Context, tx Tx, p *model.PaymentRecord) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PaymentRecord, error)
	// FindByIdempotencyKey returns the live attempt for key.
	FindByIdempotencyKey(ctx context.Context, tx Tx, key string) (*model.PaymentRecord, error)
	// FindCompletedByExternalID finds the COMPLETED record of an order that a gateway payment settled.
	FindCompletedByExternalID(ctx context.Context, tx Tx, orderID, externalPaymentID string) (*model.PaymentRecord, error)
	ListByOrder(ctx context.Context, tx Tx, orderID string) ([]*model.PaymentRecord, error)
	// ListByExternalID lists every record carrying a provider payment id; a combined capture
	// settles one record per order.
	ListByExternalID(ctx context.Context, tx Tx, externalPaymentID string) ([]*model.PaymentRecord, error)
	ListOpenByGatewayOrder(ctx context.Context, tx Tx, gatewayOrderID string) ([]*model.PaymentRecord, error)
	ListStaleOpen(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.PaymentRecord, error)

	// Complete writes the settlement fields of p and sets it COMPLETED, only while it is open.
	Complete(ctx context.Context, tx Tx, p *model.PaymentRecord) (bool, error)
	// AttachGatewayOrder links an open attempt to a provider order. It reports false when the
	// attempt is no longer open or is already bound to a provider order.
	AttachGatewayOrder(ctx context.Context, tx Tx, id, gatewayOrderID string) (bool, error)
	// HoldCapture parks a verified provider payment on an open attempt that cannot settle today.
	HoldCapture(ctx context.Context, tx Tx, id, externalPaymentID string) (bool, error)
	// UpdateStatusIfOpen moves a PENDING or PROCESSING record to status. It reports false when
	// the record was already terminal.
	UpdateStatusIfOpen(ctx context.Context, tx Tx, id string, status model.PaymentStatus, reason string) (bool, error)
	// MarkRefunding moves a COMPLETED record to REFUNDING ahead of a provider refund.
	MarkRefunding(ctx context.Context, tx Tx, id, reason string) (bool, error)
	// MarkRefunded moves a COMPLETED or REFUNDING record to REFUNDED.
	MarkRefunded(ctx context.Context, tx Tx, id, reason, refundID string) (bool, error)

	// CancelOpenByOrder cancels every open attempt of an order.
	CancelOpenByOrder(ctx context.Context, tx Tx, orderID string) (int64, error)
	// MarkCommission claims the commission annotation; false means it was already calculated.
	MarkCommission(ctx context.Context, tx Tx, id string, amount int64, percent float64, ref string) (bool, error)
}
