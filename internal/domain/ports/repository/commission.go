package repository

import (
	"context"

	"installment-engine/internal/domain/model"
)

// CommissionLedger is append-only.
type CommissionLedger interface {
	Append(ctx context.Context, tx Tx, e *model.CommissionEntry) error
	ListByReferrer(ctx context.Context, tx Tx, referrerID string) ([]*model.CommissionEntry, error)
}
