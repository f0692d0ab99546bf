package repository

import (
	"context"
	"time"

	"installment-engine/internal/domain/model"
)

type DepositRepository interface {
	Create(ctx context.Context, tx Tx, d *model.WalletDeposit) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.WalletDeposit, error)
	FindByGatewayOrderID(ctx context.Context, tx Tx, gatewayOrderID string) (*model.WalletDeposit, error)
	// CompleteIfPending flips PENDING to COMPLETED; false means it was not pending.
	CompleteIfPending(ctx context.Context, tx Tx, id, externalPaymentID string, at time.Time) (bool, error)
	FailIfPending(ctx context.Context, tx Tx, gatewayOrderID, reason string) (bool, error)
}
