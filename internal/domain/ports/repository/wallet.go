package repository

import (
	"context"

	"installment-engine/internal/domain/model"
)

// WalletRepository is the deduct/credit contract of the wallet. Both calls join tx so a
// debit never commits without the settlement that caused it.
type WalletRepository interface {
	// Deduct returns *domain.InsufficientBalanceError when the balance does not cover amount.
	Deduct(ctx context.Context, tx Tx, accountID string, amount int64, reason, ref string) error
	// Credit adds available and locked amounts and returns the wallet entry id.
	Credit(ctx context.Context, tx Tx, accountID string, available, locked int64, kind model.WalletEntryKind, reason, ref string) (string, error)
	Get(ctx context.Context, tx Tx, accountID string) (*model.Wallet, error)
}
