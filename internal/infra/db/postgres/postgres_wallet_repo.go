package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"installment-engine/internal/domain"
	"installment-engine/internal/domain/model"
	"installment-engine/internal/domain/ports/repository"
)

var _ repository.WalletRepository = (*walletRepo)(nil)

type walletRepo struct{ pool *pgxpool.Pool }

func NewWalletRepo(pool *pgxpool.Pool) *walletRepo {
	return &walletRepo{pool: pool}
}

// Deduct is a single conditional UPDATE, so two debits racing on one wallet can never both
// pass the balance check.
func (r *walletRepo) Deduct(ctx context.Context, tx repository.Tx, accountID string, amount int64, reason, ref string) error {
	if amount <= 0 {
		return domain.ErrInvalidArgument
	}
	const q = `UPDATE wallets SET balance = balance - $2, updated_at = NOW() WHERE account_id = $1 AND balance >= $2;`
	cmd, err := execSQL(ctx, r.pool, tx, q, accountID, amount)
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		w, err := r.Get(ctx, tx, accountID)
		if err != nil {
			return err
		}
		return &domain.InsufficientBalanceError{Required: amount, Available: w.Balance}
	}
	_, err = r.entry(ctx, tx, accountID, model.WalletDebit, -amount, 0, reason, ref)
	return err
}

func (r *walletRepo) Credit(ctx context.Context, tx repository.Tx, accountID string, available, locked int64, kind model.WalletEntryKind, reason, ref string) (string, error) {
	if available < 0 || locked < 0 {
		return "", domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO wallets (account_id, balance, locked, updated_at) VALUES ($1, $2, $3, NOW())
ON CONFLICT (account_id) DO UPDATE SET
  balance = wallets.balance + EXCLUDED.balance,
  locked = wallets.locked + EXCLUDED.locked,
  updated_at = NOW();`
	if _, err := execSQL(ctx, r.pool, tx, q, accountID, available, locked); err != nil {
		return "", mapExecErr(err)
	}
	return r.entry(ctx, tx, accountID, kind, available, locked, reason, ref)
}

func (r *walletRepo) entry(ctx context.Context, tx repository.Tx, accountID string, kind model.WalletEntryKind, amount, locked int64, reason, ref string) (string, error) {
	id := ulid.Make().String()
	const q = `
INSERT INTO wallet_transactions (id, account_id, kind, amount, locked, reason, reference, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW());`
	if _, err := execSQL(ctx, r.pool, tx, q, id, accountID, kind, amount, locked, reason, ref); err != nil {
		return "", mapExecErr(err)
	}
	return id, nil
}

// Get returns a zero wallet for unknown accounts.
func (r *walletRepo) Get(ctx context.Context, tx repository.Tx, accountID string) (*model.Wallet, error) {
	q := `SELECT account_id, balance, locked, updated_at FROM wallets WHERE account_id=$1` + lockSuffix(tx) + `;`
	row, err := pickRow(ctx, r.pool, tx, q, accountID)
	if err != nil {
		return nil, err
	}
	w := &model.Wallet{}
	if err := row.Scan(&w.AccountID, &w.Balance, &w.Locked, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.Wallet{AccountID: accountID}, nil
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return w, nil
}

// Entries lists the movements of one wallet, oldest first.
func (r *walletRepo) Entries(ctx context.Context, tx repository.Tx, accountID string) ([]model.WalletEntry, error) {
	const q = `SELECT id, account_id, kind, amount, locked, reason, reference, created_at FROM wallet_transactions WHERE account_id=$1 ORDER BY id ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, accountID)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []model.WalletEntry
	for rows.Next() {
		var e model.WalletEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Kind, &e.Amount, &e.Locked, &e.Reason, &e.Reference, &e.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
