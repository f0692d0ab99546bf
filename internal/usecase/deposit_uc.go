// File: internal/usecase/deposit_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"installment-engine/internal/domain"
	"installment-engine/internal/domain/model"
	"installment-engine/internal/domain/ports/adapter"
	"installment-engine/internal/domain/ports/repository"
)

var _ DepositUseCase = (*depositUC)(nil)

type DepositUseCase interface {
	InitiateDeposit(ctx context.Context, buyerID string, amount int64) (*model.WalletDeposit, *model.Checkout, error)
	// ConfirmDeposit is the client path: the buyer hands back the signed capture.
	ConfirmDeposit(ctx context.Context, buyerID string, capture model.GatewayCapture) (*model.WalletDeposit, error)
	// CompleteFromGateway is the webhook path for a captured deposit payment.
	CompleteFromGateway(ctx context.Context, depositID string, payment model.GatewayPayment) (*model.WalletDeposit, error)
	FailPending(ctx context.Context, gatewayOrderID, reason string) (bool, error)
}

type depositUC struct {
	tm       repository.TransactionManager
	deposits repository.DepositRepository
	wallets  repository.WalletRepository
	gateway  adapter.PaymentGateway
	notifier adapter.Notifier
	log      *zerolog.Logger
	now      func() time.Time
}

func NewDepositUseCase(
	tm repository.TransactionManager,
	deposits repository.DepositRepository,
	wallets repository.WalletRepository,
	gateway adapter.PaymentGateway,
	notifier adapter.Notifier,
	logger *zerolog.Logger,
) *depositUC {
	compLog := logger.With().Str("component", "DepositUC").Logger()
	return &depositUC{tm: tm, deposits: deposits, wallets: wallets, gateway: gateway, notifier: notifier, log: &compLog, now: time.Now}
}

func (u *depositUC) InitiateDeposit(ctx context.Context, buyerID string, amount int64) (*model.WalletDeposit, *model.Checkout, error) {
	if buyerID == "" || amount <= 0 {
		return nil, nil, domain.ErrInvalidArgument
	}
	now := u.now()
	d := &model.WalletDeposit{
		ID:        uuid.NewString(),
		BuyerID:   buyerID,
		Amount:    amount,
		Status:    model.DepositStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	notes := map[string]string{
		model.NotePaymentType: string(model.KindWalletDeposit),
		model.NoteDepositID:   d.ID,
		model.NoteBuyerID:     buyerID,
	}
	gwOrderID, err := u.gateway.CreateOrder(ctx, adapter.ToMinor(amount), u.gateway.Currency(), "dep_"+ulid.Make().String(), notes)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: create gateway order: %v", domain.ErrTransactionFailed, err)
	}
	d.GatewayOrderID = gwOrderID
	if err := u.deposits.Create(ctx, nil, d); err != nil {
		return nil, nil, txError(err)
	}
	u.log.Info().Str("deposit_id", d.ID).Str("buyer_id", buyerID).Int64("amount", amount).Msg("deposit initiated")
	return d, &model.Checkout{
		GatewayOrderID: gwOrderID,
		Amount:         amount,
		AmountMinor:    adapter.ToMinor(amount),
		Currency:       u.gateway.Currency(),
		KeyID:          u.gateway.KeyID(),
	}, nil
}

func (u *depositUC) ConfirmDeposit(ctx context.Context, buyerID string, capture model.GatewayCapture) (*model.WalletDeposit, error) {
	if capture.GatewayOrderID == "" || capture.PaymentID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if !u.gateway.VerifyPaymentSignature(capture.GatewayOrderID, capture.PaymentID, capture.Signature) {
		return nil, domain.ErrSignatureVerificationFailed
	}
	d, err := u.deposits.FindByGatewayOrderID(ctx, nil, capture.GatewayOrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrDepositNotFound
		}
		return nil, txError(err)
	}
	if d.BuyerID != buyerID {
		return nil, domain.ErrUnauthorized
	}
	return u.complete(ctx, d.ID, capture.PaymentID)
}

func (u *depositUC) CompleteFromGateway(ctx context.Context, depositID string, payment model.GatewayPayment) (*model.WalletDeposit, error) {
	d, err := u.deposits.FindByID(ctx, nil, depositID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrDepositNotFound
		}
		return nil, txError(err)
	}
	if d.GatewayOrderID != payment.OrderID {
		return nil, domain.ErrCaptureMismatch
	}
	if payment.AmountMinor > 0 && payment.AmountMinor != adapter.ToMinor(d.Amount) {
		return nil, domain.ErrCaptureMismatch
	}
	return u.complete(ctx, d.ID, payment.ID)
}

// complete flips the deposit to COMPLETED and credits the wallet in one transaction.
func (u *depositUC) complete(ctx context.Context, depositID, externalPaymentID string) (*model.WalletDeposit, error) {
	var d *model.WalletDeposit
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		d, err = u.deposits.FindByID(ctx, tx, depositID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrDepositNotFound
			}
			return err
		}
		if d.Status != model.DepositStatusPending {
			return domain.ErrPaymentAlreadyProcessed
		}
		now := u.now()
		ok, err := u.deposits.CompleteIfPending(ctx, tx, d.ID, externalPaymentID, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrPaymentAlreadyProcessed
		}
		if _, err := u.wallets.Credit(ctx, tx, d.BuyerID, d.Amount, 0, model.WalletDeposited, "wallet deposit", d.ID); err != nil {
			return err
		}
		d.Status = model.DepositStatusCompleted
		d.ExternalPaymentID = externalPaymentID
		d.CompletedAt = &now
		d.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, txError(err)
	}
	u.log.Info().Str("deposit_id", d.ID).Str("buyer_id", d.BuyerID).Int64("amount", d.Amount).Msg("deposit completed")
	if u.notifier != nil {
		if err := u.notifier.Notify(context.WithoutCancel(ctx), model.Notification{
			Kind: model.NotifyDeposit, AccountID: d.BuyerID, Amount: d.Amount, At: u.now(),
		}); err != nil {
			u.log.Warn().Err(err).Msg("deposit notification not delivered")
		}
	}
	return d, nil
}

func (u *depositUC) FailPending(ctx context.Context, gatewayOrderID, reason string) (bool, error) {
	ok, err := u.deposits.FailIfPending(ctx, nil, gatewayOrderID, reason)
	if err != nil {
		return false, txError(err)
	}
	return ok, nil
}
