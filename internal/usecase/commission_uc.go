// File: internal/usecase/commission_uc.go
package usecase

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"installment-engine/internal/domain/model"
	"installment-engine/internal/domain/ports/repository"
)

// CommissionUseCase credits referral commission for settled installments. It only runs
// inside a settlement transaction.
type CommissionUseCase struct {
	payments         repository.PaymentRecordRepository
	wallets          repository.WalletRepository
	ledger           repository.CommissionLedger
	defaultPercent   float64
	availablePercent float64
	log              *zerolog.Logger
	now              func() time.Time
}

func NewCommissionUseCase(
	payments repository.PaymentRecordRepository,
	wallets repository.WalletRepository,
	ledger repository.CommissionLedger,
	defaultPercent, availablePercent float64,
	logger *zerolog.Logger,
) *CommissionUseCase {
	compLog := logger.With().Str("component", "CommissionUC").Logger()
	return &CommissionUseCase{
		payments:         payments,
		wallets:          wallets,
		ledger:           ledger,
		defaultPercent:   defaultPercent,
		availablePercent: availablePercent,
		log:              &compLog,
		now:              time.Now,
	}
}

// DefaultPercent is applied to referred orders created without an explicit percentage.
func (c *CommissionUseCase) DefaultPercent() float64 { return c.defaultPercent }

// Allocate splits and credits commission for rec. A record whose commission was already
// calculated yields a zero split and no side effects.
func (c *CommissionUseCase) Allocate(ctx context.Context, tx repository.Tx, order *model.Order, rec *model.PaymentRecord) (model.CommissionSplit, error) {
	if order.ReferrerID == "" || order.CommissionPercent <= 0 || rec.CommissionCalculated {
		return model.CommissionSplit{}, nil
	}
	split := model.SplitCommission(rec.Amount, order.CommissionPercent, c.availablePercent)

	ref := ""
	if split.Total > 0 {
		ref = ulid.Make().String()
	}
	claimed, err := c.payments.MarkCommission(ctx, tx, rec.ID, split.Total, order.CommissionPercent, ref)
	if err != nil {
		return model.CommissionSplit{}, err
	}
	if !claimed {
		c.log.Debug().Str("payment_id", rec.ID).Msg("commission already calculated")
		return model.CommissionSplit{}, nil
	}
	rec.CommissionCalculated = true
	rec.CommissionAmount = split.Total
	rec.CommissionPercent = order.CommissionPercent
	if split.Total == 0 {
		return split, nil
	}

	if _, err := c.wallets.Credit(ctx, tx, order.ReferrerID, split.Available, split.Locked,
		model.WalletCommission, "referral commission", rec.ID); err != nil {
		return model.CommissionSplit{}, err
	}
	entry := &model.CommissionEntry{
		ID:         ref,
		ReferrerID: order.ReferrerID,
		OrderID:    order.ID,
		PaymentID:  rec.ID,
		Amount:     split.Total,
		Available:  split.Available,
		Locked:     split.Locked,
		Percent:    order.CommissionPercent,
		CreatedAt:  c.now(),
	}
	if err := c.ledger.Append(ctx, tx, entry); err != nil {
		return model.CommissionSplit{}, err
	}
	rec.CommissionCredited = true
	rec.CommissionRef = ref
	return split, nil
}
