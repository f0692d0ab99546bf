// File: internal/usecase/order_uc.go
package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"installment-engine/internal/domain"
	"installment-engine/internal/domain/model"
	"installment-engine/internal/domain/ports/repository"
	"installment-engine/internal/infra/logging"
)

var _ OrderUseCase = (*orderUC)(nil)

type OrderUseCase interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error)
	GetOrder(ctx context.Context, orderID, callerID string, admin bool) (*model.Order, error)
	ListOrders(ctx context.Context, buyerID string) ([]*model.Order, error)
	CancelOrder(ctx context.Context, orderID, actorID string, admin bool) (*model.Order, error)
}

type CreateOrderRequest struct {
	BuyerID           string
	ProductRef        string
	Price             int64
	Days              int
	CouponCode        string
	ReferrerID        string
	CommissionPercent float64 // 0 uses the configured default when a referrer is set
	FundingSource     model.FundingSource
}

// CreateOrderResult carries either the first settlement (wallet funding) or the checkout
// for installment #1 (gateway funding).
type CreateOrderResult struct {
	Order      *model.Order
	Settlement *model.SettleResult
	Checkout   *model.Checkout
}

type orderUC struct {
	tm       repository.TransactionManager
	orders   repository.OrderRepository
	coupons  repository.CouponRepository
	payments *paymentUC
	policy   model.SchedulePolicy
	log      *zerolog.Logger
}

func NewOrderUseCase(
	tm repository.TransactionManager,
	orders repository.OrderRepository,
	coupons repository.CouponRepository,
	payments *paymentUC,
	policy model.SchedulePolicy,
	logger *zerolog.Logger,
) *orderUC {
	compLog := logger.With().Str("component", "OrderUC").Logger()
	return &orderUC{tm: tm, orders: orders, coupons: coupons, payments: payments, policy: policy, log: &compLog}
}

func (u *orderUC) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	ctx = logging.WithBuyerID(ctx, req.BuyerID)
	log := logging.With(ctx, u.log)

	if strings.TrimSpace(req.BuyerID) == "" || req.Price <= 0 || req.Days <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if req.ReferrerID != "" && req.ReferrerID == req.BuyerID {
		return nil, domain.ErrInvalidArgument
	}
	if req.CommissionPercent < 0 || req.CommissionPercent > 100 {
		return nil, domain.ErrInvalidArgument
	}
	now := u.payments.now()

	price := req.Price
	var reduce *model.ReduceDaysEffect
	var coupon *model.Coupon
	if code := strings.TrimSpace(req.CouponCode); code != "" {
		c, err := u.coupons.FindByCode(ctx, nil, code)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.ErrCouponNotFound
			}
			return nil, txError(err)
		}
		if err := c.CheckApplicable(req.Price, now); err != nil {
			return nil, err
		}
		coupon = c
		switch c.Type {
		case model.CouponTypeInstant:
			price -= c.DiscountFor(req.Price)
			if price <= 0 {
				return nil, domain.ErrCouponNotApplicable
			}
		case model.CouponTypeReduceDays:
			reduce = &model.ReduceDaysEffect{Discount: c.DiscountFor(req.Price)}
		}
	}

	if err := u.policy.Validate(price, req.Days); err != nil {
		return nil, err
	}
	schedule, err := model.GenerateSchedule(price, req.Days, now.In(u.payments.loc), reduce)
	if err != nil {
		return nil, err
	}
	order, err := model.NewOrder(req.BuyerID, req.ProductRef, req.Price, schedule, req.FundingSource, now)
	if err != nil {
		return nil, err
	}
	if coupon != nil {
		order.CouponCode = coupon.Code
		order.CouponType = coupon.Type
		order.CouponDiscount = req.Price - order.TotalPrice
		if coupon.Type == model.CouponTypeMilestoneReward {
			order.MilestonePaymentsRequired = coupon.PaymentsRequired
			order.MilestoneRewardDays = coupon.RewardDays
		}
	}
	if req.ReferrerID != "" {
		order.ReferrerID = req.ReferrerID
		order.CommissionPercent = req.CommissionPercent
		if order.CommissionPercent == 0 {
			order.CommissionPercent = u.payments.commission.DefaultPercent()
		}
	}
	ctx = logging.WithOrderID(ctx, order.ID)

	res := &CreateOrderResult{Order: order}
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.orders.Create(ctx, tx, order); err != nil {
			return err
		}
		if order.FundingSource != model.FundingWallet {
			// the first attempt exists with the order; checkout below only binds it
			next, err := order.CheckSettleable(now, u.payments.loc)
			if err != nil {
				return err
			}
			_, err = u.payments.ensureOpenAttempt(ctx, tx, order, next, model.PaymentMethodGateway)
			return err
		}
		settled, err := u.payments.settleLocked(ctx, tx, order, model.SettleRequest{
			OrderID: order.ID,
			BuyerID: order.BuyerID,
			Method:  model.PaymentMethodWallet,
			Source:  model.SourceCreation,
		})
		if err != nil {
			return err
		}
		res.Settlement = settled
		return nil
	})
	if err != nil {
		return nil, txError(err)
	}

	log.Info().
		Int64("total", order.TotalPrice).
		Int("installments", order.TotalInstallments).
		Str("funding", string(order.FundingSource)).
		Str("coupon", order.CouponCode).
		Msg("order created")

	if res.Settlement != nil {
		u.payments.afterSettlement(ctx, logging.With(ctx, u.log), model.SettleRequest{
			Method: model.PaymentMethodWallet, Source: model.SourceCreation,
		}, res.Settlement)
		return res, nil
	}

	checkout, err := u.payments.CreateInstallmentCheckout(ctx, order.ID, order.BuyerID)
	if err != nil {
		// the order stays PENDING; the buyer can open checkout again
		log.Warn().Err(err).Msg("could not open checkout for first installment")
		return res, nil
	}
	res.Checkout = checkout
	return res, nil
}

func (u *orderUC) GetOrder(ctx context.Context, orderID, callerID string, admin bool) (*model.Order, error) {
	order, err := u.orders.FindByID(ctx, nil, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, txError(err)
	}
	if !admin && order.BuyerID != callerID {
		return nil, domain.ErrUnauthorized
	}
	return order, nil
}

func (u *orderUC) ListOrders(ctx context.Context, buyerID string) ([]*model.Order, error) {
	if buyerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	orders, err := u.orders.ListByBuyer(ctx, nil, buyerID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, txError(err)
	}
	return orders, nil
}

func (u *orderUC) CancelOrder(ctx context.Context, orderID, actorID string, admin bool) (*model.Order, error) {
	var order *model.Order
	var cancelled int64
	var credits []heldCredit
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		credits = nil
		order, err = u.payments.loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !admin && order.BuyerID != actorID {
			return domain.ErrUnauthorized
		}
		if err := order.Cancel(u.payments.now()); err != nil {
			return err
		}
		if err := u.orders.Update(ctx, tx, order); err != nil {
			return err
		}
		if credits, err = u.creditHeldCaptures(ctx, tx, order); err != nil {
			return err
		}
		cancelled, err = u.payments.payments.CancelOpenByOrder(ctx, tx, order.ID)
		return err
	})
	if err != nil {
		return nil, txError(err)
	}
	log := logging.With(logging.WithOrderID(ctx, order.ID), u.log)
	for _, c := range credits {
		u.payments.afterCaptureCredit(ctx, log, c.capture, c.amount)
	}
	u.log.Info().Str("order_id", order.ID).Str("actor_id", actorID).Bool("admin", admin).
		Int64("attempts_cancelled", cancelled).Int("captures_credited", len(credits)).Msg("order cancelled")
	return order, nil
}

type heldCredit struct {
	capture model.UnmatchedCapture
	amount  int64
}

// creditHeldCaptures returns captures parked for the next day to the buyer's wallet, since a
// cancelled order will never settle them.
func (u *orderUC) creditHeldCaptures(ctx context.Context, tx repository.Tx, order *model.Order) ([]heldCredit, error) {
	recs, err := u.payments.payments.ListByOrder(ctx, tx, order.ID)
	if err != nil {
		return nil, err
	}
	var out []heldCredit
	for _, r := range recs {
		if !r.HoldsCapture() {
			continue
		}
		c := model.UnmatchedCapture{
			OrderID:        order.ID,
			BuyerID:        order.BuyerID,
			GatewayOrderID: r.GatewayOrderID,
			PaymentID:      r.ExternalPaymentID,
			Reason:         "order cancelled",
		}
		amount, err := u.payments.creditCapture(ctx, tx, order, c)
		if err != nil {
			return nil, err
		}
		if amount > 0 {
			out = append(out, heldCredit{capture: c, amount: amount})
		}
	}
	return out, nil
}
