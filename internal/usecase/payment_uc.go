// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"installment-engine/internal/domain"
	"installment-engine/internal/domain/model"
	"installment-engine/internal/domain/ports/adapter"
	"installment-engine/internal/domain/ports/repository"
	"installment-engine/internal/infra/logging"
	"installment-engine/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type PaymentUseCase interface {
	// SettleNextInstallment settles the lowest-numbered payable installment of an order.
	SettleNextInstallment(ctx context.Context, req model.SettleRequest) (*model.SettleResult, error)
	// CreateInstallmentCheckout opens a gateway order for the next payable installment.
	CreateInstallmentCheckout(ctx context.Context, orderID, buyerID string) (*model.Checkout, error)
	// CreateCombinedCheckout opens one gateway order covering the next installment of several orders.
	CreateCombinedCheckout(ctx context.Context, buyerID string, orderIDs []string) (*model.Checkout, error)
	// MarkGatewayAttemptFailed fails every open attempt linked to a gateway order.
	MarkGatewayAttemptFailed(ctx context.Context, gatewayOrderID, reason string) (int, error)
	// RefundPayment is the admin-only COMPLETED -> REFUNDED transition. Gateway refunds pass
	// through REFUNDING and a retry resumes them.
	RefundPayment(ctx context.Context, adminID, paymentID, reason string) (*model.PaymentRecord, error)
	// CreditUnmatchedCapture returns a verified capture that no open attempt could take to the
	// buyer's wallet. Each (capture, order) pair is credited at most once.
	CreditUnmatchedCapture(ctx context.Context, c model.UnmatchedCapture) (int64, error)
	// ReconcileStale settles or fails gateway attempts the webhook never resolved.
	ReconcileStale(ctx context.Context, olderThan time.Time, limit int) (ReconcileReport, error)
}

// ReconcileReport counts what one reconciler pass did.
type ReconcileReport struct {
	Checked int
	Settled int
	Failed  int
	Skipped int
}

// errCaptureHeld ends a settlement transaction that parked a capture for the next day. The
// transaction commits and the caller sees ErrAlreadyPaidToday.
var errCaptureHeld = errors.New("capture held for the next calendar day")

type paymentUC struct {
	tm         repository.TransactionManager
	orders     repository.OrderRepository
	payments   repository.PaymentRecordRepository
	wallets    repository.WalletRepository
	gateway    adapter.PaymentGateway
	commission *CommissionUseCase
	notifier   adapter.Notifier
	loc        *time.Location
	log        *zerolog.Logger
	now        func() time.Time
}

func NewPaymentUseCase(
	tm repository.TransactionManager,
	orders repository.OrderRepository,
	payments repository.PaymentRecordRepository,
	wallets repository.WalletRepository,
	gateway adapter.PaymentGateway,
	commission *CommissionUseCase,
	notifier adapter.Notifier,
	loc *time.Location,
	logger *zerolog.Logger,
) *paymentUC {
	if loc == nil {
		loc = time.UTC
	}
	compLog := logger.With().Str("component", "PaymentUC").Logger()
	return &paymentUC{
		tm:         tm,
		orders:     orders,
		payments:   payments,
		wallets:    wallets,
		gateway:    gateway,
		commission: commission,
		notifier:   notifier,
		loc:        loc,
		log:        &compLog,
		now:        time.Now,
	}
}

func (u *paymentUC) SettleNextInstallment(ctx context.Context, req model.SettleRequest) (*model.SettleResult, error) {
	if req.Source == "" {
		req.Source = model.SourceClient
	}
	ctx = logging.WithOrderID(logging.WithBuyerID(ctx, req.BuyerID), req.OrderID)
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "PaymentUC.SettleNextInstallment")()

	if err := validateSettleRequest(req); err != nil {
		metrics.IncSettlement(string(req.Method), string(req.Source), reasonLabel(err))
		return nil, err
	}

	var res *model.SettleResult
	held := false
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		held = false
		order, err := u.loadOrder(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		res, err = u.settleLocked(ctx, tx, order, req)
		if errors.Is(err, errCaptureHeld) {
			held = true
			return nil
		}
		return err
	})
	if err == nil && held {
		log.Info().Str("gateway_order_id", req.Gateway.GatewayOrderID).Str("external_payment_id", req.Gateway.PaymentID).
			Msg("capture held for the next day")
		err = domain.ErrAlreadyPaidToday
	}
	err = txError(err)
	metrics.IncSettlement(string(req.Method), string(req.Source), reasonLabel(err))
	if err != nil {
		ev := log.Info()
		if !isClientError(err) {
			ev = log.Error()
		}
		ev.Err(err).Str("method", string(req.Method)).Str("source", string(req.Source)).Msg("settlement rejected")
		return nil, err
	}

	u.afterSettlement(ctx, log, req, res)
	return res, nil
}

func validateSettleRequest(req model.SettleRequest) error {
	if strings.TrimSpace(req.OrderID) == "" || strings.TrimSpace(req.BuyerID) == "" {
		return domain.ErrInvalidArgument
	}
	switch req.Method {
	case model.PaymentMethodWallet:
		return nil
	case model.PaymentMethodGateway:
		g := req.Gateway
		if g == nil || g.GatewayOrderID == "" || g.PaymentID == "" {
			return domain.ErrInvalidArgument
		}
		if g.Signature == "" {
			return domain.ErrSignatureVerificationFailed
		}
		return nil
	default:
		return domain.ErrInvalidArgument
	}
}

func (u *paymentUC) loadOrder(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	order, err := u.orders.FindByID(ctx, tx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	return order, err
}

// settleLocked runs the whole settlement sequence against an order already locked by tx.
// Every write happens on tx, so any error leaves nothing behind.
func (u *paymentUC) settleLocked(ctx context.Context, tx repository.Tx, order *model.Order, req model.SettleRequest) (*model.SettleResult, error) {
	now := u.now()

	if order.BuyerID != req.BuyerID {
		return nil, domain.ErrUnauthorized
	}
	var capture *model.GatewayCapture
	if req.Method == model.PaymentMethodGateway {
		capture = req.Gateway
		done, err := u.payments.FindCompletedByExternalID(ctx, tx, order.ID, capture.PaymentID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if done != nil {
			return nil, domain.ErrPaymentAlreadyProcessed
		}
		if !u.gateway.VerifyPaymentSignature(capture.GatewayOrderID, capture.PaymentID, capture.Signature) {
			return nil, domain.ErrSignatureVerificationFailed
		}
	}

	next, err := order.CheckSettleable(now, u.loc)
	deferred := false
	if err != nil {
		// a capture arriving after today's installment waits on its attempt until tomorrow
		var ok bool
		if capture == nil || !errors.Is(err, domain.ErrAlreadyPaidToday) {
			return nil, err
		}
		if next, ok = order.NextPayable(); !ok {
			return nil, err
		}
		deferred = true
	}

	key := model.IdempotencyKey(order.ID, order.BuyerID, next.Number)
	rec, err := u.payments.FindByIdempotencyKey(ctx, tx, key)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		rec = nil
	case err != nil:
		return nil, err
	case rec.Status == model.PaymentStatusCompleted:
		return nil, domain.ErrPaymentAlreadyProcessed
	case !rec.Open():
		rec = nil
	}

	if capture != nil {
		if err := checkCaptureBelongs(rec, next, capture); err != nil {
			return nil, err
		}
		if deferred {
			return nil, u.holdCapture(ctx, tx, rec, capture)
		}
	} else {
		if rec != nil && rec.GatewayOrderID != "" {
			if rec.HoldsCapture() {
				return nil, domain.ErrPaymentAlreadyProcessed
			}
			// a capture on the abandoned checkout is credited back when it arrives
			if _, err := u.payments.UpdateStatusIfOpen(ctx, tx, rec.ID, model.PaymentStatusFailed, model.SupersededReason("wallet payment")); err != nil {
				return nil, err
			}
			rec = nil
		}
		if err := u.wallets.Deduct(ctx, tx, order.BuyerID, next.Amount, "installment", key); err != nil {
			return nil, err
		}
	}

	if rec == nil {
		rec = newPaymentRecord(order.ID, order.BuyerID, next.Number, next.Amount, req.Method, model.PaymentStatusProcessing, now)
		if err := u.payments.Insert(ctx, tx, rec); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return nil, domain.ErrPaymentAlreadyProcessed
			}
			return nil, err
		}
	}
	rec.Amount = next.Amount
	rec.Method = req.Method
	rec.Status = model.PaymentStatusCompleted
	rec.UpdatedAt = now
	rec.CompletedAt = &now
	if capture != nil {
		rec.ExternalPaymentID = capture.PaymentID
		rec.SignatureVerified = true
	}
	ok, err := u.payments.Complete(ctx, tx, rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrPaymentAlreadyProcessed
	}

	out, err := order.ApplySettlement(next.Number, next.Amount, rec.ID, now)
	if err != nil {
		return nil, err
	}
	if err := u.orders.Update(ctx, tx, order); err != nil {
		return nil, err
	}

	split, err := u.commission.Allocate(ctx, tx, order, rec)
	if err != nil {
		return nil, fmt.Errorf("allocate commission: %w", err)
	}

	return &model.SettleResult{
		Payment:           rec,
		Order:             order,
		Installment:       out.Installment,
		RemainingAmount:   order.RemainingAmount,
		OrderCompleted:    out.Completed,
		CompletionReason:  out.CompletionReason,
		RewardApplied:     out.RewardApplied,
		FreedInstallments: out.FreedInstallments,
		Commission:        split,
	}, nil
}

// checkCaptureBelongs accepts a capture only on the open attempt bound to its gateway order.
// Captures on superseded or foreign gateway orders come back as ErrCaptureMismatch.
func checkCaptureBelongs(rec *model.PaymentRecord, next *model.Installment, capture *model.GatewayCapture) error {
	if rec == nil || rec.GatewayOrderID != capture.GatewayOrderID {
		return domain.ErrCaptureMismatch
	}
	if rec.ExternalPaymentID != "" && rec.ExternalPaymentID != capture.PaymentID {
		return domain.ErrCaptureMismatch
	}
	if capture.AmountMinor > 0 && capture.AmountMinor != adapter.ToMinor(next.Amount) {
		return domain.ErrCaptureMismatch
	}
	return nil
}

// holdCapture parks the payment id on its attempt. The reconciler settles it once the order
// may be paid again.
func (u *paymentUC) holdCapture(ctx context.Context, tx repository.Tx, rec *model.PaymentRecord, capture *model.GatewayCapture) error {
	if rec.ExternalPaymentID == "" {
		ok, err := u.payments.HoldCapture(ctx, tx, rec.ID, capture.PaymentID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrPaymentAlreadyProcessed
		}
	}
	return errCaptureHeld
}

func newPaymentRecord(orderID, buyerID string, number int, amount int64, method model.PaymentMethod, status model.PaymentStatus, now time.Time) *model.PaymentRecord {
	return &model.PaymentRecord{
		ID:                uuid.NewString(),
		OrderID:           orderID,
		BuyerID:           buyerID,
		InstallmentNumber: number,
		Amount:            amount,
		Method:            method,
		Status:            status,
		IdempotencyKey:    model.IdempotencyKey(orderID, buyerID, number),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (u *paymentUC) afterSettlement(ctx context.Context, log *zerolog.Logger, req model.SettleRequest, res *model.SettleResult) {
	metrics.AddSettledAmount(string(req.Method), res.Installment.Amount)
	if res.OrderCompleted {
		metrics.IncOrderCompleted(string(res.CompletionReason))
	}
	if res.Commission.Total > 0 {
		metrics.AddCommission(res.Commission.Available, res.Commission.Locked)
	}
	log.Info().
		Int("installment", res.Installment.Number).
		Int64("amount", res.Installment.Amount).
		Str("method", string(req.Method)).
		Str("source", string(req.Source)).
		Str("payment_id", res.Payment.ID).
		Int64("remaining", res.RemainingAmount).
		Bool("completed", res.OrderCompleted).
		Msg("installment settled")

	now := u.now()
	o := res.Order
	u.notify(ctx, model.Notification{Kind: model.NotifyInstallmentPaid, AccountID: o.BuyerID, OrderID: o.ID,
		Amount: res.Installment.Amount, At: now,
		Text: fmt.Sprintf("Installment %d/%d of order %s paid (%d). Remaining %d.",
			res.Installment.Number, o.TotalInstallments, o.ID, res.Installment.Amount, res.RemainingAmount)})
	if res.RewardApplied {
		u.notify(ctx, model.Notification{Kind: model.NotifyRewardApplied, AccountID: o.BuyerID, OrderID: o.ID, At: now,
			Text: fmt.Sprintf("Milestone reached on order %s: installments %v are free.", o.ID, res.FreedInstallments)})
	}
	if res.OrderCompleted {
		u.notify(ctx, model.Notification{Kind: model.NotifyOrderCompleted, AccountID: o.BuyerID, OrderID: o.ID,
			Amount: o.PaidAmount, At: now})
	}
	if res.Commission.Total > 0 {
		u.notify(ctx, model.Notification{Kind: model.NotifyCommission, AccountID: o.ReferrerID, OrderID: o.ID,
			Amount: res.Commission.Total, At: now})
	}
}

func (u *paymentUC) notify(ctx context.Context, n model.Notification) {
	if u.notifier == nil {
		return
	}
	if err := u.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		u.log.Warn().Err(err).Str("kind", string(n.Kind)).Msg("notification not delivered")
	}
}

// -----------------------------
// Checkout
// -----------------------------

func (u *paymentUC) CreateInstallmentCheckout(ctx context.Context, orderID, buyerID string) (*model.Checkout, error) {
	if orderID == "" || buyerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.openCheckout(ctx, buyerID, []string{orderID}, func(atts []*attempt) map[string]string {
		att := atts[0]
		kind := model.KindDailyInstallment
		if att.installment == 1 && att.orderStatus == model.OrderStatusPending {
			kind = model.KindFirstInstallment
		}
		return map[string]string{
			model.NotePaymentType: string(kind),
			model.NoteOrderID:     orderID,
			model.NoteBuyerID:     buyerID,
			model.NoteInstallment: strconv.Itoa(att.installment),
		}
	})
}

func (u *paymentUC) CreateCombinedCheckout(ctx context.Context, buyerID string, orderIDs []string) (*model.Checkout, error) {
	ids := dedupe(orderIDs)
	if buyerID == "" || len(ids) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	if len(ids) == 1 {
		return u.CreateInstallmentCheckout(ctx, ids[0], buyerID)
	}
	return u.openCheckout(ctx, buyerID, ids, func([]*attempt) map[string]string {
		return map[string]string{
			model.NotePaymentType: string(model.KindCombinedInstallments),
			model.NoteOrderIDs:    strings.Join(ids, ","),
			model.NoteBuyerID:     buyerID,
		}
	})
}

type attempt struct {
	orderID     string
	buyerID     string
	orderStatus model.OrderStatus
	installment int
	amount      int64
	record      *model.PaymentRecord
}

// openCheckout hands out a gateway order paying the next installment of every order in ids.
// An unpaid gateway order covering exactly these attempts is handed out again. Otherwise a new
// one is created, and attempts bound to an older gateway order are superseded, never rebound.
func (u *paymentUC) openCheckout(ctx context.Context, buyerID string, ids []string, notesFor func([]*attempt) map[string]string) (*model.Checkout, error) {
	atts, err := u.prepareAttempts(ctx, buyerID, ids)
	if err != nil {
		return nil, err
	}
	if gw := u.reusableGatewayOrder(ctx, atts); gw != "" {
		u.log.Info().Str("gateway_order_id", gw).Strs("orders", ids).Msg("checkout reused")
		return u.checkout(gw, atts), nil
	}

	var total int64
	for _, a := range atts {
		total += a.amount
	}
	receipt := "inst_" + ulid.Make().String()
	gwOrderID, err := u.gateway.CreateOrder(ctx, adapter.ToMinor(total), u.gateway.Currency(), receipt, notesFor(atts))
	if err != nil {
		return nil, fmt.Errorf("%w: create gateway order: %v", domain.ErrTransactionFailed, err)
	}
	if err := u.bindAttempts(ctx, atts, gwOrderID); err != nil {
		return nil, err
	}
	u.log.Info().Str("gateway_order_id", gwOrderID).Strs("orders", ids).Int64("amount", total).Msg("checkout opened")
	return u.checkout(gwOrderID, atts), nil
}

// prepareAttempts locks the orders in id order and makes sure each has an open attempt for its
// next installment.
func (u *paymentUC) prepareAttempts(ctx context.Context, buyerID string, ids []string) ([]*attempt, error) {
	locking := append([]string(nil), ids...)
	sort.Strings(locking)
	byOrder := make(map[string]*attempt, len(ids))
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, id := range locking {
			att, err := u.prepareAttempt(ctx, tx, id, buyerID)
			if err != nil {
				if len(ids) > 1 {
					return fmt.Errorf("order %s: %w", id, err)
				}
				return err
			}
			byOrder[id] = att
		}
		return nil
	})
	if err != nil {
		return nil, txError(err)
	}
	atts := make([]*attempt, 0, len(ids))
	for _, id := range ids {
		atts = append(atts, byOrder[id])
	}
	return atts, nil
}

func (u *paymentUC) prepareAttempt(ctx context.Context, tx repository.Tx, orderID, buyerID string) (*attempt, error) {
	order, err := u.loadOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, domain.ErrUnauthorized
	}
	next, err := order.CheckSettleable(u.now(), u.loc)
	if err != nil {
		return nil, err
	}
	rec, err := u.ensureOpenAttempt(ctx, tx, order, next, model.PaymentMethodGateway)
	if err != nil {
		return nil, err
	}
	if rec.HoldsCapture() {
		return nil, domain.ErrPaymentAlreadyProcessed
	}
	return &attempt{orderID: order.ID, buyerID: order.BuyerID, orderStatus: order.Status,
		installment: next.Number, amount: next.Amount, record: rec}, nil
}

// ensureOpenAttempt returns the live attempt for the installment, inserting a PENDING one if
// none exists.
func (u *paymentUC) ensureOpenAttempt(ctx context.Context, tx repository.Tx, order *model.Order, next *model.Installment, method model.PaymentMethod) (*model.PaymentRecord, error) {
	key := model.IdempotencyKey(order.ID, order.BuyerID, next.Number)
	rec, err := u.payments.FindByIdempotencyKey(ctx, tx, key)
	if err == nil {
		if rec.Status == model.PaymentStatusCompleted {
			return nil, domain.ErrPaymentAlreadyProcessed
		}
		if rec.Open() {
			return rec, nil
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	rec = newPaymentRecord(order.ID, order.BuyerID, next.Number, next.Amount, method, model.PaymentStatusPending, u.now())
	if err := u.payments.Insert(ctx, tx, rec); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, domain.ErrPaymentAlreadyProcessed
		}
		return nil, err
	}
	return rec, nil
}

// reusableGatewayOrder returns the gateway order every attempt is bound to when nothing else
// is open on it, or "" when a new one is needed.
func (u *paymentUC) reusableGatewayOrder(ctx context.Context, atts []*attempt) string {
	gw := atts[0].record.GatewayOrderID
	if gw == "" {
		return ""
	}
	ids := make(map[string]struct{}, len(atts))
	for _, a := range atts {
		if a.record.GatewayOrderID != gw {
			return ""
		}
		ids[a.record.ID] = struct{}{}
	}
	open, err := u.payments.ListOpenByGatewayOrder(ctx, nil, gw)
	if err != nil {
		u.log.Warn().Err(err).Str("gateway_order_id", gw).Msg("checkout reuse check failed")
		return ""
	}
	if len(open) != len(atts) {
		return ""
	}
	for _, r := range open {
		if _, ok := ids[r.ID]; !ok {
			return ""
		}
	}
	return gw
}

// bindAttempts links the attempts to gwOrderID in one transaction. An attempt already bound to
// another gateway order is failed as superseded and replaced by a fresh one, so a capture on
// the old gateway order never finds an open attempt.
func (u *paymentUC) bindAttempts(ctx context.Context, atts []*attempt, gwOrderID string) error {
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		now := u.now()
		for _, a := range atts {
			rec, err := u.payments.FindByIdempotencyKey(ctx, tx, a.record.IdempotencyKey)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				return domain.ErrInvalidStatus
			case err != nil:
				return err
			case rec.Status == model.PaymentStatusCompleted, rec.HoldsCapture():
				return domain.ErrPaymentAlreadyProcessed
			case !rec.Open():
				return domain.ErrInvalidStatus
			}

			if rec.GatewayOrderID == "" {
				ok, err := u.payments.AttachGatewayOrder(ctx, tx, rec.ID, gwOrderID)
				if err != nil {
					return err
				}
				if !ok {
					return domain.ErrPaymentAlreadyProcessed
				}
				rec.GatewayOrderID = gwOrderID
				a.record = rec
				continue
			}

			if _, err := u.payments.UpdateStatusIfOpen(ctx, tx, rec.ID, model.PaymentStatusFailed, model.SupersededReason("checkout "+gwOrderID)); err != nil {
				return err
			}
			fresh := newPaymentRecord(a.orderID, a.buyerID, rec.InstallmentNumber, rec.Amount, model.PaymentMethodGateway, model.PaymentStatusPending, now)
			fresh.GatewayOrderID = gwOrderID
			if err := u.payments.Insert(ctx, tx, fresh); err != nil {
				if errors.Is(err, domain.ErrAlreadyExists) {
					return domain.ErrPaymentAlreadyProcessed
				}
				return err
			}
			u.log.Info().Str("payment_id", rec.ID).Str("old_gateway_order_id", rec.GatewayOrderID).
				Str("gateway_order_id", gwOrderID).Msg("checkout superseded")
			a.record = fresh
		}
		return nil
	})
	return txError(err)
}

func (u *paymentUC) checkout(gwOrderID string, atts []*attempt) *model.Checkout {
	var total int64
	installments := make(map[string]int, len(atts))
	orderIDs := make([]string, 0, len(atts))
	for _, a := range atts {
		total += a.amount
		installments[a.orderID] = a.installment
		orderIDs = append(orderIDs, a.orderID)
	}
	return &model.Checkout{
		GatewayOrderID: gwOrderID,
		Amount:         total,
		AmountMinor:    adapter.ToMinor(total),
		Currency:       u.gateway.Currency(),
		KeyID:          u.gateway.KeyID(),
		OrderIDs:       orderIDs,
		Installments:   installments,
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// -----------------------------
// Failure, refund, reconciliation
// -----------------------------

func (u *paymentUC) MarkGatewayAttemptFailed(ctx context.Context, gatewayOrderID, reason string) (int, error) {
	if gatewayOrderID == "" {
		return 0, domain.ErrInvalidArgument
	}
	failed := 0
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		failed = 0
		recs, err := u.payments.ListOpenByGatewayOrder(ctx, tx, gatewayOrderID)
		if err != nil {
			return err
		}
		for _, r := range recs {
			ok, err := u.payments.UpdateStatusIfOpen(ctx, tx, r.ID, model.PaymentStatusFailed, reason)
			if err != nil {
				return err
			}
			if ok {
				failed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, txError(err)
	}
	if failed > 0 {
		u.log.Info().Str("gateway_order_id", gatewayOrderID).Int("count", failed).Str("reason", reason).Msg("gateway attempts failed")
	}
	return failed, nil
}

func (u *paymentUC) RefundPayment(ctx context.Context, adminID, paymentID, reason string) (*model.PaymentRecord, error) {
	if adminID == "" || paymentID == "" {
		return nil, domain.ErrInvalidArgument
	}
	var rec *model.PaymentRecord
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		rec, err = u.payments.FindByID(ctx, tx, paymentID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrPaymentNotFound
		}
		if err != nil {
			return err
		}
		if rec.Method == model.PaymentMethodGateway {
			return u.beginGatewayRefund(ctx, tx, rec, reason)
		}
		if rec.Status != model.PaymentStatusCompleted {
			return domain.ErrInvalidStatus
		}
		ok, err := u.payments.MarkRefunded(ctx, tx, rec.ID, reason, "")
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidStatus
		}
		if _, err := u.wallets.Credit(ctx, tx, rec.BuyerID, rec.Amount, 0, model.WalletRefund, reason, rec.ID); err != nil {
			return err
		}
		rec.Status = model.PaymentStatusRefunded
		rec.FailureReason = reason
		return nil
	})
	if err != nil {
		return nil, txError(err)
	}
	if rec.Status == model.PaymentStatusRefunding {
		if err := u.finishGatewayRefund(ctx, adminID, rec, reason); err != nil {
			u.log.Error().Err(err).Str("payment_id", rec.ID).Str("admin_id", adminID).Msg("gateway refund left in REFUNDING")
			return nil, err
		}
	}
	metrics.IncRefund(string(rec.Method))
	u.log.Info().Str("payment_id", rec.ID).Str("admin_id", adminID).Str("method", string(rec.Method)).
		Str("refund_id", rec.RefundID).Msg("payment refunded")
	u.notify(ctx, model.Notification{Kind: model.NotifyRefund, AccountID: rec.BuyerID, OrderID: rec.OrderID,
		Amount: rec.Amount, At: u.now()})
	return rec, nil
}

// beginGatewayRefund commits REFUNDING before the provider is called. A REFUNDING record is
// resumed as is, and only one refund per provider payment may be in flight.
func (u *paymentUC) beginGatewayRefund(ctx context.Context, tx repository.Tx, rec *model.PaymentRecord, reason string) error {
	switch rec.Status {
	case model.PaymentStatusRefunding:
		return nil
	case model.PaymentStatusCompleted:
	default:
		return domain.ErrInvalidStatus
	}
	siblings, err := u.payments.ListByExternalID(ctx, tx, rec.ExternalPaymentID)
	if err != nil {
		return err
	}
	for _, s := range siblings {
		if s.ID != rec.ID && s.Status == model.PaymentStatusRefunding {
			return domain.ErrInvalidStatus
		}
	}
	ok, err := u.payments.MarkRefunding(ctx, tx, rec.ID, reason)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidStatus
	}
	rec.Status = model.PaymentStatusRefunding
	rec.FailureReason = reason
	return nil
}

// finishGatewayRefund compares what the provider already returned on the payment with what
// this service has recorded, so a retry after a lost commit does not refund twice.
func (u *paymentUC) finishGatewayRefund(ctx context.Context, adminID string, rec *model.PaymentRecord, reason string) error {
	siblings, err := u.payments.ListByExternalID(ctx, nil, rec.ExternalPaymentID)
	if err != nil {
		return txError(err)
	}
	var finalized int64
	for _, s := range siblings {
		if s.Status == model.PaymentStatusRefunded {
			finalized += s.Amount
		}
	}
	refunded, err := u.gateway.RefundedAmount(ctx, rec.ExternalPaymentID)
	if err != nil {
		return fmt.Errorf("%w: gateway refund status: %v", domain.ErrTransactionFailed, err)
	}
	if refunded < adapter.ToMinor(finalized+rec.Amount) {
		out, err := u.gateway.Refund(ctx, rec.ExternalPaymentID, adapter.ToMinor(rec.Amount),
			map[string]string{"payment_record": rec.ID, "admin": adminID})
		if err != nil {
			return fmt.Errorf("%w: gateway refund: %v", domain.ErrTransactionFailed, err)
		}
		rec.RefundID = out.ID
	} else {
		u.log.Warn().Str("payment_id", rec.ID).Int64("refunded_minor", refunded).Msg("provider already refunded; finalizing record")
	}

	ok, err := u.payments.MarkRefunded(ctx, nil, rec.ID, reason, rec.RefundID)
	if err != nil {
		return txError(err)
	}
	if !ok {
		return domain.ErrInvalidStatus
	}
	rec.Status = model.PaymentStatusRefunded
	return nil
}

func (u *paymentUC) CreditUnmatchedCapture(ctx context.Context, c model.UnmatchedCapture) (int64, error) {
	if c.OrderID == "" || c.BuyerID == "" || c.GatewayOrderID == "" || c.PaymentID == "" {
		return 0, domain.ErrInvalidArgument
	}
	ctx = logging.WithOrderID(logging.WithBuyerID(ctx, c.BuyerID), c.OrderID)
	log := logging.With(ctx, u.log)

	var credited int64
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		order, err := u.loadOrder(ctx, tx, c.OrderID)
		if err != nil {
			return err
		}
		if order.BuyerID != c.BuyerID {
			return domain.ErrUnauthorized
		}
		credited, err = u.creditCapture(ctx, tx, order, c)
		return err
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		log.Info().Str("external_payment_id", c.PaymentID).Msg("capture already credited")
		return 0, nil
	}
	if err != nil {
		return 0, txError(err)
	}
	if credited > 0 {
		u.afterCaptureCredit(ctx, log, c, credited)
	}
	return credited, nil
}

// creditCapture returns a capture to the buyer's wallet and fails attempts still open on its
// gateway order. It credits nothing when the capture already settled an installment of the
// order, and refuses captures on gateway orders never opened for the order.
func (u *paymentUC) creditCapture(ctx context.Context, tx repository.Tx, order *model.Order, c model.UnmatchedCapture) (int64, error) {
	done, err := u.payments.FindCompletedByExternalID(ctx, tx, order.ID, c.PaymentID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return 0, err
	}
	if done != nil {
		return 0, nil
	}
	recs, err := u.payments.ListByOrder(ctx, tx, order.ID)
	if err != nil {
		return 0, err
	}
	var opened *model.PaymentRecord
	for _, r := range recs {
		if r.GatewayOrderID != c.GatewayOrderID {
			continue
		}
		if opened == nil {
			opened = r
		}
		if r.Open() {
			if _, err := u.payments.UpdateStatusIfOpen(ctx, tx, r.ID, model.PaymentStatusFailed, "capture credited to wallet"); err != nil {
				return 0, err
			}
		}
	}
	if opened == nil {
		return 0, domain.ErrCaptureMismatch
	}
	amount := opened.Amount
	if c.AmountMinor > 0 {
		amount = adapter.FromMinor(c.AmountMinor)
	}
	if amount <= 0 {
		return 0, domain.ErrCaptureMismatch
	}
	reason := c.Reason
	if reason == "" {
		reason = "unmatched gateway capture"
	}
	if _, err := u.wallets.Credit(ctx, tx, order.BuyerID, amount, 0, model.WalletCaptureCredit, reason, captureCreditRef(c.PaymentID, order.ID)); err != nil {
		return 0, err
	}
	return amount, nil
}

func captureCreditRef(paymentID, orderID string) string {
	return "capture:" + paymentID + ":" + orderID
}

func (u *paymentUC) afterCaptureCredit(ctx context.Context, log *zerolog.Logger, c model.UnmatchedCapture, amount int64) {
	metrics.IncRefund(string(model.WalletCaptureCredit))
	log.Warn().Str("gateway_order_id", c.GatewayOrderID).Str("external_payment_id", c.PaymentID).
		Int64("amount", amount).Str("reason", c.Reason).Msg("capture credited to wallet")
	u.notify(ctx, model.Notification{Kind: model.NotifyRefund, AccountID: c.BuyerID, OrderID: c.OrderID,
		Amount: amount, At: u.now(),
		Text: fmt.Sprintf("Payment %s could not be applied to order %s; %d credited to your wallet.", c.PaymentID, c.OrderID, amount)})
}

func (u *paymentUC) ReconcileStale(ctx context.Context, olderThan time.Time, limit int) (ReconcileReport, error) {
	var rep ReconcileReport
	recs, err := u.payments.ListStaleOpen(ctx, nil, olderThan, limit)
	if err != nil {
		return rep, txError(err)
	}

	byGatewayOrder := make(map[string][]*model.PaymentRecord)
	for _, r := range recs {
		if r.GatewayOrderID == "" {
			continue
		}
		byGatewayOrder[r.GatewayOrderID] = append(byGatewayOrder[r.GatewayOrderID], r)
	}
	gwIDs := make([]string, 0, len(byGatewayOrder))
	for id := range byGatewayOrder {
		gwIDs = append(gwIDs, id)
	}
	sort.Strings(gwIDs)

	for _, gwID := range gwIDs {
		group := byGatewayOrder[gwID]
		rep.Checked += len(group)
		// a held capture is already verified; no need to ask the gateway again
		captured, allFailed := heldCapture(group), false
		if captured == nil {
			states, err := u.gateway.FetchOrderPayments(ctx, gwID)
			if err != nil {
				u.log.Warn().Err(err).Str("gateway_order_id", gwID).Msg("reconcile: fetch payments failed")
				metrics.IncReconcilerAction("error")
				rep.Skipped += len(group)
				continue
			}
			captured, allFailed = pickCaptured(states)
		}
		switch {
		case captured != nil:
			for _, r := range group {
				_, err := u.SettleNextInstallment(ctx, model.SettleRequest{
					OrderID: r.OrderID,
					BuyerID: r.BuyerID,
					Method:  model.PaymentMethodGateway,
					Source:  model.SourceReconciler,
					Gateway: &model.GatewayCapture{
						GatewayOrderID: gwID,
						PaymentID:      captured.PaymentID,
						Signature:      u.gateway.SignPayment(gwID, captured.PaymentID),
						AmountMinor:    singleAmount(group, captured.AmountMinor),
					},
				})
				switch {
				case err == nil:
					rep.Settled++
					metrics.IncReconcilerAction("settled")
				case errors.Is(err, domain.ErrPaymentAlreadyProcessed), errors.Is(err, domain.ErrAlreadyPaidToday):
					rep.Skipped++
					metrics.IncReconcilerAction("skipped")
				default:
					rep.Skipped++
					metrics.IncReconcilerAction("error")
					u.log.Warn().Err(err).Str("payment_id", r.ID).Msg("reconcile: settle failed")
				}
			}
		case allFailed:
			n, err := u.MarkGatewayAttemptFailed(ctx, gwID, "reconciler: gateway reports failure")
			if err != nil {
				u.log.Warn().Err(err).Str("gateway_order_id", gwID).Msg("reconcile: mark failed")
				metrics.IncReconcilerAction("error")
				continue
			}
			rep.Failed += n
			metrics.IncReconcilerAction("failed")
		default:
			rep.Skipped += len(group)
			metrics.IncReconcilerAction("skipped")
		}
	}
	return rep, nil
}

func pickCaptured(states []adapter.GatewayPaymentState) (*adapter.GatewayPaymentState, bool) {
	allFailed := len(states) > 0
	for i := range states {
		if states[i].Captured() {
			return &states[i], false
		}
		if !states[i].Failed() {
			allFailed = false
		}
	}
	return nil, allFailed
}

func heldCapture(group []*model.PaymentRecord) *adapter.GatewayPaymentState {
	for _, r := range group {
		if r.HoldsCapture() {
			return &adapter.GatewayPaymentState{PaymentID: r.ExternalPaymentID, Status: "captured"}
		}
	}
	return nil
}

// singleAmount only passes the captured amount through when it paid for a single installment.
func singleAmount(group []*model.PaymentRecord, amountMinor int64) int64 {
	if len(group) == 1 {
		return amountMinor
	}
	return 0
}
