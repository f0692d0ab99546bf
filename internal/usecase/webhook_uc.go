// File: internal/usecase/webhook_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"installment-engine/internal/domain"
	"installment-engine/internal/domain/model"
	"installment-engine/internal/domain/ports/adapter"
	"installment-engine/internal/domain/ports/repository"
	"installment-engine/internal/infra/logging"
	"installment-engine/internal/infra/metrics"
)

var _ WebhookUseCase = (*webhookUC)(nil)

// WebhookUseCase receives signed gateway notifications. It never returns an error: every
// outcome, including internal failures, is reported through WebhookResult.Status.
type WebhookUseCase interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) *WebhookResult
}

type WebhookResult struct {
	Status  model.WebhookStatus
	EventID string
	Event   string
	Kind    model.PaymentKind
	Note    string
}

// gatewayEnvelope is the JSON body posted by the gateway.
type gatewayEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string         `json:"id"`
				OrderID          string         `json:"order_id"`
				Amount           int64          `json:"amount"`
				Notes            map[string]any `json:"notes"`
				ErrorDescription string         `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

func parseEnvelope(body []byte) (string, model.GatewayPayment, error) {
	var env gatewayEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", model.GatewayPayment{}, err
	}
	e := env.Payload.Payment.Entity
	if env.Event == "" || e.ID == "" {
		return "", model.GatewayPayment{}, errors.New("event or payment id missing")
	}
	return env.Event, model.GatewayPayment{
		ID:               e.ID,
		OrderID:          e.OrderID,
		AmountMinor:      e.Amount,
		Notes:            stringNotes(e.Notes),
		ErrorDescription: e.ErrorDescription,
	}, nil
}

// stringNotes flattens note values; the gateway echoes numbers back as JSON numbers.
func stringNotes(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case nil:
		case string:
			out[k] = t
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(t)
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out
}

type webhookUC struct {
	events   repository.WebhookEventRepository
	payments PaymentUseCase
	deposits DepositUseCase
	gateway  adapter.PaymentGateway
	notifier adapter.Notifier
	log      *zerolog.Logger
	now      func() time.Time
}

func NewWebhookUseCase(
	events repository.WebhookEventRepository,
	payments PaymentUseCase,
	deposits DepositUseCase,
	gateway adapter.PaymentGateway,
	notifier adapter.Notifier,
	logger *zerolog.Logger,
) *webhookUC {
	compLog := logger.With().Str("component", "WebhookUC").Logger()
	return &webhookUC{events: events, payments: payments, deposits: deposits, gateway: gateway, notifier: notifier, log: &compLog, now: time.Now}
}

func (u *webhookUC) HandleWebhook(ctx context.Context, body []byte, signature string) *WebhookResult {
	log := logging.With(ctx, u.log)

	if !u.gateway.VerifyWebhookSignature(body, signature) {
		log.Warn().Int("bytes", len(body)).Msg("webhook signature rejected")
		metrics.IncWebhookEvent("unknown", string(model.WebhookStatusIgnored))
		return &WebhookResult{Status: model.WebhookStatusIgnored, Note: "signature"}
	}
	eventType, payment, err := parseEnvelope(body)
	if err != nil {
		log.Warn().Err(err).Msg("webhook body not understood")
		metrics.IncWebhookEvent("unknown", string(model.WebhookStatusIgnored))
		return &WebhookResult{Status: model.WebhookStatusIgnored, Note: "unparsable"}
	}

	now := u.now()
	ev := &model.WebhookEvent{
		ID:                uuid.NewString(),
		ExternalPaymentID: payment.ID,
		EventType:         eventType,
		Status:            model.WebhookStatusProcessing,
		Payload:           body,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	res := &WebhookResult{EventID: ev.ID, Event: eventType}
	evLog := log.With().Str("event", eventType).Str("payment_id", payment.ID).Logger()
	log = &evLog

	if err := u.events.Claim(ctx, nil, ev); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			log.Info().Msg("webhook already claimed")
			res.Status = model.WebhookStatusDuplicate
			metrics.IncWebhookEvent(eventLabel(eventType), string(res.Status))
			return res
		}
		log.Error().Err(err).Msg("webhook claim failed")
		res.Status = model.WebhookStatusFailed
		res.Note = "claim failed"
		metrics.IncWebhookEvent(eventLabel(eventType), string(res.Status))
		return res
	}

	switch eventType {
	case model.EventPaymentCaptured, model.EventOrderPaid:
		u.handleCaptured(ctx, log, payment, res)
	case model.EventPaymentFailed:
		u.handleFailed(ctx, log, payment, res)
	default:
		res.Status = model.WebhookStatusIgnored
		res.Note = "event type not handled"
	}

	if err := u.events.Finish(ctx, nil, ev.ID, res.Status, res.Kind, res.Note); err != nil {
		log.Error().Err(err).Str("status", string(res.Status)).Msg("webhook event not finalized")
	}
	metrics.IncWebhookEvent(eventLabel(eventType), string(res.Status))

	if res.Status == model.WebhookStatusFailed {
		log.Error().Str("kind", string(res.Kind)).Str("note", res.Note).Msg("webhook processing failed")
		if u.notifier != nil {
			if err := u.notifier.Notify(context.WithoutCancel(ctx), model.Notification{
				Kind: model.NotifyWebhookFailed, At: u.now(),
				Text: fmt.Sprintf("webhook %s for payment %s failed: %s", eventType, payment.ID, res.Note),
			}); err != nil {
				log.Warn().Err(err).Msg("ops notification not delivered")
			}
		}
	} else {
		log.Info().Str("kind", string(res.Kind)).Str("status", string(res.Status)).Str("note", res.Note).Msg("webhook handled")
	}
	return res
}

// eventLabel keeps the metrics label set bounded.
func eventLabel(eventType string) string {
	switch eventType {
	case model.EventPaymentCaptured, model.EventOrderPaid, model.EventPaymentFailed:
		return eventType
	}
	return "other"
}

func (u *webhookUC) handleCaptured(ctx context.Context, log *zerolog.Logger, payment model.GatewayPayment, res *WebhookResult) {
	intent, ok := model.ClassifyPayment(payment.Notes)
	if !ok {
		res.Status = model.WebhookStatusIgnored
		res.Note = "payment not created by this service"
		return
	}
	res.Kind = intent.Kind

	switch intent.Kind {
	case model.KindWalletDeposit:
		_, err := u.deposits.CompleteFromGateway(ctx, intent.DepositID, payment)
		settleOutcome(res, err, "deposit "+intent.DepositID)

	case model.KindFirstInstallment, model.KindDailyInstallment:
		err := u.settle(ctx, intent.OrderID, intent.BuyerID, payment, payment.AmountMinor)
		if unmatched(err) {
			err = u.creditUnmatched(ctx, intent.OrderID, intent.BuyerID, payment, payment.AmountMinor, err)
		}
		settleOutcome(res, err, "order "+intent.OrderID)

	case model.KindCombinedInstallments:
		// one capture pays the next installment of every listed order; each order settles
		// on its own so one rejection does not block the rest
		var failed, deferred, credited []string
		for _, id := range intent.OrderIDs {
			err := u.settle(ctx, id, intent.BuyerID, payment, 0)
			if unmatched(err) {
				err = u.creditUnmatched(ctx, id, intent.BuyerID, payment, 0, err)
			}
			switch {
			case err == nil, errors.Is(err, domain.ErrPaymentAlreadyProcessed):
			case errors.Is(err, errCaptureCredited):
				credited = append(credited, id)
			case errors.Is(err, domain.ErrAlreadyPaidToday):
				deferred = append(deferred, id)
			default:
				log.Warn().Err(err).Str("order_id", id).Msg("combined settlement rejected")
				failed = append(failed, id+": "+err.Error())
			}
		}
		if len(failed) > 0 {
			res.Status = model.WebhookStatusFailed
			res.Note = fmt.Sprintf("%d of %d orders failed: %v", len(failed), len(intent.OrderIDs), failed)
			return
		}
		res.Status = model.WebhookStatusProcessed
		res.Note = fmt.Sprintf("%d orders", len(intent.OrderIDs))
		if len(deferred) > 0 {
			res.Note += fmt.Sprintf("; deferred %v, reconciler will settle", deferred)
		}
		if len(credited) > 0 {
			res.Note += fmt.Sprintf("; credited to wallet %v", credited)
		}
	}
}

// errCaptureCredited reports that a capture was returned to the buyer's wallet instead of
// settling an installment.
var errCaptureCredited = errors.New("capture credited to wallet")

// unmatched reports settlement rejections that leave a verified capture without an
// installment to pay: a superseded checkout, or an order that moved on or ended.
func unmatched(err error) bool {
	return errors.Is(err, domain.ErrCaptureMismatch) ||
		errors.Is(err, domain.ErrAlreadyCompleted) ||
		errors.Is(err, domain.ErrInvalidStatus) ||
		errors.Is(err, domain.ErrNoPendingInstallment)
}

func (u *webhookUC) creditUnmatched(ctx context.Context, orderID, buyerID string, payment model.GatewayPayment, amountMinor int64, cause error) error {
	_, err := u.payments.CreditUnmatchedCapture(ctx, model.UnmatchedCapture{
		OrderID:        orderID,
		BuyerID:        buyerID,
		GatewayOrderID: payment.OrderID,
		PaymentID:      payment.ID,
		AmountMinor:    amountMinor,
		Reason:         cause.Error(),
	})
	if err != nil {
		return fmt.Errorf("%v; wallet credit: %w", cause, err)
	}
	return errCaptureCredited
}

// settle feeds a captured payment into the same settlement path the client uses.
func (u *webhookUC) settle(ctx context.Context, orderID, buyerID string, payment model.GatewayPayment, amountMinor int64) error {
	_, err := u.payments.SettleNextInstallment(ctx, model.SettleRequest{
		OrderID: orderID,
		BuyerID: buyerID,
		Method:  model.PaymentMethodGateway,
		Source:  model.SourceWebhook,
		Gateway: &model.GatewayCapture{
			GatewayOrderID: payment.OrderID,
			PaymentID:      payment.ID,
			Signature:      u.gateway.SignPayment(payment.OrderID, payment.ID),
			AmountMinor:    amountMinor,
		},
	})
	return err
}

func settleOutcome(res *WebhookResult, err error, subject string) {
	switch {
	case err == nil:
		res.Status = model.WebhookStatusProcessed
		res.Note = subject
	case errors.Is(err, domain.ErrPaymentAlreadyProcessed):
		res.Status = model.WebhookStatusProcessed
		res.Note = subject + " already settled"
	case errors.Is(err, errCaptureCredited):
		res.Status = model.WebhookStatusProcessed
		res.Note = subject + ": capture credited to wallet"
	case errors.Is(err, domain.ErrAlreadyPaidToday):
		res.Status = model.WebhookStatusProcessed
		res.Note = subject + " deferred; reconciler will settle"
	default:
		res.Status = model.WebhookStatusFailed
		res.Note = subject + ": " + err.Error()
	}
}

func (u *webhookUC) handleFailed(ctx context.Context, log *zerolog.Logger, payment model.GatewayPayment, res *WebhookResult) {
	intent, _ := model.ClassifyPayment(payment.Notes)
	res.Kind = intent.Kind
	reason := payment.ErrorDescription
	if reason == "" {
		reason = "gateway reported payment failure"
	}
	if payment.OrderID == "" {
		res.Status = model.WebhookStatusIgnored
		res.Note = "no gateway order"
		return
	}

	n, err := u.payments.MarkGatewayAttemptFailed(ctx, payment.OrderID, reason)
	if err != nil {
		res.Status = model.WebhookStatusFailed
		res.Note = err.Error()
		return
	}
	if n > 0 {
		res.Status = model.WebhookStatusProcessed
		res.Note = fmt.Sprintf("%d attempts failed", n)
		return
	}
	ok, err := u.deposits.FailPending(ctx, payment.OrderID, reason)
	if err != nil {
		res.Status = model.WebhookStatusFailed
		res.Note = err.Error()
		return
	}
	res.Status = model.WebhookStatusProcessed
	if ok {
		res.Note = "deposit failed"
	} else {
		res.Note = "nothing pending"
		log.Debug().Str("gateway_order_id", payment.OrderID).Msg("payment.failed matched no open record")
	}
}
