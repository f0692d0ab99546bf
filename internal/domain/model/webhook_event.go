package model

import (
	"strconv"
	"strings"
	"time"
)

type WebhookStatus string

const (
	WebhookStatusProcessing WebhookStatus = "processing"
	WebhookStatusProcessed  WebhookStatus = "processed"
	WebhookStatusIgnored    WebhookStatus = "ignored"
	WebhookStatusFailed     WebhookStatus = "failed"
	WebhookStatusDuplicate  WebhookStatus = "duplicate"
)

// Gateway event types the receiver understands.
const (
	EventPaymentCaptured = "payment.captured"
	EventOrderPaid       = "order.paid"
	EventPaymentFailed   = "payment.failed"
)

// WebhookEvent is the dedup and audit row for one inbound gateway notification.
// (ExternalPaymentID, EventType) is unique.
type WebhookEvent struct {
	ID                string
	ExternalPaymentID string
	EventType         string
	PaymentType       PaymentKind
	Status            WebhookStatus
	Note              string
	Payload           []byte
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Key is the natural key used for the claim.
func (e *WebhookEvent) Key() string {
	return e.ExternalPaymentID + ":" + e.EventType
}

// PaymentKind is the closed set of things an inbound payment can pay for.
type PaymentKind string

const (
	KindUnknown              PaymentKind = ""
	KindWalletDeposit        PaymentKind = "wallet_deposit"
	KindFirstInstallment     PaymentKind = "first_installment"
	KindDailyInstallment     PaymentKind = "daily_installment"
	KindCombinedInstallments PaymentKind = "combined_installments"
)

// Note keys attached to gateway orders at creation.
const (
	NotePaymentType = "payment_type"
	NoteOrderID     = "order_id"
	NoteOrderIDs    = "order_ids"
	NoteBuyerID     = "buyer_id"
	NoteDepositID   = "deposit_id"
	NoteInstallment = "installment"
)

// GatewayPayment is the payment entity carried in a webhook body.
type GatewayPayment struct {
	ID               string
	OrderID          string
	AmountMinor      int64
	Notes            map[string]string
	ErrorDescription string
}

// PaymentIntent is the classified form of a gateway payment's notes. Exactly one of the
// per-kind fields is meaningful for a given Kind.
type PaymentIntent struct {
	Kind        PaymentKind
	BuyerID     string
	DepositID   string   // KindWalletDeposit
	OrderID     string   // KindFirstInstallment, KindDailyInstallment
	Installment int      // KindFirstInstallment, KindDailyInstallment; 0 when absent
	OrderIDs    []string // KindCombinedInstallments
}

// ClassifyPayment turns the opaque notes into a PaymentIntent. It returns false when the
// notes do not describe anything this service created.
func ClassifyPayment(notes map[string]string) (PaymentIntent, bool) {
	in := PaymentIntent{BuyerID: strings.TrimSpace(notes[NoteBuyerID])}

	switch PaymentKind(strings.TrimSpace(notes[NotePaymentType])) {
	case KindWalletDeposit:
		in.Kind = KindWalletDeposit
		in.DepositID = strings.TrimSpace(notes[NoteDepositID])
		return in, in.DepositID != ""
	case KindFirstInstallment, KindDailyInstallment:
		in.Kind = PaymentKind(strings.TrimSpace(notes[NotePaymentType]))
		in.OrderID = strings.TrimSpace(notes[NoteOrderID])
		if n, err := strconv.Atoi(strings.TrimSpace(notes[NoteInstallment])); err == nil && n > 0 {
			in.Installment = n
		}
		return in, in.OrderID != ""
	case KindCombinedInstallments:
		in.Kind = KindCombinedInstallments
		for _, id := range strings.Split(notes[NoteOrderIDs], ",") {
			if id = strings.TrimSpace(id); id != "" {
				in.OrderIDs = append(in.OrderIDs, id)
			}
		}
		return in, len(in.OrderIDs) > 0
	default:
		return PaymentIntent{}, false
	}
}
