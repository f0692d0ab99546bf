package adapter

import (
	"context"
	"time"
)

// RefundResult captures a minimal, provider-agnostic result of a refund request.
type RefundResult struct {
	ID          string    // provider refund id
	Status      string    // provider status e.g. pending / processed
	AmountMinor int64     // in minor units (paise)
	RefundTime  time.Time // provider timestamp if available
}

// GatewayPaymentState is what the provider reports for one payment under an order.
type GatewayPaymentState struct {
	PaymentID   string
	Status      string // created | authorized | captured | refunded | failed
	AmountMinor int64
	Error       string
}

func (s GatewayPaymentState) Captured() bool { return s.Status == "captured" }
func (s GatewayPaymentState) Failed() bool   { return s.Status == "failed" }

// PaymentGateway is the hex port for payment providers.
type PaymentGateway interface {
	Name() string
	// KeyID is the public key the client needs to open checkout.
	KeyID() string
	Currency() string

	// CreateOrder registers an order at the provider and returns its id. notes come back
	// verbatim on every webhook for payments under the order.
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (string, error)

	// SignPayment computes the signature the provider attaches to a successful checkout.
	SignPayment(gatewayOrderID, paymentID string) string
	VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool
	// VerifyWebhookSignature checks the signature header against the raw request body.
	VerifyWebhookSignature(body []byte, signature string) bool

	FetchOrderPayments(ctx context.Context, gatewayOrderID string) ([]GatewayPaymentState, error)
	// Refund returns money for a captured payment. amountMinor 0 refunds in full.
	Refund(ctx context.Context, paymentID string, amountMinor int64, notes map[string]string) (RefundResult, error)
	// RefundedAmount is the total the provider has already refunded on a payment, in minor units.
	RefundedAmount(ctx context.Context, paymentID string) (int64, error)
}

// ToMinor converts whole currency units into gateway minor units.
func ToMinor(amount int64) int64 { return amount * 100 }

// FromMinor converts gateway minor units back into whole currency units, rounding down.
func FromMinor(amountMinor int64) int64 { return amountMinor / 100 }
