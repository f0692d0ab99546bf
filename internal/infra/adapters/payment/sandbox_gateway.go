package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"installment-engine/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*SandboxGateway)(nil)

// SandboxGateway is an in-memory gateway for development and tests. It signs with real
// HMAC so verification code paths run unchanged.
type SandboxGateway struct {
	mu            sync.Mutex
	seq           int64
	keySecret     string
	webhookSecret string
	currency      string
	orders        map[string]*sandboxOrder
	refunded      map[string]int64 // payment id -> refunded minor units
}

type sandboxOrder struct {
	amountMinor int64
	notes       map[string]string
	payments    []adapter.GatewayPaymentState
}

func NewSandboxGateway(keySecret, webhookSecret, currency string) *SandboxGateway {
	if currency == "" {
		currency = "INR"
	}
	return &SandboxGateway{
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		currency:      currency,
		orders:        make(map[string]*sandboxOrder),
		refunded:      make(map[string]int64),
	}
}

func (g *SandboxGateway) Name() string     { return "sandbox" }
func (g *SandboxGateway) KeyID() string    { return "rzp_sandbox" }
func (g *SandboxGateway) Currency() string { return g.currency }

func (g *SandboxGateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_sandbox%06d", prefix, g.seq)
}

func (g *SandboxGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (string, error) {
	if amountMinor <= 0 {
		return "", fmt.Errorf("sandbox: amount must be positive")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.next("order")
	cp := make(map[string]string, len(notes))
	for k, v := range notes {
		cp[k] = v
	}
	g.orders[id] = &sandboxOrder{amountMinor: amountMinor, notes: cp}
	return id, nil
}

// Capture simulates a successful checkout and returns the payment id with its signature.
func (g *SandboxGateway) Capture(gatewayOrderID string) (paymentID, signature string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[gatewayOrderID]
	if !ok {
		return "", "", fmt.Errorf("sandbox: order %s not found", gatewayOrderID)
	}
	paymentID = g.next("pay")
	o.payments = append(o.payments, adapter.GatewayPaymentState{PaymentID: paymentID, Status: "captured", AmountMinor: o.amountMinor})
	return paymentID, signPayment(g.keySecret, gatewayOrderID, paymentID), nil
}

// Notes returns what the order was created with.
func (g *SandboxGateway) Notes(gatewayOrderID string) map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if o, ok := g.orders[gatewayOrderID]; ok {
		return o.notes
	}
	return nil
}

// SignWebhook signs body the way the provider signs webhook deliveries.
func (g *SandboxGateway) SignWebhook(body []byte) string {
	return hmacHex(g.webhookSecret, body)
}

func (g *SandboxGateway) SignPayment(gatewayOrderID, paymentID string) string {
	return signPayment(g.keySecret, gatewayOrderID, paymentID)
}

func (g *SandboxGateway) VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool {
	return equalSignature(g.SignPayment(gatewayOrderID, paymentID), signature)
}

func (g *SandboxGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return equalSignature(g.SignWebhook(body), signature)
}

func (g *SandboxGateway) FetchOrderPayments(ctx context.Context, gatewayOrderID string) ([]adapter.GatewayPaymentState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[gatewayOrderID]
	if !ok {
		return nil, fmt.Errorf("sandbox: order %s not found", gatewayOrderID)
	}
	return append([]adapter.GatewayPaymentState(nil), o.payments...), nil
}

func (g *SandboxGateway) Refund(ctx context.Context, paymentID string, amountMinor int64, notes map[string]string) (adapter.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, o := range g.orders {
		for i := range o.payments {
			p := &o.payments[i]
			if p.PaymentID != paymentID {
				continue
			}
			if !p.Captured() {
				return adapter.RefundResult{}, fmt.Errorf("sandbox: payment %s is %s", paymentID, p.Status)
			}
			left := p.AmountMinor - g.refunded[paymentID]
			if amountMinor == 0 {
				amountMinor = left
			}
			if amountMinor <= 0 || amountMinor > left {
				return adapter.RefundResult{}, fmt.Errorf("sandbox: refund %d exceeds %d left on %s", amountMinor, left, paymentID)
			}
			g.refunded[paymentID] += amountMinor
			if g.refunded[paymentID] == p.AmountMinor {
				p.Status = "refunded"
			}
			g.seq++
			return adapter.RefundResult{
				ID:          fmt.Sprintf("rfnd_%s_%d", paymentID, g.seq),
				Status:      "processed",
				AmountMinor: amountMinor,
				RefundTime:  time.Now(),
			}, nil
		}
	}
	return adapter.RefundResult{}, fmt.Errorf("sandbox: payment %s not found", paymentID)
}

func (g *SandboxGateway) RefundedAmount(ctx context.Context, paymentID string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, o := range g.orders {
		for _, p := range o.payments {
			if p.PaymentID == paymentID {
				return g.refunded[paymentID], nil
			}
		}
	}
	return 0, fmt.Errorf("sandbox: payment %s not found", paymentID)
}
