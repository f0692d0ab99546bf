// File: internal/infra/adapters/payment/razorpay_gateway.go
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	razorpay "github.com/razorpay/razorpay-go"

	"installment-engine/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*RazorpayGateway)(nil)

// RazorpayGateway implements adapter.PaymentGateway on the Razorpay Orders API.
type RazorpayGateway struct {
	client        *razorpay.Client
	keyID         string
	keySecret     string
	webhookSecret string
	currency      string
}

func NewRazorpayGateway(keyID, keySecret, webhookSecret, currency string) (*RazorpayGateway, error) {
	if keyID == "" || keySecret == "" {
		return nil, errors.New("razorpay key id/secret empty")
	}
	if webhookSecret == "" {
		return nil, errors.New("razorpay webhook secret empty")
	}
	if currency == "" {
		currency = "INR"
	}
	return &RazorpayGateway{
		client:        razorpay.NewClient(keyID, keySecret),
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		currency:      currency,
	}, nil
}

func (g *RazorpayGateway) Name() string     { return "razorpay" }
func (g *RazorpayGateway) KeyID() string    { return g.keyID }
func (g *RazorpayGateway) Currency() string { return g.currency }

// The SDK calls are synchronous; ctx only guards against starting after cancellation.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if amountMinor <= 0 {
		return "", errors.New("razorpay: amount must be positive")
	}
	if currency == "" {
		currency = g.currency
	}
	data := map[string]interface{}{
		"amount":   amountMinor,
		"currency": currency,
		"receipt":  receipt,
		"notes":    notes,
	}
	order, err := g.client.Order.Create(data, nil)
	if err != nil {
		return "", fmt.Errorf("razorpay: create order: %w", err)
	}
	id, _ := order["id"].(string)
	if id == "" {
		return "", errors.New("razorpay: order id missing in response")
	}
	return id, nil
}

func (g *RazorpayGateway) SignPayment(gatewayOrderID, paymentID string) string {
	return signPayment(g.keySecret, gatewayOrderID, paymentID)
}

func (g *RazorpayGateway) VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool {
	return equalSignature(g.SignPayment(gatewayOrderID, paymentID), signature)
}

func (g *RazorpayGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return equalSignature(hmacHex(g.webhookSecret, body), signature)
}

func (g *RazorpayGateway) FetchOrderPayments(ctx context.Context, gatewayOrderID string) ([]adapter.GatewayPaymentState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := g.client.Order.Payments(gatewayOrderID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay: fetch payments: %w", err)
	}
	items, _ := resp["items"].([]interface{})
	out := make([]adapter.GatewayPaymentState, 0, len(items))
	for _, it := range items {
		p, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		st := adapter.GatewayPaymentState{}
		st.PaymentID, _ = p["id"].(string)
		st.Status, _ = p["status"].(string)
		if amount, ok := p["amount"].(float64); ok {
			st.AmountMinor = int64(amount)
		}
		st.Error, _ = p["error_description"].(string)
		out = append(out, st)
	}
	return out, nil
}

func (g *RazorpayGateway) Refund(ctx context.Context, paymentID string, amountMinor int64, notes map[string]string) (adapter.RefundResult, error) {
	if err := ctx.Err(); err != nil {
		return adapter.RefundResult{}, err
	}
	if amountMinor == 0 {
		// the refund call takes an explicit amount, so a full refund reads it back first
		payment, err := g.client.Payment.Fetch(paymentID, nil, nil)
		if err != nil {
			return adapter.RefundResult{}, fmt.Errorf("razorpay: fetch payment: %w", err)
		}
		amount, _ := payment["amount"].(float64)
		amountMinor = int64(amount)
	}
	data := map[string]interface{}{"amount": amountMinor}
	if len(notes) > 0 {
		data["notes"] = notes
	}
	resp, err := g.client.Payment.Refund(paymentID, int(amountMinor), data, nil)
	if err != nil {
		return adapter.RefundResult{}, fmt.Errorf("razorpay: refund: %w", err)
	}
	res := adapter.RefundResult{}
	res.ID, _ = resp["id"].(string)
	res.Status, _ = resp["status"].(string)
	if amount, ok := resp["amount"].(float64); ok {
		res.AmountMinor = int64(amount)
	}
	if created, ok := resp["created_at"].(float64); ok {
		res.RefundTime = time.Unix(int64(created), 0)
	}
	return res, nil
}

func (g *RazorpayGateway) RefundedAmount(ctx context.Context, paymentID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	payment, err := g.client.Payment.Fetch(paymentID, nil, nil)
	if err != nil {
		return 0, fmt.Errorf("razorpay: fetch payment: %w", err)
	}
	refunded, _ := payment["amount_refunded"].(float64)
	return int64(refunded), nil
}
