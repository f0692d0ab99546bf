//go:build !integration

package payment

import (
	"context"
	"testing"
)

func TestSandboxGateway(t *testing.T) {
	ctx := context.Background()

	t.Run("should round-trip checkout signatures", func(t *testing.T) {
		// --- Arrange ---
		g := NewSandboxGateway("key-secret", "hook-secret", "")
		orderID, err := g.CreateOrder(ctx, 10000, "INR", "r1", map[string]string{"order_id": "o-1"})
		if err != nil {
			t.Fatalf("create order: %v", err)
		}

		// --- Act ---
		payID, sig, err := g.Capture(orderID)

		// --- Assert ---
		if err != nil {
			t.Fatalf("capture: %v", err)
		}
		if !g.VerifyPaymentSignature(orderID, payID, sig) {
			t.Error("expected the capture signature to verify")
		}
		if g.VerifyPaymentSignature(orderID, "pay_other", sig) {
			t.Error("a signature must not verify for another payment")
		}
		if g.VerifyPaymentSignature(orderID, payID, "") {
			t.Error("an empty signature must not verify")
		}
		if g.Notes(orderID)["order_id"] != "o-1" {
			t.Errorf("expected notes kept, got %v", g.Notes(orderID))
		}
	})

	t.Run("should verify webhook bodies byte for byte", func(t *testing.T) {
		// --- Arrange ---
		g := NewSandboxGateway("key-secret", "hook-secret", "")
		body := []byte(`{"event":"payment.captured"}`)

		// --- Act ---
		sig := g.SignWebhook(body)

		// --- Assert ---
		if !g.VerifyWebhookSignature(body, sig) {
			t.Error("expected the webhook signature to verify")
		}
		if g.VerifyWebhookSignature([]byte(`{"event": "payment.captured"}`), sig) {
			t.Error("a re-serialized body must not verify")
		}
	})

	t.Run("should report and refund captured payments", func(t *testing.T) {
		// --- Arrange ---
		g := NewSandboxGateway("key-secret", "hook-secret", "")
		orderID, _ := g.CreateOrder(ctx, 5000, "INR", "r1", nil)
		payID, _, _ := g.Capture(orderID)

		// --- Act ---
		states, err := g.FetchOrderPayments(ctx, orderID)
		refund, refundErr := g.Refund(ctx, payID, 0, nil)
		_, again := g.Refund(ctx, payID, 0, nil)

		// --- Assert ---
		if err != nil || len(states) != 1 || !states[0].Captured() || states[0].AmountMinor != 5000 {
			t.Errorf("unexpected states %+v (%v)", states, err)
		}
		if refundErr != nil || refund.AmountMinor != 5000 {
			t.Errorf("unexpected refund %+v (%v)", refund, refundErr)
		}
		if again == nil {
			t.Error("expected a second refund to fail")
		}
	})

	t.Run("should track partial refunds per payment", func(t *testing.T) {
		// --- Arrange ---
		g := NewSandboxGateway("key-secret", "hook-secret", "")
		orderID, _ := g.CreateOrder(ctx, 5000, "INR", "r1", nil)
		payID, _, _ := g.Capture(orderID)

		// --- Act ---
		first, firstErr := g.Refund(ctx, payID, 2000, nil)
		refunded, err := g.RefundedAmount(ctx, payID)
		_, over := g.Refund(ctx, payID, 4000, nil)
		rest, restErr := g.Refund(ctx, payID, 0, nil)
		total, _ := g.RefundedAmount(ctx, payID)

		// --- Assert ---
		if firstErr != nil || first.AmountMinor != 2000 {
			t.Errorf("unexpected refund %+v (%v)", first, firstErr)
		}
		if err != nil || refunded != 2000 {
			t.Errorf("expected 2000 refunded, got %d (%v)", refunded, err)
		}
		if over == nil {
			t.Error("expected a refund above the remaining amount to fail")
		}
		if restErr != nil || rest.AmountMinor != 3000 || rest.ID == first.ID {
			t.Errorf("unexpected second refund %+v (%v)", rest, restErr)
		}
		if total != 5000 {
			t.Errorf("expected 5000 refunded in total, got %d", total)
		}
	})
}
