//go:build !integration

package usecase

import (
	"context"
	"testing"

	"installment-engine/internal/domain"
	"installment-engine/internal/domain/model"
)

func TestDepositUseCase(t *testing.T) {
	ctx := context.Background()

	t.Run("should credit the wallet once when the buyer confirms", func(t *testing.T) {
		// --- Arrange ---
		h := newHarness(t)
		dep, co, err := h.depositUC.InitiateDeposit(ctx, "buyer-1", 500)
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}
		c := h.capture(co.GatewayOrderID, "pay_d1")

		// --- Act ---
		done, err := h.depositUC.ConfirmDeposit(ctx, "buyer-1", *c)
		_, again := h.depositUC.ConfirmDeposit(ctx, "buyer-1", *c)

		// --- Assert ---
		if err != nil {
			t.Fatalf("confirm: %v", err)
		}
		if done.ID != dep.ID || done.Status != model.DepositStatusCompleted {
			t.Errorf("unexpected deposit %+v", done)
		}
		assertErrIs(t, again, domain.ErrPaymentAlreadyProcessed)
		if got := h.balance("buyer-1").Balance; got != 500 {
			t.Errorf("expected balance 500, got %d", got)
		}
		notes := h.gateway.notesFor(co.GatewayOrderID)
		if notes[model.NotePaymentType] != string(model.KindWalletDeposit) || notes[model.NoteDepositID] != dep.ID {
			t.Errorf("unexpected notes %v", notes)
		}
	})

	t.Run("should reject confirmations from someone else or with a bad signature", func(t *testing.T) {
		// --- Arrange ---
		h := newHarness(t)
		_, co, _ := h.depositUC.InitiateDeposit(ctx, "buyer-1", 500)
		c := h.capture(co.GatewayOrderID, "pay_d1")
		forged := *c
		forged.Signature = "forged"

		// --- Act ---
		_, otherErr := h.depositUC.ConfirmDeposit(ctx, "buyer-2", *c)
		_, forgedErr := h.depositUC.ConfirmDeposit(ctx, "buyer-1", forged)

		// --- Assert ---
		assertErrIs(t, otherErr, domain.ErrUnauthorized)
		assertErrIs(t, forgedErr, domain.ErrSignatureVerificationFailed)
		if got := h.balance("buyer-1").Balance; got != 0 {
			t.Errorf("expected no credit, got %d", got)
		}
	})

	t.Run("should complete from the webhook and tolerate the client confirming later", func(t *testing.T) {
		// --- Arrange ---
		h := newHarness(t)
		_, co, _ := h.depositUC.InitiateDeposit(ctx, "buyer-1", 500)
		body := h.webhookBody(t, model.EventPaymentCaptured, co.GatewayOrderID, "pay_d1")

		// --- Act ---
		out := h.webhookUC.HandleWebhook(ctx, body, mockWebhookSignature)
		_, clientErr := h.depositUC.ConfirmDeposit(ctx, "buyer-1", *h.capture(co.GatewayOrderID, "pay_d1"))
		paid := h.webhookUC.HandleWebhook(ctx, h.webhookBody(t, model.EventOrderPaid, co.GatewayOrderID, "pay_d1"), mockWebhookSignature)

		// --- Assert ---
		if out.Status != model.WebhookStatusProcessed || out.Kind != model.KindWalletDeposit {
			t.Fatalf("unexpected webhook result %+v", out)
		}
		assertErrIs(t, clientErr, domain.ErrPaymentAlreadyProcessed)
		if paid.Status != model.WebhookStatusProcessed {
			t.Errorf("expected order.paid processed as already settled, got %+v", paid)
		}
		if got := h.balance("buyer-1").Balance; got != 500 {
			t.Errorf("expected a single credit of 500, got %d", got)
		}
	})

	t.Run("should fail the webhook when the captured amount differs", func(t *testing.T) {
		// --- Arrange ---
		h := newHarness(t)
		dep, co, _ := h.depositUC.InitiateDeposit(ctx, "buyer-1", 500)
		h.gateway.amounts[co.GatewayOrderID] = 100

		// --- Act ---
		out := h.webhookUC.HandleWebhook(ctx, h.webhookBody(t, model.EventPaymentCaptured, co.GatewayOrderID, "pay_d1"), mockWebhookSignature)

		// --- Assert ---
		if out.Status != model.WebhookStatusFailed {
			t.Errorf("expected failed, got %s", out.Status)
		}
		d, _ := h.deposits.FindByID(ctx, nil, dep.ID)
		if d.Status != model.DepositStatusPending {
			t.Errorf("expected deposit still PENDING, got %s", d.Status)
		}
	})

	t.Run("should fail a pending deposit on payment.failed", func(t *testing.T) {
		// --- Arrange ---
		h := newHarness(t)
		dep, co, _ := h.depositUC.InitiateDeposit(ctx, "buyer-1", 500)

		// --- Act ---
		out := h.webhookUC.HandleWebhook(ctx, h.webhookBody(t, model.EventPaymentFailed, co.GatewayOrderID, "pay_d1"), mockWebhookSignature)

		// --- Assert ---
		if out.Status != model.WebhookStatusProcessed || out.Note != "deposit failed" {
			t.Errorf("unexpected result %+v", out)
		}
		d, _ := h.deposits.FindByID(ctx, nil, dep.ID)
		if d.Status != model.DepositStatusFailed {
			t.Errorf("expected FAILED, got %s", d.Status)
		}
	})

	t.Run("should validate the amount", func(t *testing.T) {
		// --- Arrange ---
		h := newHarness(t)

		// --- Act ---
		_, _, err := h.depositUC.InitiateDeposit(ctx, "buyer-1", 0)

		// --- Assert ---
		assertErrIs(t, err, domain.ErrInvalidArgument)
	})
}
