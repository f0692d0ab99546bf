package apiv1

import (
	"context"
	"io"
	"net/http"
	"time"

	"installment-engine/internal/domain/model"
	"installment-engine/internal/infra/api"
	"installment-engine/internal/infra/logging"
)

const (
	HeaderRazorpaySignature = "X-Razorpay-Signature"

	maxWebhookBytes = 1 << 20
	webhookTimeout  = 20 * time.Second
)

type WebhookResponse struct {
	Status string `json:"status"`
}

// POST /webhooks/razorpay always answers 200 so the gateway never retries a permanent
// failure; the outcome is carried in the body and in the stored event.
func (s *Server) handleRazorpayWebhook(w http.ResponseWriter, r *http.Request) {
	l := logging.With(r.Context(), s.log)
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		l.Warn().Err(err).Msg("webhook body unreadable")
		api.WriteJSON(w, http.StatusOK, WebhookResponse{Status: string(model.WebhookStatusIgnored)})
		return
	}

	// the gateway may hang up early; settlement must still run to completion
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), webhookTimeout)
	defer cancel()

	res := s.webhooks.HandleWebhook(ctx, body, r.Header.Get(HeaderRazorpaySignature))
	status := model.WebhookStatusIgnored
	if res != nil {
		status = res.Status
	}
	api.WriteJSON(w, http.StatusOK, WebhookResponse{Status: string(status)})
}
