package apiv1

import (
	"net/http"
	"strings"

	"installment-engine/internal/domain"
	"installment-engine/internal/infra/api"

	"github.com/go-chi/chi/v5"
)

// POST /api/v1/wallet/deposits
func (s *Server) initiateDeposit(w http.ResponseWriter, r *http.Request) {
	var body depositRequest
	if err := decode(w, r, &body); err != nil {
		s.badBody(w, err)
		return
	}
	dep, co, err := s.deposits.InitiateDeposit(r.Context(), caller(r).Subject, body.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, DepositResponse{Deposit: toDeposit(dep), Checkout: toCheckout(co)})
}

// POST /api/v1/wallet/deposits/verify
func (s *Server) verifyDeposit(w http.ResponseWriter, r *http.Request) {
	var body gatewayProof
	if err := decode(w, r, &body); err != nil {
		s.badBody(w, err)
		return
	}
	if body.RazorpayOrderID == "" || body.RazorpayPaymentID == "" {
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	dep, err := s.deposits.ConfirmDeposit(r.Context(), caller(r).Subject, body.capture())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, DepositResponse{Deposit: toDeposit(dep)})
}

// POST /api/v1/admin/payments/{id}/refund
func (s *Server) refundPayment(w http.ResponseWriter, r *http.Request) {
	var body refundRequest
	if err := decode(w, r, &body); err != nil {
		s.badBody(w, err)
		return
	}
	rec, err := s.payments.RefundPayment(r.Context(), caller(r).Subject, chi.URLParam(r, "id"), strings.TrimSpace(body.Reason))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, toPayment(rec))
}
