package apiv1

import (
	"errors"
	"net/http"

	"installment-engine/internal/domain"
	"installment-engine/internal/infra/api"
	"installment-engine/internal/infra/logging"
)

type errorMapping struct {
	err    error
	status int
	code   string
	msg    string // overrides the sentinel text when set
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{err: domain.ErrOrderNotFound, status: http.StatusNotFound, code: "order_not_found"},
	{err: domain.ErrPaymentNotFound, status: http.StatusNotFound, code: "payment_not_found"},
	{err: domain.ErrDepositNotFound, status: http.StatusNotFound, code: "deposit_not_found"},
	{err: domain.ErrCouponNotFound, status: http.StatusUnprocessableEntity, code: "coupon_not_found"},
	{err: domain.ErrNotFound, status: http.StatusNotFound, code: "not_found"},
	{err: domain.ErrUnauthorized, status: http.StatusForbidden, code: "forbidden"},
	{err: domain.ErrAlreadyPaidToday, status: http.StatusConflict, code: "already_paid_today"},
	{err: domain.ErrAlreadyCompleted, status: http.StatusConflict, code: "already_completed"},
	{err: domain.ErrInvalidStatus, status: http.StatusConflict, code: "invalid_status"},
	{err: domain.ErrNoPendingInstallment, status: http.StatusConflict, code: "no_pending_installment"},
	{err: domain.ErrPaymentAlreadyProcessed, status: http.StatusConflict, code: "payment_already_processed"},
	{err: domain.ErrSignatureVerificationFailed, status: http.StatusBadRequest, code: "verification_failed", msg: "payment verification failed"},
	{err: domain.ErrCaptureMismatch, status: http.StatusBadRequest, code: "verification_failed", msg: "payment verification failed"},
	{err: domain.ErrInvalidInstallmentDays, status: http.StatusUnprocessableEntity, code: "invalid_installment_days"},
	{err: domain.ErrInstallmentBelowMinimum, status: http.StatusUnprocessableEntity, code: "installment_below_minimum"},
	{err: domain.ErrCouponNotApplicable, status: http.StatusUnprocessableEntity, code: "coupon_not_applicable"},
	{err: domain.ErrInvalidArgument, status: http.StatusBadRequest, code: "invalid_argument"},
	{err: domain.ErrRateLimited, status: http.StatusTooManyRequests, code: "rate_limited"},
}

// writeError maps a use case error to a status and a safe message. Client errors echo the
// sentinel text only, never the wrapped detail; server faults hide everything outside dev.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var short *domain.InsufficientBalanceError
	if errors.As(err, &short) {
		api.WriteJSON(w, http.StatusPaymentRequired, api.ErrorBody{
			Error:     "insufficient_balance",
			Message:   domain.ErrInsufficientBalance.Error(),
			Shortfall: short.Shortfall(),
		})
		return
	}
	if errors.Is(err, domain.ErrInsufficientBalance) {
		api.WriteError(w, http.StatusPaymentRequired, "insufficient_balance", domain.ErrInsufficientBalance.Error())
		return
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			msg := m.msg
			if msg == "" {
				msg = m.err.Error()
			}
			api.WriteError(w, m.status, m.code, msg)
			return
		}
	}

	l := logging.With(r.Context(), s.log)
	l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	msg := "internal error"
	if s.opts.Dev {
		msg = err.Error()
	}
	api.WriteError(w, http.StatusInternalServerError, "internal_error", msg)
}
