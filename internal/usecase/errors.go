package usecase

import (
	"errors"
	"fmt"

	"installment-engine/internal/domain"
)

var clientErrors = []error{
	domain.ErrOrderNotFound,
	domain.ErrUnauthorized,
	domain.ErrAlreadyCompleted,
	domain.ErrInvalidStatus,
	domain.ErrAlreadyPaidToday,
	domain.ErrNoPendingInstallment,
	domain.ErrSignatureVerificationFailed,
	domain.ErrInsufficientBalance,
	domain.ErrPaymentAlreadyProcessed,
	domain.ErrCaptureMismatch,
	domain.ErrInvalidArgument,
	domain.ErrInvalidInstallmentDays,
	domain.ErrInstallmentBelowMinimum,
	domain.ErrCouponNotFound,
	domain.ErrCouponNotApplicable,
	domain.ErrPaymentNotFound,
	domain.ErrDepositNotFound,
}

// isClientError reports whether err is one of the expected business rejections.
func isClientError(err error) bool {
	for _, ce := range clientErrors {
		if errors.Is(err, ce) {
			return true
		}
	}
	return false
}

// txError passes business rejections through and wraps everything else as a transaction failure.
func txError(err error) error {
	if err == nil || isClientError(err) || errors.Is(err, domain.ErrTransactionFailed) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrTransactionFailed, err)
}

// reasonLabel turns an error into a bounded metrics label.
func reasonLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrAlreadyCompleted):
		return "already_completed"
	case errors.Is(err, domain.ErrInvalidStatus):
		return "invalid_status"
	case errors.Is(err, domain.ErrAlreadyPaidToday):
		return "already_paid_today"
	case errors.Is(err, domain.ErrNoPendingInstallment):
		return "no_pending_installment"
	case errors.Is(err, domain.ErrSignatureVerificationFailed):
		return "signature_failed"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrPaymentAlreadyProcessed):
		return "already_processed"
	case errors.Is(err, domain.ErrCaptureMismatch):
		return "capture_mismatch"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "error"
	}
}
