package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrTransactionFailed  = errors.New("transaction failed")

	// Settlement errors, client facing
	ErrOrderNotFound               = errors.New("order not found")
	ErrUnauthorized                = errors.New("caller does not own this order")
	ErrAlreadyCompleted            = errors.New("order already completed")
	ErrInvalidStatus               = errors.New("order status does not allow this operation")
	ErrAlreadyPaidToday            = errors.New("an installment for this order was already paid today")
	ErrNoPendingInstallment        = errors.New("no pending installment to settle")
	ErrSignatureVerificationFailed = errors.New("payment signature verification failed")
	ErrInsufficientBalance         = errors.New("insufficient wallet balance")
	ErrPaymentAlreadyProcessed     = errors.New("payment already processed")
	ErrCaptureMismatch             = errors.New("gateway payment does not match the pending installment")
	ErrRateLimited                 = errors.New("too many requests")

	// Schedule and coupon errors
	ErrInvalidInstallmentDays  = errors.New("installment days outside allowed range")
	ErrInstallmentBelowMinimum = errors.New("daily installment below minimum amount")
	ErrCouponNotFound          = errors.New("coupon not found")
	ErrCouponNotApplicable     = errors.New("coupon not applicable to this order")

	ErrPaymentNotFound = errors.New("payment not found")
	ErrDepositNotFound = errors.New("deposit not found")
)

// InsufficientBalanceError carries how much the wallet is short by.
type InsufficientBalanceError struct {
	Required  int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient wallet balance: need %d more", e.Shortfall())
}

func (e *InsufficientBalanceError) Shortfall() int64 {
	if e.Available >= e.Required {
		return 0
	}
	return e.Required - e.Available
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }
