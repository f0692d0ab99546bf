package model

import "time"

type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "PENDING"
	DepositStatusCompleted DepositStatus = "COMPLETED"
	DepositStatusFailed    DepositStatus = "FAILED"
)

// WalletDeposit is a gateway-funded wallet top-up.
type WalletDeposit struct {
	ID                string
	BuyerID           string
	Amount            int64
	Status            DepositStatus
	GatewayOrderID    string
	ExternalPaymentID string
	FailureReason     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

// Wallet is the balance view the wallet collaborator exposes.
type Wallet struct {
	AccountID string
	Balance   int64
	Locked    int64
	UpdatedAt time.Time
}

// WalletEntryKind tags rows in the wallet transaction trail.
type WalletEntryKind string

const (
	WalletDebit      WalletEntryKind = "debit"
	WalletCredit     WalletEntryKind = "credit"
	WalletCommission WalletEntryKind = "commission"
	WalletRefund     WalletEntryKind = "refund"
	WalletDeposited  WalletEntryKind = "deposit"
	// WalletCaptureCredit returns a gateway capture that no installment could take.
	WalletCaptureCredit WalletEntryKind = "capture_credit"
)

// WalletEntry is one movement on a wallet.
type WalletEntry struct {
	ID        string
	AccountID string
	Kind      WalletEntryKind
	Amount    int64 // available portion, negative for debits
	Locked    int64
	Reason    string
	Reference string
	CreatedAt time.Time
}
