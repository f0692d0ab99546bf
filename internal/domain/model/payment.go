package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"    // gateway order created, awaiting capture
	PaymentStatusProcessing PaymentStatus = "PROCESSING" // settlement in flight
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"  // money taken and installment settled
	PaymentStatusFailed     PaymentStatus = "FAILED"     // gateway reported failure or verification failed
	PaymentStatusRefunding  PaymentStatus = "REFUNDING"  // provider refund requested, not yet confirmed
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"   // admin refund after completion
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"  // order cancelled before capture
)

type PaymentMethod string

const (
	PaymentMethodWallet  PaymentMethod = "wallet"
	PaymentMethodGateway PaymentMethod = "gateway"
)

// PaymentRecord is the durable trace of one attempt to settle one installment.
type PaymentRecord struct {
	ID                string
	OrderID           string
	BuyerID           string
	InstallmentNumber int
	Amount            int64
	Method            PaymentMethod
	Status            PaymentStatus
	IdempotencyKey    string
	GatewayOrderID    string // provider order id, gateway only; never changes once set
	ExternalPaymentID string // provider payment id; set on an open attempt when a capture is held
	SignatureVerified bool
	FailureReason     string
	RefundID          string // provider refund id

	// commission annotation, append-only after completion
	CommissionCalculated bool
	CommissionAmount     int64
	CommissionPercent    float64
	CommissionCredited   bool
	CommissionRef        string // ledger entry id

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Terminal reports whether the record can no longer change except by refund.
func (p *PaymentRecord) Terminal() bool {
	switch p.Status {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunding, PaymentStatusRefunded, PaymentStatusCancelled:
		return true
	}
	return false
}

// Open reports whether the attempt may still be completed or failed.
func (p *PaymentRecord) Open() bool {
	return p.Status == PaymentStatusPending || p.Status == PaymentStatusProcessing
}

// HoldsCapture reports whether a verified capture is waiting on this attempt for the next
// calendar day.
func (p *PaymentRecord) HoldsCapture() bool {
	return p.Open() && p.ExternalPaymentID != ""
}

// SupersededReason is the failure reason of an attempt replaced before its gateway order was paid.
func SupersededReason(by string) string { return "superseded by " + by }

// IdempotencyKey derives the key for settling installment seq of an order. Retries of the
// same logical attempt produce the same key.
func IdempotencyKey(orderID, buyerID string, seq int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", orderID, buyerID, seq)))
	return "ipay_" + hex.EncodeToString(sum[:])[:32]
}

// SettleSource names the entry point that asked for a settlement.
type SettleSource string

const (
	SourceClient     SettleSource = "client"
	SourceWebhook    SettleSource = "webhook"
	SourceReconciler SettleSource = "reconciler"
	SourceCreation   SettleSource = "creation"
)

// SettleRequest is a request to settle the next installment of an order.
type SettleRequest struct {
	OrderID string
	BuyerID string
	Method  PaymentMethod
	Gateway *GatewayCapture // required when Method is gateway
	Source  SettleSource
}

// GatewayCapture is the evidence the gateway hands back after a successful capture.
type GatewayCapture struct {
	GatewayOrderID string
	PaymentID      string
	Signature      string
	AmountMinor    int64 // 0 when unknown
}

// UnmatchedCapture is a verified gateway capture that no open attempt of the order could take.
// The money goes back to the buyer's wallet.
type UnmatchedCapture struct {
	OrderID        string
	BuyerID        string
	GatewayOrderID string
	PaymentID      string
	AmountMinor    int64 // 0 takes the amount of the attempt opened for the gateway order
	Reason         string
}

// SettleResult is returned from a successful settlement.
type SettleResult struct {
	Payment           *PaymentRecord
	Order             *Order
	Installment       Installment
	RemainingAmount   int64
	OrderCompleted    bool
	CompletionReason  CompletionReason
	RewardApplied     bool
	FreedInstallments []int
	Commission        CommissionSplit
}

// Checkout is what the client needs to open the gateway's payment sheet.
type Checkout struct {
	GatewayOrderID string
	Amount         int64
	AmountMinor    int64
	Currency       string
	KeyID          string
	OrderIDs       []string
	Installments   map[string]int // order id -> installment number
}
