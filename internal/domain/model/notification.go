package model

import (
	"fmt"
	"time"
)

type NotificationKind string

const (
	NotifyInstallmentPaid NotificationKind = "installment_paid"
	NotifyOrderCompleted  NotificationKind = "order_completed"
	NotifyRewardApplied   NotificationKind = "reward_applied"
	NotifyCommission      NotificationKind = "commission_credited"
	NotifyDeposit         NotificationKind = "deposit_completed"
	NotifyRefund          NotificationKind = "payment_refunded"
	NotifyWebhookFailed   NotificationKind = "webhook_failed"
)

// Notification is a fire-and-forget message about something that already happened.
type Notification struct {
	Kind      NotificationKind
	AccountID string
	OrderID   string
	Amount    int64
	Text      string
	At        time.Time
}

func (n Notification) String() string {
	if n.Text != "" {
		return n.Text
	}
	return fmt.Sprintf("[%s] account=%s order=%s amount=%d", n.Kind, n.AccountID, n.OrderID, n.Amount)
}
