package model

import (
	"time"

	"github.com/google/uuid"

	"installment-engine/internal/domain"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusActive    OrderStatus = "ACTIVE"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// FundingSource says how installment #1 is paid at creation.
type FundingSource string

const (
	FundingWallet  FundingSource = "wallet"
	FundingGateway FundingSource = "gateway"
)

type CompletionReason string

const (
	CompletionPaidInFull CompletionReason = "paid_in_full"
	CompletionFreeDays   CompletionReason = "free_days"
)

// Order is one purchase being paid off in daily installments.
type Order struct {
	ID                string
	BuyerID           string
	ProductRef        string
	OriginalPrice     int64 // before any coupon
	TotalPrice        int64 // after coupon
	TotalInstallments int
	InstallmentAmount int64 // base daily amount
	Installments      []Installment

	PaidInstallments int
	PaidAmount       int64
	RemainingAmount  int64
	Status           OrderStatus
	FundingSource    FundingSource
	LastPaymentDate  *time.Time

	ReferrerID        string
	CommissionPercent float64

	CouponCode                string
	CouponType                CouponType
	CouponDiscount            int64
	MilestonePaymentsRequired int
	MilestoneRewardDays       int
	MilestoneRewardApplied    bool

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

// NewOrder creates a PENDING order over an already generated schedule.
func NewOrder(buyerID, productRef string, originalPrice int64, schedule []Installment, funding FundingSource, now time.Time) (*Order, error) {
	if buyerID == "" || originalPrice <= 0 || len(schedule) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	if funding != FundingWallet && funding != FundingGateway {
		return nil, domain.ErrInvalidArgument
	}
	total := SumPayable(schedule)
	return &Order{
		ID:                uuid.NewString(),
		BuyerID:           buyerID,
		ProductRef:        productRef,
		OriginalPrice:     originalPrice,
		TotalPrice:        total,
		TotalInstallments: len(schedule),
		InstallmentAmount: schedule[0].Amount,
		Installments:      schedule,
		RemainingAmount:   total,
		Status:            OrderStatusPending,
		FundingSource:     funding,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// NextPayable returns the lowest-numbered installment that still requires money.
func (o *Order) NextPayable() (*Installment, bool) {
	for i := range o.Installments {
		if o.Installments[i].Payable() {
			return &o.Installments[i], true
		}
	}
	return nil, false
}

// PaidOn reports whether the order already had a settlement on the calendar day of t in loc.
func (o *Order) PaidOn(t time.Time, loc *time.Location) bool {
	if o.LastPaymentDate == nil {
		return false
	}
	if loc == nil {
		loc = time.UTC
	}
	ly, lm, ld := o.LastPaymentDate.In(loc).Date()
	ty, tm, td := t.In(loc).Date()
	return ly == ty && lm == tm && ld == td
}

// CheckSettleable runs the settlement preconditions that only depend on the aggregate
// and returns the installment that would be settled next.
func (o *Order) CheckSettleable(now time.Time, loc *time.Location) (*Installment, error) {
	switch o.Status {
	case OrderStatusActive, OrderStatusPending:
	case OrderStatusCompleted:
		return nil, domain.ErrAlreadyCompleted
	default:
		return nil, domain.ErrInvalidStatus
	}
	next, ok := o.NextPayable()
	if o.Status == OrderStatusPending && (!ok || next.Number != 1 || o.PaidInstallments > 0) {
		return nil, domain.ErrInvalidStatus
	}
	if o.PaidOn(now, loc) {
		return nil, domain.ErrAlreadyPaidToday
	}
	if !ok {
		return nil, domain.ErrNoPendingInstallment
	}
	return next, nil
}

// SettlementOutcome describes what ApplySettlement changed.
type SettlementOutcome struct {
	Installment       Installment
	Activated         bool
	Completed         bool
	CompletionReason  CompletionReason
	RewardApplied     bool
	FreedInstallments []int
}

// ApplySettlement records money for installment number. Installments settle strictly in
// order, so number must be the next payable one.
func (o *Order) ApplySettlement(number int, amount int64, paymentID string, at time.Time) (*SettlementOutcome, error) {
	next, ok := o.NextPayable()
	if !ok {
		return nil, domain.ErrNoPendingInstallment
	}
	if next.Number != number || next.Amount != amount {
		return nil, domain.ErrInvalidArgument
	}

	paidAt := at
	pid := paymentID
	next.Status = InstallmentStatusPaid
	next.PaidAt = &paidAt
	next.PaymentID = &pid

	out := &SettlementOutcome{Installment: *next}
	o.PaidInstallments++
	o.PaidAmount += amount
	if o.Status == OrderStatusPending {
		o.Status = OrderStatusActive
		out.Activated = true
	}
	o.LastPaymentDate = &paidAt

	if o.PaidAmount >= o.TotalPrice {
		o.complete(at)
		out.Completed = true
		out.CompletionReason = CompletionPaidInFull
	}

	if freed := o.applyMilestoneReward(); len(freed) > 0 {
		out.RewardApplied = true
		out.FreedInstallments = freed
	}

	if o.Status != OrderStatusCompleted {
		if _, more := o.NextPayable(); !more {
			o.complete(at)
			out.Completed = true
			out.CompletionReason = CompletionFreeDays
		}
	}

	o.RemainingAmount = o.TotalPrice - o.PaidAmount
	if o.RemainingAmount < 0 {
		o.RemainingAmount = 0
	}
	o.UpdatedAt = at
	return out, nil
}

// applyMilestoneReward converts the earliest pending installments to FREE once enough
// installments are paid. Freed days count as paid installments but carry no money.
func (o *Order) applyMilestoneReward() []int {
	if o.CouponType != CouponTypeMilestoneReward || o.MilestoneRewardApplied {
		return nil
	}
	if o.MilestonePaymentsRequired <= 0 || o.PaidInstallments < o.MilestonePaymentsRequired {
		return nil
	}
	var freed []int
	for i := range o.Installments {
		if len(freed) >= o.MilestoneRewardDays {
			break
		}
		if o.Installments[i].Status != InstallmentStatusPending {
			continue
		}
		o.Installments[i].Status = InstallmentStatusFree
		o.Installments[i].Amount = 0
		freed = append(freed, o.Installments[i].Number)
	}
	o.PaidInstallments += len(freed)
	o.MilestoneRewardApplied = true
	return freed
}

func (o *Order) complete(at time.Time) {
	o.Status = OrderStatusCompleted
	t := at
	o.CompletedAt = &t
}

// Cancel ends an order that has not completed.
func (o *Order) Cancel(at time.Time) error {
	switch o.Status {
	case OrderStatusPending, OrderStatusActive:
		o.Status = OrderStatusCancelled
		t := at
		o.CancelledAt = &t
		o.UpdatedAt = at
		return nil
	case OrderStatusCompleted:
		return domain.ErrAlreadyCompleted
	default:
		return domain.ErrInvalidStatus
	}
}

// PendingCount returns how many installments still require money.
func (o *Order) PendingCount() int {
	n := 0
	for _, in := range o.Installments {
		if in.Payable() {
			n++
		}
	}
	return n
}
