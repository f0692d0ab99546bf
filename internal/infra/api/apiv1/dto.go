package apiv1

import (
	"time"

	"installment-engine/internal/domain/model"
	"installment-engine/internal/usecase"
)

// ----- requests -----

type createOrderRequest struct {
	ProductRef    string `json:"product_ref"`
	Price         int64  `json:"price"`
	Days          int    `json:"days"`
	CouponCode    string `json:"coupon_code,omitempty"`
	ReferrerID    string `json:"referrer_id,omitempty"`
	FundingSource string `json:"funding_source"`
}

// gatewayProof is what the gateway's checkout hands back to the client.
type gatewayProof struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

func (g gatewayProof) empty() bool {
	return g.RazorpayOrderID == "" && g.RazorpayPaymentID == "" && g.RazorpaySignature == ""
}

func (g gatewayProof) capture() model.GatewayCapture {
	return model.GatewayCapture{
		GatewayOrderID: g.RazorpayOrderID,
		PaymentID:      g.RazorpayPaymentID,
		Signature:      g.RazorpaySignature,
	}
}

type payRequest struct {
	Method string `json:"method,omitempty"`
	gatewayProof
}

type combinedCheckoutRequest struct {
	OrderIDs []string `json:"order_ids"`
}

type depositRequest struct {
	Amount int64 `json:"amount"`
}

type refundRequest struct {
	Reason string `json:"reason"`
}

// ----- responses -----

type Installment struct {
	Number    int        `json:"number"`
	DueDate   time.Time  `json:"due_date"`
	Amount    int64      `json:"amount"`
	Status    string     `json:"status"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	PaymentID string     `json:"payment_id,omitempty"`
}

type Order struct {
	ID                string        `json:"id"`
	BuyerID           string        `json:"buyer_id"`
	ProductRef        string        `json:"product_ref,omitempty"`
	Status            string        `json:"status"`
	FundingSource     string        `json:"funding_source"`
	OriginalPrice     int64         `json:"original_price"`
	TotalPrice        int64         `json:"total_price"`
	InstallmentAmount int64         `json:"installment_amount"`
	TotalInstallments int           `json:"total_installments"`
	PaidInstallments  int           `json:"paid_installments"`
	PaidAmount        int64         `json:"paid_amount"`
	RemainingAmount   int64         `json:"remaining_amount"`
	CouponCode        string        `json:"coupon_code,omitempty"`
	CouponType        string        `json:"coupon_type,omitempty"`
	CouponDiscount    int64         `json:"coupon_discount,omitempty"`
	ReferrerID        string        `json:"referrer_id,omitempty"`
	LastPaymentDate   *time.Time    `json:"last_payment_date,omitempty"`
	Installments      []Installment `json:"installments"`
	CreatedAt         time.Time     `json:"created_at"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	CancelledAt       *time.Time    `json:"cancelled_at,omitempty"`
}

type Payment struct {
	ID                string     `json:"id"`
	OrderID           string     `json:"order_id"`
	InstallmentNumber int        `json:"installment_number"`
	Amount            int64      `json:"amount"`
	Method            string     `json:"method"`
	Status            string     `json:"status"`
	GatewayOrderID    string     `json:"gateway_order_id,omitempty"`
	ExternalPaymentID string     `json:"external_payment_id,omitempty"`
	FailureReason     string     `json:"failure_reason,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

type Checkout struct {
	GatewayOrderID string         `json:"gateway_order_id"`
	KeyID          string         `json:"key_id"`
	Amount         int64          `json:"amount"`
	AmountMinor    int64          `json:"amount_minor"`
	Currency       string         `json:"currency"`
	OrderIDs       []string       `json:"order_ids"`
	Installments   map[string]int `json:"installments"`
}

type Settlement struct {
	Payment           Payment `json:"payment"`
	Order             Order   `json:"order"`
	InstallmentNumber int     `json:"installment_number"`
	RemainingAmount   int64   `json:"remaining_amount"`
	OrderCompleted    bool    `json:"order_completed"`
	CompletionReason  string  `json:"completion_reason,omitempty"`
	RewardApplied     bool    `json:"reward_applied"`
	FreedInstallments []int   `json:"freed_installments,omitempty"`
	Commission        int64   `json:"commission,omitempty"`
}

type CreateOrderResponse struct {
	Order      Order       `json:"order"`
	Settlement *Settlement `json:"settlement,omitempty"`
	Checkout   *Checkout   `json:"checkout,omitempty"`
}

type Deposit struct {
	ID                string     `json:"id"`
	Amount            int64      `json:"amount"`
	Status            string     `json:"status"`
	GatewayOrderID    string     `json:"gateway_order_id"`
	ExternalPaymentID string     `json:"external_payment_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

type DepositResponse struct {
	Deposit  Deposit   `json:"deposit"`
	Checkout *Checkout `json:"checkout,omitempty"`
}

// ----- mapping -----

func toOrder(o *model.Order) Order {
	out := Order{
		ID:                o.ID,
		BuyerID:           o.BuyerID,
		ProductRef:        o.ProductRef,
		Status:            string(o.Status),
		FundingSource:     string(o.FundingSource),
		OriginalPrice:     o.OriginalPrice,
		TotalPrice:        o.TotalPrice,
		InstallmentAmount: o.InstallmentAmount,
		TotalInstallments: o.TotalInstallments,
		PaidInstallments:  o.PaidInstallments,
		PaidAmount:        o.PaidAmount,
		RemainingAmount:   o.RemainingAmount,
		CouponCode:        o.CouponCode,
		CouponType:        string(o.CouponType),
		CouponDiscount:    o.CouponDiscount,
		ReferrerID:        o.ReferrerID,
		LastPaymentDate:   o.LastPaymentDate,
		Installments:      make([]Installment, 0, len(o.Installments)),
		CreatedAt:         o.CreatedAt,
		CompletedAt:       o.CompletedAt,
		CancelledAt:       o.CancelledAt,
	}
	for _, in := range o.Installments {
		item := Installment{
			Number:  in.Number,
			DueDate: in.DueDate,
			Amount:  in.Amount,
			Status:  string(in.Status),
			PaidAt:  in.PaidAt,
		}
		if in.PaymentID != nil {
			item.PaymentID = *in.PaymentID
		}
		out.Installments = append(out.Installments, item)
	}
	return out
}

func toPayment(p *model.PaymentRecord) Payment {
	return Payment{
		ID:                p.ID,
		OrderID:           p.OrderID,
		InstallmentNumber: p.InstallmentNumber,
		Amount:            p.Amount,
		Method:            string(p.Method),
		Status:            string(p.Status),
		GatewayOrderID:    p.GatewayOrderID,
		ExternalPaymentID: p.ExternalPaymentID,
		FailureReason:     p.FailureReason,
		CompletedAt:       p.CompletedAt,
	}
}

func toCheckout(c *model.Checkout) *Checkout {
	if c == nil {
		return nil
	}
	ids := c.OrderIDs
	if ids == nil {
		ids = []string{}
	}
	return &Checkout{
		GatewayOrderID: c.GatewayOrderID,
		KeyID:          c.KeyID,
		Amount:         c.Amount,
		AmountMinor:    c.AmountMinor,
		Currency:       c.Currency,
		OrderIDs:       ids,
		Installments:   c.Installments,
	}
}

func toSettlement(r *model.SettleResult) *Settlement {
	if r == nil {
		return nil
	}
	out := &Settlement{
		InstallmentNumber: r.Installment.Number,
		RemainingAmount:   r.RemainingAmount,
		OrderCompleted:    r.OrderCompleted,
		CompletionReason:  string(r.CompletionReason),
		RewardApplied:     r.RewardApplied,
		FreedInstallments: r.FreedInstallments,
		Commission:        r.Commission.Total,
	}
	if r.Payment != nil {
		out.Payment = toPayment(r.Payment)
	}
	if r.Order != nil {
		out.Order = toOrder(r.Order)
	}
	return out
}

func toCreateOrderResponse(res *usecase.CreateOrderResult) CreateOrderResponse {
	return CreateOrderResponse{
		Order:      toOrder(res.Order),
		Settlement: toSettlement(res.Settlement),
		Checkout:   toCheckout(res.Checkout),
	}
}

func toDeposit(d *model.WalletDeposit) Deposit {
	return Deposit{
		ID:                d.ID,
		Amount:            d.Amount,
		Status:            string(d.Status),
		GatewayOrderID:    d.GatewayOrderID,
		ExternalPaymentID: d.ExternalPaymentID,
		CreatedAt:         d.CreatedAt,
		CompletedAt:       d.CompletedAt,
	}
}
