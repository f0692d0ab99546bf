//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"installment-engine/internal/domain"
)

var day0 = time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC)

// --- Schedule Generator Tests ---

func TestGenerateSchedule_ReduceDaysScenario(t *testing.T) {
	// --- Arrange ---
	price, days := int64(1000), 10

	// --- Act ---
	s, err := GenerateSchedule(price, days, day0, &ReduceDaysEffect{Discount: 250})

	// --- Assert ---
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s) != 10 {
		t.Fatalf("expected 10 installments, got %d", len(s))
	}
	for i := 0; i < 7; i++ {
		if s[i].Amount != 100 || s[i].Status != InstallmentStatusPending {
			t.Errorf("installment %d: expected 100/PENDING, got %d/%s", s[i].Number, s[i].Amount, s[i].Status)
		}
	}
	if s[7].Amount != 50 || s[7].Status != InstallmentStatusPending {
		t.Errorf("installment 8: expected 50/PENDING, got %d/%s", s[7].Amount, s[7].Status)
	}
	for i := 8; i < 10; i++ {
		if s[i].Amount != 0 || s[i].Status != InstallmentStatusFree {
			t.Errorf("installment %d: expected 0/FREE, got %d/%s", s[i].Number, s[i].Amount, s[i].Status)
		}
	}
	if got := SumPayable(s); got != 750 {
		t.Errorf("expected payable sum 750, got %d", got)
	}
}

func TestGenerateSchedule_DueDatesAndNumbers(t *testing.T) {
	s, err := GenerateSchedule(500, 5, day0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, in := range s {
		if in.Number != i+1 {
			t.Errorf("expected number %d, got %d", i+1, in.Number)
		}
		if want := start.AddDate(0, 0, i); !in.DueDate.Equal(want) {
			t.Errorf("installment %d: expected due %v, got %v", in.Number, want, in.DueDate)
		}
	}
}

func TestGenerateSchedule_Boundaries(t *testing.T) {
	testCases := []struct {
		name      string
		price     int64
		days      int
		discount  int64
		wantFree  int
		wantLast  int64 // amount of the last non-FREE installment
		wantError error
	}{
		{name: "even split", price: 1000, days: 10, wantLast: 100},
		{name: "uneven split absorbs excess at the end", price: 1001, days: 10, wantLast: 92},
		{name: "discount exactly one base", price: 1000, days: 10, discount: 100, wantFree: 1, wantLast: 100},
		{name: "discount just under one base", price: 1000, days: 10, discount: 99, wantLast: 1},
		{name: "discount just over one base", price: 1000, days: 10, discount: 101, wantFree: 1, wantLast: 99},
		{name: "discount leaves one installment", price: 1000, days: 10, discount: 900, wantFree: 9, wantLast: 100},
		{name: "discount leaves one unit", price: 1000, days: 10, discount: 999, wantFree: 9, wantLast: 1},
		{name: "discount equal to price", price: 1000, days: 10, discount: 1000, wantError: domain.ErrCouponNotApplicable},
		{name: "negative discount", price: 1000, days: 10, discount: -1, wantError: domain.ErrCouponNotApplicable},
		{name: "uneven with discount", price: 1001, days: 10, discount: 250, wantFree: 2, wantLast: 44},
		{name: "zero days", price: 1000, days: 0, wantError: domain.ErrInvalidArgument},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var reduce *ReduceDaysEffect
			if tc.discount != 0 {
				reduce = &ReduceDaysEffect{Discount: tc.discount}
			}

			s, err := GenerateSchedule(tc.price, tc.days, day0, reduce)

			if tc.wantError != nil {
				if !errors.Is(err, tc.wantError) {
					t.Fatalf("expected %v, got %v", tc.wantError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := SumPayable(s); got != tc.price-tc.discount {
				t.Errorf("expected payable sum %d, got %d", tc.price-tc.discount, got)
			}
			free := 0
			var last int64
			seenFree := false
			for _, in := range s {
				if in.Status == InstallmentStatusFree {
					free++
					seenFree = true
					continue
				}
				if seenFree {
					t.Fatalf("payable installment %d follows a FREE one", in.Number)
				}
				last = in.Amount
			}
			if free != tc.wantFree {
				t.Errorf("expected %d free installments, got %d", tc.wantFree, free)
			}
			if last != tc.wantLast {
				t.Errorf("expected last payable amount %d, got %d", tc.wantLast, last)
			}
		})
	}
}

func TestGenerateSchedule_SumAlwaysMatches(t *testing.T) {
	for price := int64(250); price <= 3000; price += 37 {
		for days := 5; days <= 30; days++ {
			for _, discount := range []int64{0, 1, price / 3, price / 2, price - 1} {
				var reduce *ReduceDaysEffect
				if discount > 0 {
					reduce = &ReduceDaysEffect{Discount: discount}
				}
				s, err := GenerateSchedule(price, days, day0, reduce)
				if err != nil {
					t.Fatalf("price=%d days=%d discount=%d: %v", price, days, discount, err)
				}
				if got := SumPayable(s); got != price-discount {
					t.Fatalf("price=%d days=%d discount=%d: sum %d", price, days, discount, got)
				}
			}
		}
	}
}

func TestSchedulePolicy_Validate(t *testing.T) {
	p := DefaultSchedulePolicy()
	testCases := []struct {
		name  string
		price int64
		days  int
		want  error
	}{
		{name: "short tier ok", price: 3000, days: 30},
		{name: "short tier too long", price: 3000, days: 31, want: domain.ErrInvalidInstallmentDays},
		{name: "below min days", price: 3000, days: 4, want: domain.ErrInvalidInstallmentDays},
		{name: "medium tier ok", price: 20000, days: 90},
		{name: "long tier ok", price: 60000, days: 180},
		{name: "long tier too long", price: 60000, days: 181, want: domain.ErrInvalidInstallmentDays},
		{name: "below minimum amount", price: 400, days: 10, want: domain.ErrInstallmentBelowMinimum},
		{name: "exactly minimum amount", price: 500, days: 10},
		{name: "zero price", price: 0, days: 10, want: domain.ErrInvalidArgument},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := p.Validate(tc.price, tc.days)
			if tc.want == nil && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

// --- Order Aggregate Tests ---

func newTestOrder(t *testing.T, price int64, days int) *Order {
	t.Helper()
	s, err := GenerateSchedule(price, days, day0, nil)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	o, err := NewOrder("buyer-1", "sku-1", price, s, FundingGateway, day0)
	if err != nil {
		t.Fatalf("new order: %v", err)
	}
	return o
}

func TestOrder_SettleSequence(t *testing.T) {
	o := newTestOrder(t, 500, 5)

	next, err := o.CheckSettleable(day0, time.UTC)
	if err != nil || next.Number != 1 {
		t.Fatalf("expected installment 1 settleable, got %v %v", next, err)
	}
	out, err := o.ApplySettlement(1, 100, "pay-1", day0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Activated || o.Status != OrderStatusActive {
		t.Errorf("expected order to become ACTIVE, got %s", o.Status)
	}
	if o.PaidInstallments != 1 || o.PaidAmount != 100 || o.RemainingAmount != 400 {
		t.Errorf("unexpected counters: %d/%d/%d", o.PaidInstallments, o.PaidAmount, o.RemainingAmount)
	}

	if _, err := o.CheckSettleable(day0.Add(2*time.Hour), time.UTC); !errors.Is(err, domain.ErrAlreadyPaidToday) {
		t.Errorf("expected ErrAlreadyPaidToday, got %v", err)
	}

	for i := 2; i <= 5; i++ {
		at := day0.AddDate(0, 0, i-1)
		next, err := o.CheckSettleable(at, time.UTC)
		if err != nil {
			t.Fatalf("day %d: %v", i, err)
		}
		if next.Number != i {
			t.Fatalf("expected installment %d next, got %d", i, next.Number)
		}
		if _, err := o.ApplySettlement(i, 100, "pay", at); err != nil {
			t.Fatalf("day %d: %v", i, err)
		}
	}
	if o.Status != OrderStatusCompleted || o.RemainingAmount != 0 || o.CompletedAt == nil {
		t.Errorf("expected COMPLETED with nothing remaining, got %s/%d", o.Status, o.RemainingAmount)
	}
	if _, err := o.CheckSettleable(day0.AddDate(0, 0, 10), time.UTC); !errors.Is(err, domain.ErrAlreadyCompleted) {
		t.Errorf("expected ErrAlreadyCompleted, got %v", err)
	}
}

func TestOrder_PaidTodayUsesLocation(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skip("tzdata not available")
	}
	o := newTestOrder(t, 500, 5)
	// 20:00 UTC is 01:30 next day in IST.
	first := time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC) // 22:30 IST
	if _, err := o.ApplySettlement(1, 100, "p1", first); err != nil {
		t.Fatal(err)
	}
	second := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	if !o.PaidOn(second, time.UTC) {
		t.Error("expected same UTC day")
	}
	if o.PaidOn(second, ist) {
		t.Error("expected different IST day")
	}
}

func TestOrder_CheckSettleableStatuses(t *testing.T) {
	o := newTestOrder(t, 500, 5)
	if err := o.Cancel(day0); err != nil {
		t.Fatal(err)
	}
	if _, err := o.CheckSettleable(day0, time.UTC); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus for cancelled order, got %v", err)
	}
	if err := o.Cancel(day0); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus on double cancel, got %v", err)
	}
}

func TestOrder_ApplySettlementRejectsOutOfOrder(t *testing.T) {
	o := newTestOrder(t, 500, 5)
	if _, err := o.ApplySettlement(2, 100, "p", day0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if o.PaidInstallments != 0 {
		t.Error("rejected settlement must not change counters")
	}
}

func TestOrder_MilestoneRewardCompletesStructurally(t *testing.T) {
	// --- Arrange ---
	o := newTestOrder(t, 500, 5)
	o.CouponType = CouponTypeMilestoneReward
	o.MilestonePaymentsRequired = 3
	o.MilestoneRewardDays = 2

	// --- Act ---
	var last *SettlementOutcome
	for i := 1; i <= 3; i++ {
		out, err := o.ApplySettlement(i, 100, "p", day0.AddDate(0, 0, i-1))
		if err != nil {
			t.Fatalf("settle %d: %v", i, err)
		}
		last = out
	}

	// --- Assert ---
	if !last.RewardApplied || len(last.FreedInstallments) != 2 {
		t.Fatalf("expected reward with 2 freed installments, got %+v", last)
	}
	if last.FreedInstallments[0] != 4 || last.FreedInstallments[1] != 5 {
		t.Errorf("expected installments 4 and 5 freed, got %v", last.FreedInstallments)
	}
	if o.PaidInstallments != 5 {
		t.Errorf("expected freed days to count as paid, got %d", o.PaidInstallments)
	}
	if o.PaidAmount != 300 {
		t.Errorf("freed days must not add money, got %d", o.PaidAmount)
	}
	if o.Status != OrderStatusCompleted || last.CompletionReason != CompletionFreeDays {
		t.Errorf("expected structural completion, got %s/%s", o.Status, last.CompletionReason)
	}
	if o.RemainingAmount != 200 {
		t.Errorf("expected remaining 200, got %d", o.RemainingAmount)
	}
}

func TestOrder_MilestoneRewardAppliedOnce(t *testing.T) {
	o := newTestOrder(t, 1000, 10)
	o.CouponType = CouponTypeMilestoneReward
	o.MilestonePaymentsRequired = 2
	o.MilestoneRewardDays = 1

	for i := 1; i <= 2; i++ {
		if _, err := o.ApplySettlement(i, 100, "p", day0.AddDate(0, 0, i-1)); err != nil {
			t.Fatal(err)
		}
	}
	if !o.MilestoneRewardApplied || o.Installments[2].Status != InstallmentStatusFree {
		t.Fatalf("expected installment 3 freed, got %s", o.Installments[2].Status)
	}
	out, err := o.ApplySettlement(4, 100, "p", day0.AddDate(0, 0, 2))
	if err != nil {
		t.Fatal(err)
	}
	if out.RewardApplied {
		t.Error("reward must not apply twice")
	}
	if o.PendingCount() != 6 {
		t.Errorf("expected 6 pending installments, got %d", o.PendingCount())
	}
}

// --- Coupon Tests ---

func TestCoupon_CheckApplicable(t *testing.T) {
	past := day0.Add(-time.Hour)
	testCases := []struct {
		name   string
		coupon *Coupon
		price  int64
		want   error
	}{
		{name: "nil coupon", coupon: nil, price: 100, want: domain.ErrCouponNotFound},
		{name: "inactive", coupon: &Coupon{Code: "X"}, price: 100, want: domain.ErrCouponNotApplicable},
		{name: "expired", coupon: &Coupon{Code: "X", IsActive: true, ExpiresAt: &past}, price: 100, want: domain.ErrCouponNotApplicable},
		{name: "below min order", coupon: &Coupon{Code: "X", IsActive: true, MinOrderValue: 500}, price: 100, want: domain.ErrCouponNotApplicable},
		{name: "milestone without condition", coupon: &Coupon{Code: "X", IsActive: true, Type: CouponTypeMilestoneReward}, price: 100, want: domain.ErrCouponNotApplicable},
		{name: "ok", coupon: &Coupon{Code: "X", IsActive: true, Type: CouponTypeInstant}, price: 100},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.coupon.CheckApplicable(tc.price, day0)
			if tc.want == nil && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCoupon_DiscountFor(t *testing.T) {
	flat := &Coupon{DiscountKind: DiscountFlat, DiscountValue: 250}
	if got := flat.DiscountFor(1000); got != 250 {
		t.Errorf("expected 250, got %d", got)
	}
	if got := flat.DiscountFor(100); got != 100 {
		t.Errorf("expected clamp to 100, got %d", got)
	}
	pct := &Coupon{DiscountKind: DiscountPercent, DiscountValue: 15}
	if got := pct.DiscountFor(1000); got != 150 {
		t.Errorf("expected 150, got %d", got)
	}
}

// --- Commission and Payment Tests ---

func TestSplitCommission(t *testing.T) {
	testCases := []struct {
		amount int64
		pct    float64
		total  int64
		avail  int64
		locked int64
	}{
		{amount: 100, pct: 10, total: 10, avail: 9, locked: 1},
		{amount: 105, pct: 10, total: 11, avail: 9, locked: 2}, // round(10.5)=11, floor(9.9)=9
		{amount: 1, pct: 10, total: 0},
		{amount: 100, pct: 0},
		{amount: 1000, pct: 7.5, total: 75, avail: 67, locked: 8},
	}
	for _, tc := range testCases {
		s := SplitCommission(tc.amount, tc.pct, 90)
		if s.Total != tc.total || s.Available != tc.avail || s.Locked != tc.locked {
			t.Errorf("amount=%d pct=%v: got %+v", tc.amount, tc.pct, s)
		}
		if s.Available+s.Locked != s.Total {
			t.Errorf("split does not add up: %+v", s)
		}
	}
}

func TestIdempotencyKey(t *testing.T) {
	a := IdempotencyKey("o1", "b1", 1)
	if a != IdempotencyKey("o1", "b1", 1) {
		t.Error("key must be deterministic")
	}
	if a == IdempotencyKey("o1", "b1", 2) || a == IdempotencyKey("o2", "b1", 1) {
		t.Error("keys must differ per order and installment")
	}
	if len(a) != len("ipay_")+32 {
		t.Errorf("unexpected key length %d", len(a))
	}
}

func TestClassifyPayment(t *testing.T) {
	testCases := []struct {
		name  string
		notes map[string]string
		kind  PaymentKind
		ok    bool
	}{
		{name: "deposit", notes: map[string]string{"payment_type": "wallet_deposit", "deposit_id": "d1"}, kind: KindWalletDeposit, ok: true},
		{name: "deposit without id", notes: map[string]string{"payment_type": "wallet_deposit"}, kind: KindWalletDeposit},
		{name: "first", notes: map[string]string{"payment_type": "first_installment", "order_id": "o1", "installment": "1"}, kind: KindFirstInstallment, ok: true},
		{name: "daily", notes: map[string]string{"payment_type": "daily_installment", "order_id": "o1"}, kind: KindDailyInstallment, ok: true},
		{name: "combined", notes: map[string]string{"payment_type": "combined_installments", "order_ids": "o1, o2,,"}, kind: KindCombinedInstallments, ok: true},
		{name: "unknown", notes: map[string]string{"payment_type": "tip"}},
		{name: "empty", notes: nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in, ok := ClassifyPayment(tc.notes)
			if ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, ok)
			}
			if ok && in.Kind != tc.kind {
				t.Errorf("expected kind %s, got %s", tc.kind, in.Kind)
			}
			if tc.kind == KindCombinedInstallments && len(in.OrderIDs) != 2 {
				t.Errorf("expected 2 order ids, got %v", in.OrderIDs)
			}
		})
	}
}
