//go:build !integration

// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"installment-engine/internal/domain"
	"installment-engine/internal/domain/model"
	"installment-engine/internal/domain/ports/adapter"
	"installment-engine/internal/domain/ports/repository"
)

// -----------------------------
// In-memory store with real rollback
// -----------------------------

// memState is everything the repositories hold. A transaction works on a deep copy and
// swaps it in on commit, so a failed fn leaves no trace.
type memState struct {
	orders   map[string]*model.Order
	payments map[string]*model.PaymentRecord
	wallets  map[string]*model.Wallet
	entries  []model.WalletEntry
	deposits map[string]*model.WalletDeposit
	ledger   []model.CommissionEntry
	events   map[string]*model.WebhookEvent
	coupons  map[string]*model.Coupon
}

func newMemState() *memState {
	return &memState{
		orders:   map[string]*model.Order{},
		payments: map[string]*model.PaymentRecord{},
		wallets:  map[string]*model.Wallet{},
		deposits: map[string]*model.WalletDeposit{},
		events:   map[string]*model.WebhookEvent{},
		coupons:  map[string]*model.Coupon{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.orders {
		c.orders[k] = cloneOrder(v)
	}
	for k, v := range s.payments {
		p := *v
		c.payments[k] = &p
	}
	for k, v := range s.wallets {
		w := *v
		c.wallets[k] = &w
	}
	c.entries = append([]model.WalletEntry(nil), s.entries...)
	for k, v := range s.deposits {
		d := *v
		c.deposits[k] = &d
	}
	c.ledger = append([]model.CommissionEntry(nil), s.ledger...)
	for k, v := range s.events {
		e := *v
		c.events[k] = &e
	}
	for k, v := range s.coupons {
		cp := *v
		c.coupons[k] = &cp
	}
	return c
}

func cloneOrder(o *model.Order) *model.Order {
	c := *o
	c.Installments = append([]model.Installment(nil), o.Installments...)
	return &c
}

type memTx struct{ st *memState }

// memDB implements repository.TransactionManager. Transactions are serialized, which is
// the strongest form of the row lock the postgres repositories take.
type memDB struct {
	mu      sync.Mutex
	st      *memState
	commits int
}

var _ repository.TransactionManager = (*memDB)(nil)

func newMemDB() *memDB { return &memDB{st: newMemState()} }

func (db *memDB) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	tx := &memTx{st: db.st.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	db.st = tx.st
	db.commits++
	return nil
}

// view returns the state a repository call operates on and the function releasing it.
func (db *memDB) view(tx repository.Tx) (*memState, func()) {
	if t, ok := tx.(*memTx); ok && t != nil {
		return t.st, func() {}
	}
	db.mu.Lock()
	return db.st, db.mu.Unlock
}

// snapshot is a read-only copy for assertions.
func (db *memDB) snapshot() *memState {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.st.clone()
}

func live(p *model.PaymentRecord) bool {
	return p.Status != model.PaymentStatusFailed && p.Status != model.PaymentStatusCancelled
}

// -----------------------------
// Repositories
// -----------------------------

type memOrderRepo struct{ db *memDB }

var _ repository.OrderRepository = (*memOrderRepo)(nil)

func (r *memOrderRepo) Create(ctx context.Context, tx repository.Tx, o *model.Order) error {
	st, done := r.db.view(tx)
	defer done()
	if _, ok := st.orders[o.ID]; ok {
		return domain.ErrAlreadyExists
	}
	st.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *memOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	st, done := r.db.view(tx)
	defer done()
	o, ok := st.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *memOrderRepo) ListByBuyer(ctx context.Context, tx repository.Tx, buyerID string) ([]*model.Order, error) {
	st, done := r.db.view(tx)
	defer done()
	var out []*model.Order
	for _, o := range st.orders {
		if o.BuyerID == buyerID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memOrderRepo) Update(ctx context.Context, tx repository.Tx, o *model.Order) error {
	st, done := r.db.view(tx)
	defer done()
	if _, ok := st.orders[o.ID]; !ok {
		return domain.ErrNotFound
	}
	st.orders[o.ID] = cloneOrder(o)
	return nil
}

type memPaymentRepo struct {
	db *memDB

	// MarkCommissionFunc overrides the commission claim when set.
	MarkCommissionFunc func(id string) (bool, error)
	// MarkRefundedFunc overrides the final refund transition when set.
	MarkRefundedFunc func(id string) (bool, error)
}

var _ repository.PaymentRecordRepository = (*memPaymentRepo)(nil)

func (r *memPaymentRepo) Insert(ctx context.Context, tx repository.Tx, p *model.PaymentRecord) error {
	st, done := r.db.view(tx)
	defer done()
	if _, ok := st.payments[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if live(p) {
		for _, q := range st.payments {
			if !live(q) {
				continue
			}
			if q.IdempotencyKey == p.IdempotencyKey ||
				(q.OrderID == p.OrderID && q.InstallmentNumber == p.InstallmentNumber) {
				return domain.ErrAlreadyExists
			}
		}
	}
	c := *p
	st.payments[p.ID] = &c
	return nil
}

func (r *memPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentRecord, error) {
	st, done := r.db.view(tx)
	defer done()
	p, ok := st.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (r *memPaymentRepo) FindByIdempotencyKey(ctx context.Context, tx repository.Tx, key string) (*model.PaymentRecord, error) {
	st, done := r.db.view(tx)
	defer done()
	for _, p := range st.payments {
		if p.IdempotencyKey == key && live(p) {
			c := *p
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memPaymentRepo) FindCompletedByExternalID(ctx context.Context, tx repository.Tx, orderID, externalPaymentID string) (*model.PaymentRecord, error) {
	st, done := r.db.view(tx)
	defer done()
	for _, p := range st.payments {
		if p.OrderID == orderID && p.ExternalPaymentID == externalPaymentID && p.Status == model.PaymentStatusCompleted {
			c := *p
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memPaymentRepo) filter(tx repository.Tx, keep func(p *model.PaymentRecord) bool) []*model.PaymentRecord {
	st, done := r.db.view(tx)
	defer done()
	var out []*model.PaymentRecord
	for _, p := range st.payments {
		if keep(p) {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InstallmentNumber != out[j].InstallmentNumber {
			return out[i].InstallmentNumber < out[j].InstallmentNumber
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *memPaymentRepo) ListByOrder(ctx context.Context, tx repository.Tx, orderID string) ([]*model.PaymentRecord, error) {
	return r.filter(tx, func(p *model.PaymentRecord) bool { return p.OrderID == orderID }), nil
}

func (r *memPaymentRepo) ListByExternalID(ctx context.Context, tx repository.Tx, externalPaymentID string) ([]*model.PaymentRecord, error) {
	return r.filter(tx, func(p *model.PaymentRecord) bool { return p.ExternalPaymentID == externalPaymentID }), nil
}

func (r *memPaymentRepo) ListOpenByGatewayOrder(ctx context.Context, tx repository.Tx, gatewayOrderID string) ([]*model.PaymentRecord, error) {
	return r.filter(tx, func(p *model.PaymentRecord) bool {
		return p.GatewayOrderID == gatewayOrderID && p.Open()
	}), nil
}

func (r *memPaymentRepo) ListStaleOpen(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentRecord, error) {
	out := r.filter(tx, func(p *model.PaymentRecord) bool {
		return p.Open() && p.UpdatedAt.Before(olderThan)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memPaymentRepo) Complete(ctx context.Context, tx repository.Tx, p *model.PaymentRecord) (bool, error) {
	st, done := r.db.view(tx)
	defer done()
	cur, ok := st.payments[p.ID]
	if !ok || !cur.Open() {
		return false, nil
	}
	if p.ExternalPaymentID != "" {
		for _, q := range st.payments {
			if q.ID != p.ID && q.OrderID == p.OrderID && q.ExternalPaymentID == p.ExternalPaymentID &&
				q.Status == model.PaymentStatusCompleted {
				return false, domain.ErrAlreadyExists
			}
		}
	}
	cur.Amount = p.Amount
	cur.Method = p.Method
	cur.Status = model.PaymentStatusCompleted
	cur.GatewayOrderID = p.GatewayOrderID
	cur.ExternalPaymentID = p.ExternalPaymentID
	cur.SignatureVerified = p.SignatureVerified
	cur.CompletedAt = p.CompletedAt
	cur.UpdatedAt = p.UpdatedAt
	return true, nil
}

func (r *memPaymentRepo) AttachGatewayOrder(ctx context.Context, tx repository.Tx, id, gatewayOrderID string) (bool, error) {
	st, done := r.db.view(tx)
	defer done()
	p, ok := st.payments[id]
	if !ok || !p.Open() || p.GatewayOrderID != "" {
		return false, nil
	}
	p.GatewayOrderID = gatewayOrderID
	return true, nil
}

func (r *memPaymentRepo) HoldCapture(ctx context.Context, tx repository.Tx, id, externalPaymentID string) (bool, error) {
	st, done := r.db.view(tx)
	defer done()
	p, ok := st.payments[id]
	if !ok || !p.Open() || p.ExternalPaymentID != "" {
		return false, nil
	}
	p.ExternalPaymentID = externalPaymentID
	return true, nil
}

func (r *memPaymentRepo) UpdateStatusIfOpen(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, reason string) (bool, error) {
	st, done := r.db.view(tx)
	defer done()
	p, ok := st.payments[id]
	if !ok || !p.Open() {
		return false, nil
	}
	p.Status = status
	p.FailureReason = reason
	return true, nil
}

func (r *memPaymentRepo) MarkRefunding(ctx context.Context, tx repository.Tx, id, reason string) (bool, error) {
	st, done := r.db.view(tx)
	defer done()
	p, ok := st.payments[id]
	if !ok || p.Status != model.PaymentStatusCompleted {
		return false, nil
	}
	p.Status = model.PaymentStatusRefunding
	p.FailureReason = reason
	return true, nil
}

func (r *memPaymentRepo) MarkRefunded(ctx context.Context, tx repository.Tx, id, reason, refundID string) (bool, error) {
	if r.MarkRefundedFunc != nil {
		return r.MarkRefundedFunc(id)
	}
	st, done := r.db.view(tx)
	defer done()
	p, ok := st.payments[id]
	if !ok || (p.Status != model.PaymentStatusCompleted && p.Status != model.PaymentStatusRefunding) {
		return false, nil
	}
	p.Status = model.PaymentStatusRefunded
	p.FailureReason = reason
	p.RefundID = refundID
	return true, nil
}

func (r *memPaymentRepo) CancelOpenByOrder(ctx context.Context, tx repository.Tx, orderID string) (int64, error) {
	st, done := r.db.view(tx)
	defer done()
	var n int64
	for _, p := range st.payments {
		if p.OrderID == orderID && p.Open() {
			p.Status = model.PaymentStatusCancelled
			n++
		}
	}
	return n, nil
}

func (r *memPaymentRepo) MarkCommission(ctx context.Context, tx repository.Tx, id string, amount int64, percent float64, ref string) (bool, error) {
	if r.MarkCommissionFunc != nil {
		return r.MarkCommissionFunc(id)
	}
	st, done := r.db.view(tx)
	defer done()
	p, ok := st.payments[id]
	if !ok || p.CommissionCalculated {
		return false, nil
	}
	p.CommissionCalculated = true
	p.CommissionAmount = amount
	p.CommissionPercent = percent
	p.CommissionRef = ref
	p.CommissionCredited = amount > 0
	return true, nil
}

type memWalletRepo struct {
	db *memDB

	// CreditErr fails credits of the given kind.
	CreditErr map[model.WalletEntryKind]error
}

var _ repository.WalletRepository = (*memWalletRepo)(nil)

func (r *memWalletRepo) Deduct(ctx context.Context, tx repository.Tx, accountID string, amount int64, reason, ref string) error {
	st, done := r.db.view(tx)
	defer done()
	w, ok := st.wallets[accountID]
	if !ok {
		return &domain.InsufficientBalanceError{Required: amount}
	}
	if w.Balance < amount {
		return &domain.InsufficientBalanceError{Required: amount, Available: w.Balance}
	}
	w.Balance -= amount
	st.entries = append(st.entries, model.WalletEntry{
		ID: ulid.Make().String(), AccountID: accountID, Kind: model.WalletDebit,
		Amount: -amount, Reason: reason, Reference: ref,
	})
	return nil
}

func (r *memWalletRepo) Credit(ctx context.Context, tx repository.Tx, accountID string, available, locked int64, kind model.WalletEntryKind, reason, ref string) (string, error) {
	if err := r.CreditErr[kind]; err != nil {
		return "", err
	}
	st, done := r.db.view(tx)
	defer done()
	if kind == model.WalletCaptureCredit {
		for _, e := range st.entries {
			if e.Kind == kind && e.Reference == ref {
				return "", domain.ErrAlreadyExists
			}
		}
	}
	w, ok := st.wallets[accountID]
	if !ok {
		w = &model.Wallet{AccountID: accountID}
		st.wallets[accountID] = w
	}
	w.Balance += available
	w.Locked += locked
	id := ulid.Make().String()
	st.entries = append(st.entries, model.WalletEntry{
		ID: id, AccountID: accountID, Kind: kind, Amount: available, Locked: locked, Reason: reason, Reference: ref,
	})
	return id, nil
}

func (r *memWalletRepo) Get(ctx context.Context, tx repository.Tx, accountID string) (*model.Wallet, error) {
	st, done := r.db.view(tx)
	defer done()
	w, ok := st.wallets[accountID]
	if !ok {
		return &model.Wallet{AccountID: accountID}, nil
	}
	c := *w
	return &c, nil
}

type memDepositRepo struct{ db *memDB }

var _ repository.DepositRepository = (*memDepositRepo)(nil)

func (r *memDepositRepo) Create(ctx context.Context, tx repository.Tx, d *model.WalletDeposit) error {
	st, done := r.db.view(tx)
	defer done()
	if _, ok := st.deposits[d.ID]; ok {
		return domain.ErrAlreadyExists
	}
	c := *d
	st.deposits[d.ID] = &c
	return nil
}

func (r *memDepositRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.WalletDeposit, error) {
	st, done := r.db.view(tx)
	defer done()
	d, ok := st.deposits[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *d
	return &c, nil
}

func (r *memDepositRepo) FindByGatewayOrderID(ctx context.Context, tx repository.Tx, gatewayOrderID string) (*model.WalletDeposit, error) {
	st, done := r.db.view(tx)
	defer done()
	for _, d := range st.deposits {
		if d.GatewayOrderID == gatewayOrderID {
			c := *d
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memDepositRepo) CompleteIfPending(ctx context.Context, tx repository.Tx, id, externalPaymentID string, at time.Time) (bool, error) {
	st, done := r.db.view(tx)
	defer done()
	d, ok := st.deposits[id]
	if !ok || d.Status != model.DepositStatusPending {
		return false, nil
	}
	d.Status = model.DepositStatusCompleted
	d.ExternalPaymentID = externalPaymentID
	d.CompletedAt = &at
	d.UpdatedAt = at
	return true, nil
}

func (r *memDepositRepo) FailIfPending(ctx context.Context, tx repository.Tx, gatewayOrderID, reason string) (bool, error) {
	st, done := r.db.view(tx)
	defer done()
	for _, d := range st.deposits {
		if d.GatewayOrderID == gatewayOrderID && d.Status == model.DepositStatusPending {
			d.Status = model.DepositStatusFailed
			d.FailureReason = reason
			return true, nil
		}
	}
	return false, nil
}

type memLedger struct{ db *memDB }

var _ repository.CommissionLedger = (*memLedger)(nil)

func (r *memLedger) Append(ctx context.Context, tx repository.Tx, e *model.CommissionEntry) error {
	st, done := r.db.view(tx)
	defer done()
	st.ledger = append(st.ledger, *e)
	return nil
}

func (r *memLedger) ListByReferrer(ctx context.Context, tx repository.Tx, referrerID string) ([]*model.CommissionEntry, error) {
	st, done := r.db.view(tx)
	defer done()
	var out []*model.CommissionEntry
	for i := range st.ledger {
		if st.ledger[i].ReferrerID == referrerID {
			e := st.ledger[i]
			out = append(out, &e)
		}
	}
	return out, nil
}

type memEventRepo struct{ db *memDB }

var _ repository.WebhookEventRepository = (*memEventRepo)(nil)

func (r *memEventRepo) Claim(ctx context.Context, tx repository.Tx, e *model.WebhookEvent) error {
	st, done := r.db.view(tx)
	defer done()
	if _, ok := st.events[e.Key()]; ok {
		return domain.ErrAlreadyExists
	}
	c := *e
	st.events[e.Key()] = &c
	return nil
}

func (r *memEventRepo) Finish(ctx context.Context, tx repository.Tx, id string, status model.WebhookStatus, kind model.PaymentKind, note string) error {
	st, done := r.db.view(tx)
	defer done()
	for _, e := range st.events {
		if e.ID == id {
			e.Status = status
			e.PaymentType = kind
			e.Note = note
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memEventRepo) FindByKey(ctx context.Context, tx repository.Tx, externalPaymentID, eventType string) (*model.WebhookEvent, error) {
	st, done := r.db.view(tx)
	defer done()
	e, ok := st.events[externalPaymentID+":"+eventType]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *e
	return &c, nil
}

type memCouponRepo struct{ db *memDB }

var _ repository.CouponRepository = (*memCouponRepo)(nil)

func (r *memCouponRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error) {
	st, done := r.db.view(tx)
	defer done()
	c, ok := st.coupons[code]
	if !ok {
		return nil, domain.ErrCouponNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memCouponRepo) Save(ctx context.Context, tx repository.Tx, c *model.Coupon) error {
	st, done := r.db.view(tx)
	defer done()
	cp := *c
	st.coupons[c.Code] = &cp
	return nil
}

// -----------------------------
// Adapters
// -----------------------------

const mockWebhookSignature = "valid-webhook-signature"

type mockGateway struct {
	mu      sync.Mutex
	seq     int
	notes   map[string]map[string]string
	amounts map[string]int64
	states  map[string][]adapter.GatewayPaymentState
	refunds []string
	// refunded is what the provider has returned per payment, in minor units
	refunded map[string]int64

	CreateOrderFunc func(ctx context.Context, amountMinor int64, notes map[string]string) (string, error)
	RefundFunc      func(ctx context.Context, paymentID string, amountMinor int64) (adapter.RefundResult, error)
}

var _ adapter.PaymentGateway = (*mockGateway)(nil)

func newMockGateway() *mockGateway {
	return &mockGateway{
		notes:   map[string]map[string]string{},
		amounts: map[string]int64{},
		states:  map[string][]adapter.GatewayPaymentState{},

		refunded: map[string]int64{},
	}
}

func (g *mockGateway) Name() string     { return "mockpay" }
func (g *mockGateway) KeyID() string    { return "key_test" }
func (g *mockGateway) Currency() string { return "INR" }

func (g *mockGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (string, error) {
	if g.CreateOrderFunc != nil {
		return g.CreateOrderFunc(ctx, amountMinor, notes)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	id := fmt.Sprintf("order_%03d", g.seq)
	cp := make(map[string]string, len(notes))
	for k, v := range notes {
		cp[k] = v
	}
	g.notes[id] = cp
	g.amounts[id] = amountMinor
	return id, nil
}

func (g *mockGateway) SignPayment(gatewayOrderID, paymentID string) string {
	return "sig:" + gatewayOrderID + "|" + paymentID
}

func (g *mockGateway) VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool {
	return signature == g.SignPayment(gatewayOrderID, paymentID)
}

func (g *mockGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return signature == mockWebhookSignature
}

func (g *mockGateway) FetchOrderPayments(ctx context.Context, gatewayOrderID string) ([]adapter.GatewayPaymentState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.states[gatewayOrderID], nil
}

func (g *mockGateway) Refund(ctx context.Context, paymentID string, amountMinor int64, notes map[string]string) (adapter.RefundResult, error) {
	if g.RefundFunc != nil {
		return g.RefundFunc(ctx, paymentID, amountMinor)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, paymentID)
	g.refunded[paymentID] += amountMinor
	return adapter.RefundResult{ID: fmt.Sprintf("rfnd_%s_%d", paymentID, len(g.refunds)), Status: "processed", AmountMinor: amountMinor}, nil
}

func (g *mockGateway) RefundedAmount(ctx context.Context, paymentID string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunded[paymentID], nil
}

// createdOrders counts gateway orders opened so far.
func (g *mockGateway) createdOrders() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

func (g *mockGateway) notesFor(gatewayOrderID string) map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.notes[gatewayOrderID]
}

func (g *mockGateway) amountFor(gatewayOrderID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.amounts[gatewayOrderID]
}

type mockNotifier struct {
	mu   sync.Mutex
	Sent []model.Notification

	NotifyFunc func(ctx context.Context, n model.Notification) error
}

var _ adapter.Notifier = (*mockNotifier)(nil)

func (m *mockNotifier) Notify(ctx context.Context, n model.Notification) error {
	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, n)
	return nil
}

func (m *mockNotifier) kinds() []model.NotificationKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.NotificationKind, 0, len(m.Sent))
	for _, n := range m.Sent {
		out = append(out, n.Kind)
	}
	return out
}

// -----------------------------
// Harness
// -----------------------------

var ist = time.FixedZone("IST", 5*3600+30*60)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	db       *memDB
	orders   *memOrderRepo
	payments *memPaymentRepo
	wallets  *memWalletRepo
	deposits *memDepositRepo
	ledger   *memLedger
	events   *memEventRepo
	coupons  *memCouponRepo
	gateway  *mockGateway
	notifier *mockNotifier
	clock    *testClock

	payUC     *paymentUC
	orderUC   *orderUC
	depositUC *depositUC
	webhookUC *webhookUC
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := newMemDB()
	h := &harness{
		db:       db,
		orders:   &memOrderRepo{db: db},
		payments: &memPaymentRepo{db: db},
		wallets:  &memWalletRepo{db: db},
		deposits: &memDepositRepo{db: db},
		ledger:   &memLedger{db: db},
		events:   &memEventRepo{db: db},
		coupons:  &memCouponRepo{db: db},
		gateway:  newMockGateway(),
		notifier: &mockNotifier{},
		// 10:00 IST
		clock: &testClock{t: time.Date(2025, 3, 10, 4, 30, 0, 0, time.UTC)},
	}
	logger := zerolog.Nop()
	commission := NewCommissionUseCase(h.payments, h.wallets, h.ledger, 10, 90, &logger)
	commission.now = h.clock.Now
	h.payUC = NewPaymentUseCase(db, h.orders, h.payments, h.wallets, h.gateway, commission, h.notifier, ist, &logger)
	h.payUC.now = h.clock.Now
	h.orderUC = NewOrderUseCase(db, h.orders, h.coupons, h.payUC, model.DefaultSchedulePolicy(), &logger)
	h.depositUC = NewDepositUseCase(db, h.deposits, h.wallets, h.gateway, h.notifier, &logger)
	h.depositUC.now = h.clock.Now
	h.webhookUC = NewWebhookUseCase(h.events, h.payUC, h.depositUC, h.gateway, h.notifier, &logger)
	h.webhookUC.now = h.clock.Now
	return h
}

func (h *harness) fund(t *testing.T, accountID string, amount int64) {
	t.Helper()
	if _, err := h.wallets.Credit(context.Background(), nil, accountID, amount, 0, model.WalletCredit, "test funding", "seed"); err != nil {
		t.Fatalf("fund wallet: %v", err)
	}
}

func (h *harness) balance(accountID string) model.Wallet {
	w, _ := h.wallets.Get(context.Background(), nil, accountID)
	return *w
}

func (h *harness) order(t *testing.T, id string) *model.Order {
	t.Helper()
	o, err := h.orders.FindByID(context.Background(), nil, id)
	if err != nil {
		t.Fatalf("load order %s: %v", id, err)
	}
	return o
}

func (h *harness) createOrder(t *testing.T, req CreateOrderRequest) *CreateOrderResult {
	t.Helper()
	if req.ProductRef == "" {
		req.ProductRef = "sku-1"
	}
	if req.FundingSource == "" {
		req.FundingSource = model.FundingWallet
	}
	res, err := h.orderUC.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return res
}

// nextDay moves the clock forward one calendar day.
func (h *harness) nextDay() { h.clock.Advance(24 * time.Hour) }

// capture simulates the buyer completing checkout for gatewayOrderID.
func (h *harness) capture(gatewayOrderID, paymentID string) *model.GatewayCapture {
	return &model.GatewayCapture{
		GatewayOrderID: gatewayOrderID,
		PaymentID:      paymentID,
		Signature:      h.gateway.SignPayment(gatewayOrderID, paymentID),
		AmountMinor:    h.gateway.amountFor(gatewayOrderID),
	}
}

// webhookBody builds a gateway payment event whose notes are the ones attached to the
// gateway order at creation.
func (h *harness) webhookBody(t *testing.T, event, gatewayOrderID, paymentID string) []byte {
	t.Helper()
	notes := map[string]any{}
	for k, v := range h.gateway.notesFor(gatewayOrderID) {
		notes[k] = v
	}
	body := map[string]any{
		"event": event,
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{
					"id":       paymentID,
					"order_id": gatewayOrderID,
					"amount":   h.gateway.amountFor(gatewayOrderID),
					"notes":    notes,
				},
			},
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal webhook body: %v", err)
	}
	return b
}

func (h *harness) completedRecords(orderID string) int {
	n := 0
	for _, p := range h.db.snapshot().payments {
		if p.OrderID == orderID && p.Status == model.PaymentStatusCompleted {
			n++
		}
	}
	return n
}

// bindAhead opens a gateway order for the next installment of each order, bypassing the
// checkout rules, as a checkout opened before the day's settlement would leave it.
func (h *harness) bindAhead(t *testing.T, buyerID string, orderIDs ...string) string {
	t.Helper()
	ctx := context.Background()
	notes := map[string]string{model.NoteBuyerID: buyerID}
	var total int64
	var recs []*model.PaymentRecord
	for _, id := range orderIDs {
		o := h.order(t, id)
		next, ok := o.NextPayable()
		if !ok {
			t.Fatalf("order %s has nothing payable", id)
		}
		total += next.Amount
		recs = append(recs, newPaymentRecord(o.ID, o.BuyerID, next.Number, next.Amount,
			model.PaymentMethodGateway, model.PaymentStatusPending, h.clock.Now()))
		notes[model.NoteInstallment] = strconv.Itoa(next.Number)
	}
	if len(orderIDs) == 1 {
		notes[model.NotePaymentType] = string(model.KindDailyInstallment)
		notes[model.NoteOrderID] = orderIDs[0]
	} else {
		delete(notes, model.NoteInstallment)
		notes[model.NotePaymentType] = string(model.KindCombinedInstallments)
		notes[model.NoteOrderIDs] = strings.Join(orderIDs, ",")
	}
	gw, err := h.gateway.CreateOrder(ctx, adapter.ToMinor(total), "INR", "ahead", notes)
	if err != nil {
		t.Fatalf("create gateway order: %v", err)
	}
	for _, r := range recs {
		r.GatewayOrderID = gw
		if err := h.payments.Insert(ctx, nil, r); err != nil {
			t.Fatalf("insert attempt: %v", err)
		}
	}
	return gw
}

// entries returns the wallet movements of kind for accountID.
func (h *harness) entries(accountID string, kind model.WalletEntryKind) []model.WalletEntry {
	var out []model.WalletEntry
	for _, e := range h.db.snapshot().entries {
		if e.AccountID == accountID && e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func assertErrIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected error %v, got %v", target, err)
	}
}
