package services

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"nelfy/internal/amqp"
	"nelfy/internal/api"
	"nelfy/internal/core"
)

var errBackendDown = errors.New("backend down")

// fakeBackend is an in-memory backend API for one user.
type fakeBackend struct {
	mu               sync.Mutex
	txs              map[int64]core.Transaction
	order            []int64
	stats            []core.CategoryStat
	failInstallments map[int64]bool
	failMonthly      bool
	created          []api.NewTransaction
	deleted          []int64
}

func newFakeBackend(txs ...core.Transaction) *fakeBackend {
	b := &fakeBackend{txs: map[int64]core.Transaction{}, failInstallments: map[int64]bool{}}
	for _, t := range txs {
		b.txs[t.ID] = t
		b.order = append(b.order, t.ID)
	}
	return b
}

// Transactions lists top-level rows only, like the backend's list endpoint.
// Installment children are reachable through Installments and Monthly.
func (b *fakeBackend) Transactions(context.Context) ([]core.Transaction, error) {
	return b.list(false), nil
}

func (b *fakeBackend) list(children bool) []core.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]core.Transaction, 0, len(b.order))
	for _, id := range b.order {
		t, ok := b.txs[id]
		if !ok || (!children && t.IsGroupChild()) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (b *fakeBackend) Transaction(_ context.Context, id int64) (core.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.txs[id]
	if !ok {
		return core.Transaction{}, &api.APIError{Status: 404, Message: "not found"}
	}
	return t, nil
}

func (b *fakeBackend) Installments(_ context.Context, parentID int64) ([]core.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failInstallments[parentID] {
		return nil, errBackendDown
	}
	var out []core.Transaction
	for _, id := range b.order {
		t := b.txs[id]
		if t.ParentTransactionID != nil && *t.ParentTransactionID == parentID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (b *fakeBackend) setPaid(id int64, paid bool) (core.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.txs[id]
	if !ok {
		return core.Transaction{}, &api.APIError{Status: 404, Message: "not found"}
	}
	t.IsPaid = core.PaidStateOf(paid)
	b.txs[id] = t
	return t, nil
}

func (b *fakeBackend) MarkPaid(_ context.Context, id int64) (core.Transaction, error) {
	return b.setPaid(id, true)
}

func (b *fakeBackend) MarkUnpaid(_ context.Context, id int64) (core.Transaction, error) {
	return b.setPaid(id, false)
}

func (b *fakeBackend) CreateTransaction(_ context.Context, in api.NewTransaction) (core.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.created = append(b.created, in)
	id := int64(1000 + len(b.created))
	t := core.Transaction{ID: id, Description: in.Description, Amount: in.Amount, Type: in.Type}
	b.txs[id] = t
	b.order = append(b.order, id)
	return t, nil
}

func (b *fakeBackend) DeleteTransaction(_ context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.txs[id]; !ok {
		return &api.APIError{Status: 404, Message: "not found"}
	}
	b.deleted = append(b.deleted, id)
	delete(b.txs, id)
	return nil
}

func (b *fakeBackend) Monthly(context.Context, core.Date) ([]core.Transaction, error) {
	if b.failMonthly {
		return nil, errBackendDown
	}
	return b.list(true), nil
}

func (b *fakeBackend) CategoryStats(context.Context, core.Date) ([]core.CategoryStat, error) {
	return b.stats, nil
}

// recorder captures published events.
type recorder struct {
	mu      sync.Mutex
	status  []*amqp.StatusChangedMessage
	exports []*amqp.ExportRequestedMessage
	err     error
}

func (r *recorder) PublishStatusChanged(_ context.Context, msg *amqp.StatusChangedMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.status = append(r.status, msg)
	return nil
}

func (r *recorder) PublishExportRequested(_ context.Context, msg *amqp.ExportRequestedMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.exports = append(r.exports, msg)
	return nil
}

func intp(v int) *int       { return &v }
func int64p(v int64) *int64 { return &v }

// group builds a parent of n installments of amount each, the first paid
// of them marked paid.
func group(parentID int64, n, paid int, amount int64) []core.Transaction {
	out := []core.Transaction{{
		ID:                     parentID,
		Description:            "Notebook",
		Amount:                 decimal.NewFromInt(amount * int64(n)),
		Type:                   core.Expense,
		IsInstallment:          true,
		TotalInstallments:      intp(n),
		PaidInstallmentsCount:  intp(paid),
		TotalInstallmentsCount: intp(n),
	}}
	for i := 1; i <= n; i++ {
		state := core.Unpaid
		if i <= paid {
			state = core.Paid
		}
		out = append(out, core.Transaction{
			ID:                  parentID + int64(i),
			Description:         "Notebook",
			Amount:              decimal.NewFromInt(amount),
			Type:                core.Expense,
			IsPaid:              state,
			ParentTransactionID: int64p(parentID),
			InstallmentNumber:   intp(i),
			TotalInstallments:   intp(n),
		})
	}
	return out
}
