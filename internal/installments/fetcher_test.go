package installments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nelfy/internal/core"
)

var errBackendDown = errors.New("backend down")

// fakeBackend simulates the installment endpoints of the backend in memory.
type fakeBackend struct {
	mu       sync.Mutex
	parents  map[int64]core.Transaction
	children map[int64][]core.Transaction
	failFor  map[int64]error

	installmentCalls atomic.Int32
	inFlight         atomic.Int32
	maxInFlight      atomic.Int32
	delay            time.Duration
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		parents:  make(map[int64]core.Transaction),
		children: make(map[int64][]core.Transaction),
		failFor:  make(map[int64]error),
	}
}

func (f *fakeBackend) addGroup(p core.Transaction, kids []core.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parents[p.ID] = p
	f.children[p.ID] = kids
	f.recountLocked(p.ID)
}

func (f *fakeBackend) recountLocked(parentID int64) {
	p := f.parents[parentID]
	paid := 0
	for _, c := range f.children[parentID] {
		if c.Settled() {
			paid++
		}
	}
	total := len(f.children[parentID])
	p.PaidInstallmentsCount = &paid
	p.TotalInstallmentsCount = &total
	f.parents[parentID] = p
}

func (f *fakeBackend) Installments(ctx context.Context, parentID int64) ([]core.Transaction, error) {
	f.installmentCalls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[parentID]; err != nil {
		return nil, err
	}
	kids := f.children[parentID]
	out := make([]core.Transaction, len(kids))
	// Serve in reverse to prove the fetcher orders them.
	for i, c := range kids {
		out[len(kids)-1-i] = c
	}
	return out, nil
}

func (f *fakeBackend) Transaction(ctx context.Context, id int64) (core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[id]; err != nil {
		return core.Transaction{}, err
	}
	if p, ok := f.parents[id]; ok {
		return p, nil
	}
	for _, kids := range f.children {
		for _, c := range kids {
			if c.ID == id {
				return c, nil
			}
		}
	}
	return core.Transaction{}, fmt.Errorf("transaction %d not found", id)
}

func (f *fakeBackend) MarkPaid(ctx context.Context, id int64) (core.Transaction, error) {
	return f.setPaid(id, core.Paid)
}

func (f *fakeBackend) MarkUnpaid(ctx context.Context, id int64) (core.Transaction, error) {
	return f.setPaid(id, core.Unpaid)
}

func (f *fakeBackend) setPaid(id int64, state core.PaidState) (core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for pid, kids := range f.children {
		for i := range kids {
			if kids[i].ID == id {
				kids[i].IsPaid = state
				f.recountLocked(pid)
				return kids[i], nil
			}
		}
	}
	return core.Transaction{}, fmt.Errorf("transaction %d not found", id)
}

func TestFetcher_LoadOrdersByInstallmentNumber(t *testing.T) {
	be := newFakeBackend()
	be.addGroup(parent(1, "300", 3), children(1, 3, "100", 0))

	got, err := NewFetcher(2).Load(context.Background(), be, 1)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, i+1, *c.InstallmentNumber)
	}
}

func TestFetcher_LoadWrapsError(t *testing.T) {
	be := newFakeBackend()
	be.failFor[4] = errBackendDown

	_, err := NewFetcher(2).Load(context.Background(), be, 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBackendDown)
	assert.Contains(t, err.Error(), "transaction 4")
}

func TestFetcher_LoadAllIsolatesFailures(t *testing.T) {
	be := newFakeBackend()
	for id := int64(1); id <= 6; id++ {
		be.addGroup(parent(id, "200", 2), children(id, 2, "100", 0))
	}
	be.failFor[3] = errBackendDown
	be.delay = 5 * time.Millisecond

	batch := NewFetcher(3).LoadAll(context.Background(), be, []int64{1, 2, 3, 4, 5, 6})

	assert.True(t, batch.Failed())
	assert.Len(t, batch.Children, 5)
	assert.Len(t, batch.Errors, 1)
	assert.ErrorIs(t, batch.Errors[3], errBackendDown)
	assert.EqualValues(t, 6, be.installmentCalls.Load())
	assert.LessOrEqual(t, be.maxInFlight.Load(), int32(3))
}

func TestFetcher_LoadAllEmpty(t *testing.T) {
	batch := NewFetcher(0).LoadAll(context.Background(), newFakeBackend(), nil)
	assert.False(t, batch.Failed())
	assert.Empty(t, batch.Children)
}

func TestSortChildren_MissingNumbersLast(t *testing.T) {
	d1, d2 := core.NewDate(2025, 1, 10), core.NewDate(2025, 2, 10)
	kids := []core.Transaction{
		{ID: 30, DueDate: &d2},
		{ID: 20, InstallmentNumber: intPtr(2)},
		{ID: 31, DueDate: &d1},
		{ID: 10, InstallmentNumber: intPtr(1)},
	}
	SortChildren(kids)
	var ids []int64
	for _, k := range kids {
		ids = append(ids, k.ID)
	}
	assert.Equal(t, []int64{10, 20, 31, 30}, ids)
}
