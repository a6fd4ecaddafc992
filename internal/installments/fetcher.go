package installments

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"nelfy/internal/core"
	"nelfy/internal/log"
)

// Source is the slice of the backend API the installment rows need. It is
// bound to one signed-in user.
type Source interface {
	Installments(ctx context.Context, parentID int64) ([]core.Transaction, error)
	Transaction(ctx context.Context, id int64) (core.Transaction, error)
	MarkPaid(ctx context.Context, id int64) (core.Transaction, error)
	MarkUnpaid(ctx context.Context, id int64) (core.Transaction, error)
}

// DefaultConcurrency bounds the number of parallel child fetches on page load.
const DefaultConcurrency = 8

// Fetcher retrieves the children of installment groups.
type Fetcher struct {
	concurrency int
}

// NewFetcher creates a fetcher issuing at most concurrency requests at once.
func NewFetcher(concurrency int) *Fetcher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Fetcher{concurrency: concurrency}
}

// Load returns the children of parentID ordered by installment number.
func (f *Fetcher) Load(ctx context.Context, src Source, parentID int64) ([]core.Transaction, error) {
	start := time.Now()
	children, err := src.Installments(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("load installments of transaction %d: %w", parentID, err)
	}
	SortChildren(children)

	log.FromContext(ctx).WithComponent(log.ComponentInstallments).DebugContext(ctx, "Installments loaded",
		log.FieldParentID, parentID,
		log.FieldCount, len(children),
		log.FieldDuration, time.Since(start).Milliseconds())
	return children, nil
}

// Batch is the outcome of loading several groups at once. A parent is in
// exactly one of the two maps.
type Batch struct {
	Children map[int64][]core.Transaction
	Errors   map[int64]error
}

// Failed reports whether any group could not be loaded.
func (b Batch) Failed() bool {
	return len(b.Errors) > 0
}

// LoadAll loads every group in parallel and waits for the whole batch.
// A failing group never discards the others.
func (f *Fetcher) LoadAll(ctx context.Context, src Source, parentIDs []int64) Batch {
	batch := Batch{
		Children: make(map[int64][]core.Transaction, len(parentIDs)),
		Errors:   make(map[int64]error),
	}
	if len(parentIDs) == 0 {
		return batch
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(f.concurrency)

	for _, id := range parentIDs {
		g.Go(func() error {
			children, err := f.Load(ctx, src, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				batch.Errors[id] = err
				return nil
			}
			batch.Children[id] = children
			return nil
		})
	}
	_ = g.Wait()

	if batch.Failed() {
		log.FromContext(ctx).WithComponent(log.ComponentInstallments).WarnContext(ctx, "Some installment groups failed to load",
			log.FieldCount, len(parentIDs),
			"failed", len(batch.Errors))
	}
	return batch
}

// SortChildren orders installments by number; records without a number go
// last, ordered by due date and then id.
func SortChildren(children []core.Transaction) {
	sort.SliceStable(children, func(i, j int) bool {
		a, b := children[i], children[j]
		switch {
		case a.InstallmentNumber != nil && b.InstallmentNumber != nil:
			if *a.InstallmentNumber != *b.InstallmentNumber {
				return *a.InstallmentNumber < *b.InstallmentNumber
			}
		case a.InstallmentNumber != nil:
			return true
		case b.InstallmentNumber != nil:
			return false
		}
		if a.DueDate != nil && b.DueDate != nil && !a.DueDate.Equal(b.DueDate.Time) {
			return a.DueDate.Before(b.DueDate.Time)
		}
		return a.ID < b.ID
	})
}
