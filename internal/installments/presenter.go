package installments

import (
	"context"
	"errors"
	"fmt"

	"nelfy/internal/core"
	"nelfy/internal/log"
)

// ErrNotChild is returned when a paid toggle targets a record that does not
// belong to the given group.
var ErrNotChild = errors.New("transaction is not an installment of this group")

// Row is everything needed to render one installment group.
type Row struct {
	Parent   core.Transaction
	Summary  Summary
	State    RowState
	Children []core.Transaction
	// Loaded reports whether Children came from the backend, as opposed to
	// nothing having been fetched yet.
	Loaded bool
}

// Presenter drives the expand and paid-toggle transitions of group rows.
type Presenter struct {
	fetcher *Fetcher
}

// NewPresenter creates a presenter backed by fetcher.
func NewPresenter(fetcher *Fetcher) *Presenter {
	if fetcher == nil {
		fetcher = NewFetcher(DefaultConcurrency)
	}
	return &Presenter{fetcher: fetcher}
}

// Row renders parent from the current view state without any I/O.
func (p *Presenter) Row(view *View, parent core.Transaction) Row {
	children, loaded := view.Children(parent.ID)
	return Row{
		Parent:   parent,
		Summary:  Summarize(parent, children),
		State:    view.State(parent.ID),
		Children: children,
		Loaded:   loaded,
	}
}

// Preload resets the view and loads every group of txs in parallel.
// Groups that fail stay on the summary estimate.
func (p *Presenter) Preload(ctx context.Context, src Source, view *View, txs []core.Transaction) Batch {
	gen := view.Reset()
	batch := p.fetcher.LoadAll(ctx, src, ParentIDs(txs))
	if !view.StoreBatch(gen, batch) {
		log.FromContext(ctx).WithComponent(log.ComponentInstallments).DebugContext(ctx, "Discarding preload for a stale view")
	}
	return batch
}

// Toggle flips a group row between collapsed and expanded. Expanding fetches
// the children only when none are cached; collapsing keeps the cache.
//
// When the fetch fails the row returns to collapsed, the cache is left as it
// was and the error is returned with the row so the caller can show a notice
// next to the unchanged estimate.
func (p *Presenter) Toggle(ctx context.Context, src Source, view *View, parent core.Transaction) (Row, error) {
	gen := view.Generation()
	state, needFetch, ok := view.toggle(gen, parent.ID)
	if !ok {
		return p.Row(view, parent), nil
	}
	if state == Collapsed || !needFetch {
		return p.Row(view, parent), nil
	}

	children, err := p.fetcher.Load(ctx, src, parent.ID)
	if err != nil {
		view.collapse(gen, parent.ID)
		return p.Row(view, parent), err
	}
	if !view.Store(gen, parent.ID, children) {
		// Reset while fetching: render what was fetched without keeping it.
		return Row{
			Parent:   parent,
			Summary:  Summarize(parent, children),
			State:    Expanded,
			Children: children,
			Loaded:   true,
		}, nil
	}
	return p.Row(view, parent), nil
}

// SetPaid marks one installment of parentID paid or unpaid, then reloads the
// group's summary and children before rendering it. Nothing is updated
// unless childID belongs to parentID, and the reload only starts after the
// update has completed.
func (p *Presenter) SetPaid(ctx context.Context, src Source, view *View, parentID, childID int64, paid bool) (Row, error) {
	gen := view.Generation()

	if err := belongs(ctx, src, view, parentID, childID); err != nil {
		return Row{}, err
	}
	if _, err := setPaid(ctx, src, childID, paid); err != nil {
		return Row{}, err
	}

	parent, err := src.Transaction(ctx, parentID)
	if err != nil {
		view.Evict(parentID)
		return Row{}, fmt.Errorf("reload transaction %d: %w", parentID, err)
	}
	children, err := p.fetcher.Load(ctx, src, parentID)
	if err != nil {
		// The cached children predate the update; drop them so the row falls
		// back to the fresh backend summary.
		view.Evict(parentID)
		row := p.Row(view, parent)
		return row, err
	}
	if !view.Store(gen, parentID, children) {
		return Row{
			Parent:   parent,
			Summary:  Summarize(parent, children),
			State:    Expanded,
			Children: children,
			Loaded:   true,
		}, nil
	}

	log.FromContext(ctx).WithComponent(log.ComponentInstallments).InfoContext(ctx, "Installment status changed",
		log.FieldParentID, parentID,
		log.FieldTransactionID, childID,
		log.FieldPaid, paid)
	return p.Row(view, parent), nil
}

// belongs confirms that childID is an installment of parentID, from the
// cached children when they hold it and from the backend otherwise.
func belongs(ctx context.Context, src Source, view *View, parentID, childID int64) error {
	if cached, ok := view.Children(parentID); ok {
		for _, c := range cached {
			if c.ID == childID {
				return nil
			}
		}
	}
	tx, err := src.Transaction(ctx, childID)
	if err != nil {
		return fmt.Errorf("load transaction %d: %w", childID, err)
	}
	if tx.ParentTransactionID == nil || *tx.ParentTransactionID != parentID {
		return fmt.Errorf("%w: %d is not part of %d", ErrNotChild, childID, parentID)
	}
	return nil
}

// SetPaidSingle marks a transaction outside any group paid or unpaid.
func SetPaidSingle(ctx context.Context, src Source, id int64, paid bool) (core.Transaction, error) {
	return setPaid(ctx, src, id, paid)
}

func setPaid(ctx context.Context, src Source, id int64, paid bool) (core.Transaction, error) {
	var (
		tx  core.Transaction
		err error
	)
	if paid {
		tx, err = src.MarkPaid(ctx, id)
	} else {
		tx, err = src.MarkUnpaid(ctx, id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("set paid=%t on transaction %d: %w", paid, id, err)
	}
	return tx, nil
}
