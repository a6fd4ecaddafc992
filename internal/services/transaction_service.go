package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"nelfy/internal/amqp"
	"nelfy/internal/api"
	"nelfy/internal/core"
	"nelfy/internal/installments"
	"nelfy/internal/log"
)

// TransactionBackend is what the transactions page needs from the backend
// API, bound to the signed-in user.
type TransactionBackend interface {
	installments.Source
	Transactions(ctx context.Context) ([]core.Transaction, error)
	CreateTransaction(ctx context.Context, in api.NewTransaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error
}

// StatusPublisher announces paid status changes to other replicas.
type StatusPublisher interface {
	PublishStatusChanged(ctx context.Context, msg *amqp.StatusChangedMessage) error
}

// Entry is one top-level row of the transactions page. Group is set for
// installment group parents.
type Entry struct {
	Tx    core.Transaction
	Group *installments.Row
	Due   DueStatus
}

// Amount is what the row shows: the pending amount for a group parent and
// the transaction's own amount otherwise.
func (e Entry) Amount() string {
	if e.Group != nil {
		return core.FormatBRL(e.Group.Summary.DisplayAmount())
	}
	return core.FormatBRL(e.Tx.Amount)
}

// Page is the transactions page model.
type Page struct {
	Entries []Entry
	Totals  core.MonthTotals
	// FailedGroups lists parents whose installments could not be preloaded;
	// they show the summary estimate.
	FailedGroups []int64
}

// TransactionService orchestrates transaction operations across the backend
// API, the per-session installment views and AMQP.
type TransactionService struct {
	presenter *installments.Presenter
	views     *installments.Views
	events    StatusPublisher
	origin    string
	preload   bool
	now       func() time.Time
}

// NewTransactionService creates the service. events may be nil, in which
// case status changes stay local to this replica. origin identifies this
// replica in published events.
func NewTransactionService(presenter *installments.Presenter, views *installments.Views, events StatusPublisher, origin string, preload bool) *TransactionService {
	return &TransactionService{
		presenter: presenter,
		views:     views,
		events:    events,
		origin:    origin,
		preload:   preload,
		now:       time.Now,
	}
}

// Page loads the user's transactions and resets the session's view. With
// preloading enabled every installment group is fetched in parallel before
// the page renders.
func (s *TransactionService) Page(ctx context.Context, backend TransactionBackend, sessionID string) (Page, error) {
	txs, err := backend.Transactions(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("list transactions: %w", err)
	}

	view := s.views.For(sessionID)
	var page Page
	if s.preload {
		batch := s.presenter.Preload(ctx, backend, view, txs)
		for id := range batch.Errors {
			page.FailedGroups = append(page.FailedGroups, id)
		}
		slices.Sort(page.FailedGroups)
	} else {
		view.Reset()
	}

	page.Entries = s.entries(view, txs)
	page.Totals = Totals(page.Entries)
	return page, nil
}

// Totals recomputes the totals bar from the session's view without
// touching its expanded groups.
func (s *TransactionService) Totals(ctx context.Context, backend TransactionBackend, sessionID string) (core.MonthTotals, error) {
	txs, err := backend.Transactions(ctx)
	if err != nil {
		return core.MonthTotals{}, fmt.Errorf("list transactions: %w", err)
	}
	return Totals(s.entries(s.views.For(sessionID), txs)), nil
}

func (s *TransactionService) entries(view *installments.View, txs []core.Transaction) []Entry {
	today := s.now()
	var out []Entry
	for _, tx := range txs {
		if tx.IsGroupChild() {
			continue
		}
		entry := Entry{Tx: tx, Due: ClassifyDue(tx, today)}
		if tx.IsGroupParent() {
			row := s.presenter.Row(view, tx)
			entry.Group = &row
		}
		out = append(out, entry)
	}
	return out
}

// Totals sums the page's rows. A group parent counts with its summary,
// so installments the listing leaves out are still included.
func Totals(entries []Entry) core.MonthTotals {
	totals := core.MonthTotals{Income: decimal.Zero, Expense: decimal.Zero, Pending: decimal.Zero}
	for _, e := range entries {
		amount, pending := e.Tx.Amount, decimal.Zero
		if !e.Tx.Settled() {
			pending = e.Tx.Amount
		}
		if e.Group != nil {
			amount, pending = e.Group.Summary.TotalAmount, e.Group.Summary.PendingAmount
		}
		totals.Count++
		switch e.Tx.Type {
		case core.Income:
			totals.Income = totals.Income.Add(amount)
		case core.Expense:
			totals.Expense = totals.Expense.Add(amount)
			totals.Pending = totals.Pending.Add(pending)
		}
	}
	return totals
}

// ToggleGroup expands or collapses the installment group parentID.
func (s *TransactionService) ToggleGroup(ctx context.Context, backend TransactionBackend, sessionID string, parentID int64) (installments.Row, error) {
	parent, err := backend.Transaction(ctx, parentID)
	if err != nil {
		return installments.Row{}, fmt.Errorf("load transaction %d: %w", parentID, err)
	}
	if !parent.IsGroupParent() {
		return installments.Row{}, fmt.Errorf("transaction %d: %w", parentID, core.ErrInvalidInstallments)
	}
	return s.presenter.Toggle(ctx, backend, s.views.For(sessionID), parent)
}

// SetInstallmentPaid toggles one installment and re-renders its group.
func (s *TransactionService) SetInstallmentPaid(ctx context.Context, backend TransactionBackend, sessionID string, userID, parentID, childID int64, paid bool) (installments.Row, error) {
	row, err := s.presenter.SetPaid(ctx, backend, s.views.For(sessionID), parentID, childID, paid)
	// A row without a parent means the update itself was not applied.
	if err == nil || row.Parent.ID != 0 {
		pid := parentID
		s.publish(ctx, amqp.NewStatusChangedMessage(userID, childID, &pid, paid, s.origin))
	}
	return row, err
}

// SetPaid toggles a transaction outside any group.
func (s *TransactionService) SetPaid(ctx context.Context, backend TransactionBackend, userID, id int64, paid bool) (core.Transaction, error) {
	tx, err := installments.SetPaidSingle(ctx, backend, id, paid)
	if err != nil {
		return core.Transaction{}, err
	}
	s.publish(ctx, amqp.NewStatusChangedMessage(userID, id, tx.ParentTransactionID, paid, s.origin))
	return tx, nil
}

// Create submits a new transaction. The backend creates the installment
// children itself when TotalInstallments is above one.
func (s *TransactionService) Create(ctx context.Context, backend TransactionBackend, in api.NewTransaction) (core.Transaction, error) {
	tx, err := backend.CreateTransaction(ctx, in)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	log.FromContext(ctx).WithComponent(log.ComponentInstallments).InfoContext(ctx, "Transaction created",
		log.FieldOperation, log.OpCreate,
		log.FieldTransactionID, tx.ID)
	return tx, nil
}

// Delete removes a transaction. Deleting a group parent removes the whole
// group, so its cached installments are dropped everywhere.
func (s *TransactionService) Delete(ctx context.Context, backend TransactionBackend, sessionID string, id int64) error {
	if err := backend.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	s.views.For(sessionID).Drop(id)
	s.views.EvictGroup(id)
	return nil
}

// HandleStatusChanged drops cached installments of the changed group from
// every local view. Events published by this replica are ignored.
func (s *TransactionService) HandleStatusChanged(ctx context.Context, msg *amqp.StatusChangedMessage) error {
	if msg.Origin != "" && msg.Origin == s.origin {
		return nil
	}
	n := s.views.EvictGroup(msg.GroupID())
	log.FromContext(ctx).WithComponent(log.ComponentCache).DebugContext(ctx, "Evicted installment group",
		log.FieldParentID, msg.GroupID(),
		log.FieldCount, n)
	return nil
}

func (s *TransactionService) publish(ctx context.Context, msg *amqp.StatusChangedMessage) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentEvents)
	if s.events == nil {
		logger.DebugContext(ctx, "AMQP client not available, skipping status event")
		return
	}
	if err := s.events.PublishStatusChanged(ctx, msg); err != nil {
		// The change is already applied in the backend.
		logger.ErrorContext(ctx, "Failed to publish status event",
			log.FieldTransactionID, msg.TransactionID,
			log.FieldError, err)
	}
}
