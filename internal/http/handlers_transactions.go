package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"nelfy/internal/api"
	"nelfy/internal/core"
	"nelfy/internal/installments"
	"nelfy/internal/log"
	"nelfy/internal/services"
)

// TransactionsData is the transactions page model.
type TransactionsData struct {
	Page       services.Page
	Categories []core.Category
	Form       TransactionFormData
}

// TransactionFormData re-renders the create form with what was submitted.
type TransactionFormData struct {
	Values     url.Values
	Errors     FormErrors
	Categories []core.Category
}

// Value returns the submitted value of a form field.
func (f TransactionFormData) Value(name string) string {
	return f.Values.Get(name)
}

// categories lists the categories for the create form. The form still works
// without them, so failures are only logged.
func (s *Server) categories(ctx context.Context, backend UserAPI) []core.Category {
	cats, err := backend.Categories(ctx)
	if err != nil {
		log.FromContext(ctx).WithComponent(log.ComponentAPI).WarnContext(ctx, "Failed to load categories", log.FieldError, err)
		return nil
	}
	return cats
}

// handleTransactions renders the transactions page. Navigating here
// discards the session's expanded rows and cached installments.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := currentSession(r)
	backend := s.backendFor(sess)

	page, err := s.deps.Transactions.Page(ctx, backend, sess.ID)
	if err != nil {
		s.backendError(w, r, err)
		return
	}
	cats := s.categories(ctx, backend)

	data := PageData{
		Title: "Transações",
		Nav:   "transactions",
		Content: TransactionsData{
			Page:       page,
			Categories: cats,
			Form:       TransactionFormData{Categories: cats},
		},
	}
	if len(page.FailedGroups) > 0 {
		data.Notice = "Não foi possível carregar algumas parcelas. Os valores marcados com ≈ são estimativas."
	}
	s.page(w, r, http.StatusOK, "transactions", data)
}

// handleTransactionList re-renders the list after a create or delete.
func (s *Server) handleTransactionList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := currentSession(r)

	page, err := s.deps.Transactions.Page(ctx, s.backendFor(sess), sess.ID)
	if err != nil {
		s.backendError(w, r, err)
		return
	}
	s.writeFragment(w, r, NewHTMXResponse(), "tx_list", page)
}

// handleTransactionTotals re-renders the totals bar after a status change.
func (s *Server) handleTransactionTotals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := currentSession(r)
	totals, err := s.deps.Transactions.Totals(ctx, s.backendFor(sess), sess.ID)
	if err != nil {
		s.backendError(w, r, err)
		return
	}
	s.writeFragment(w, r, NewHTMXResponse(), "tx_totals", totals)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := currentSession(r)
	backend := s.backendFor(sess)

	if err := r.ParseForm(); err != nil {
		BadRequestError("Formato da requisição inválido.").Write(w)
		return
	}

	in, err := ParseTransactionForm(r.PostForm, s.now())
	var fe FormErrors
	if errors.As(err, &fe) {
		form := TransactionFormData{Values: r.PostForm, Errors: fe, Categories: s.categories(ctx, backend)}
		if !isHTMX(r) {
			s.renderTransactionsWithForm(w, r, form)
			return
		}
		b := NewHTMXResponse().TriggerErrorNotification("Verifique os campos destacados.")
		s.writeFragment(w, r, b, "tx_form", form)
		return
	}

	tx, err := s.deps.Transactions.Create(ctx, backend, in)
	if err != nil {
		s.backendError(w, r, err)
		return
	}
	s.metrics.transactionsCreated.Add(1)
	s.refreshAlerts(ctx, sess)

	if !isHTMX(r) {
		http.Redirect(w, r, "/transactions", http.StatusSeeOther)
		return
	}
	msg := "Transação criada."
	if tx.IsGroupParent() || in.TotalInstallments != nil {
		msg = "Transação parcelada criada."
	}
	b := NewHTMXResponse().
		TriggerTransactionsChanged().
		TriggerFormReset().
		TriggerSuccessNotification(msg)
	s.writeFragment(w, r, b, "tx_form", TransactionFormData{Categories: s.categories(ctx, backend)})
}

// renderTransactionsWithForm shows the full page with a rejected form, for
// browsers without htmx.
func (s *Server) renderTransactionsWithForm(w http.ResponseWriter, r *http.Request, form TransactionFormData) {
	ctx := r.Context()
	sess := currentSession(r)

	page, err := s.deps.Transactions.Page(ctx, s.backendFor(sess), sess.ID)
	if err != nil {
		s.backendError(w, r, err)
		return
	}
	s.page(w, r, http.StatusUnprocessableEntity, "transactions", PageData{
		Title:   "Transações",
		Nav:     "transactions",
		Error:   "Verifique os campos destacados.",
		Content: TransactionsData{Page: page, Categories: form.Categories, Form: form},
	})
}

// handleDeleteTransaction deletes a transaction. Deleting a group parent
// deletes its installments too.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := currentSession(r)
	id, err := pathID(r, "id")
	if err != nil {
		BadRequestError("Transação inválida.").Write(w)
		return
	}

	if err := s.deps.Transactions.Delete(ctx, s.backendFor(sess), sess.ID, id); err != nil {
		s.backendError(w, r, err)
		return
	}
	s.metrics.transactionsDeleted.Add(1)
	s.refreshAlerts(ctx, sess)
	log.FromContext(ctx).WithComponent(log.ComponentHTTP).InfoContext(ctx, "Transaction deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldTransactionID, id)

	if !isHTMX(r) {
		http.Redirect(w, r, "/transactions", http.StatusSeeOther)
		return
	}
	NewHTMXResponse().
		TriggerTransactionsChanged().
		TriggerSuccessNotification("Transação excluída.").
		Write(w)
}

// handleToggleGroup expands or collapses an installment group. A failed
// expand re-renders the collapsed row with its estimate and a notice.
func (s *Server) handleToggleGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := currentSession(r)
	id, err := pathID(r, "id")
	if err != nil {
		BadRequestError("Transação inválida.").Write(w)
		return
	}

	row, err := s.deps.Transactions.ToggleGroup(ctx, s.backendFor(sess), sess.ID, id)
	s.writeGroup(w, r, row, err, nil)
}

// handleSetInstallmentPaid marks one installment paid or unpaid and
// re-renders its whole group with the reloaded summary.
func (s *Server) handleSetInstallmentPaid(paid bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess := currentSession(r)
		parentID, err := pathID(r, "parent")
		if err != nil {
			BadRequestError("Transação inválida.").Write(w)
			return
		}
		childID, err := pathID(r, "id")
		if err != nil {
			BadRequestError("Parcela inválida.").Write(w)
			return
		}

		row, err := s.deps.Transactions.SetInstallmentPaid(ctx, s.backendFor(sess), sess.ID, sess.User.ID, parentID, childID, paid)
		if err == nil || row.Parent.ID != 0 {
			s.metrics.statusToggles.Add(1)
			s.refreshAlerts(ctx, sess)
		}
		s.writeGroup(w, r, row, err, NewHTMXResponse().TriggerTotalsRefresh())
	}
}

// writeGroup renders a group row. When err is set and the row carries no
// parent, nothing was applied and the error is reported as is. A rejected
// token ends the session even when the row could still be rendered.
func (s *Server) writeGroup(w http.ResponseWriter, r *http.Request, row installments.Row, err error, b *HTMXResponseBuilder) {
	if errors.Is(err, api.ErrUnauthorized) {
		s.expireSession(w, r)
		return
	}
	if err != nil && row.Parent.ID == 0 {
		if errors.Is(err, core.ErrInvalidInstallments) || errors.Is(err, installments.ErrNotChild) {
			NewHTMXResponse().Status(http.StatusUnprocessableEntity).Reswap("none").
				TriggerErrorNotification("Esta transação não é um parcelamento.").
				Write(w)
			return
		}
		s.backendError(w, r, err)
		return
	}
	if b == nil {
		b = NewHTMXResponse()
	}
	if err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentInstallments).WarnContext(r.Context(), "Failed to load installments",
			log.FieldParentID, row.Parent.ID,
			log.FieldError, err)
		b.TriggerErrorNotification("Não foi possível carregar as parcelas. " + api.NoticeFor(err))
	}
	s.writeFragment(w, r, b, "tx_group", services.Entry{Tx: row.Parent, Group: &row, Due: services.ClassifyDue(row.Parent, s.now())})
}

// handleSetPaid toggles a transaction outside any group and re-renders it.
func (s *Server) handleSetPaid(paid bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess := currentSession(r)
		id, err := pathID(r, "id")
		if err != nil {
			BadRequestError("Transação inválida.").Write(w)
			return
		}

		tx, err := s.deps.Transactions.SetPaid(ctx, s.backendFor(sess), sess.User.ID, id, paid)
		if err != nil {
			s.backendError(w, r, err)
			return
		}
		s.metrics.statusToggles.Add(1)
		s.refreshAlerts(ctx, sess)

		msg := "Transação marcada como pendente."
		if paid {
			msg = "Transação marcada como paga."
		}
		b := NewHTMXResponse().TriggerTotalsRefresh().TriggerSuccessNotification(msg)
		s.writeFragment(w, r, b, "tx_entry", services.Entry{Tx: tx, Due: services.ClassifyDue(tx, s.now())})
	}
}
