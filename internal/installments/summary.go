// Package installments reconciles installment groups (a parent transaction
// plus its child installments) into the figures shown on a single row.
package installments

import (
	"github.com/shopspring/decimal"

	"nelfy/internal/core"
)

// Summary holds the derived figures of one installment group.
type Summary struct {
	TotalAmount   decimal.Decimal
	PendingAmount decimal.Decimal
	PaidCount     int
	TotalCount    int
	IsCompleted   bool
	// Approximate is set when PendingAmount was estimated from the backend
	// counts instead of summed from loaded children.
	Approximate bool
}

// DisplayAmount is what the parent row shows: always the outstanding amount.
func (s Summary) DisplayAmount() decimal.Decimal {
	return s.PendingAmount
}

// PaidAmount is the settled part of the group.
func (s Summary) PaidAmount() decimal.Decimal {
	return s.TotalAmount.Sub(s.PendingAmount)
}

// Progress is the share of paid installments as a whole percent.
func (s Summary) Progress() int {
	if s.TotalCount <= 0 {
		return 0
	}
	return s.PaidCount * 100 / s.TotalCount
}

// Summarize derives the group figures for parent.
//
// Loaded children always win: totals are summed from them and unknown paid
// state counts as unpaid. Without children the backend summary is used,
// assuming uniform installments; when the counts are missing (or the total
// count is zero) the whole amount is treated as pending.
func Summarize(parent core.Transaction, children []core.Transaction) Summary {
	if len(children) > 0 {
		return fromChildren(children)
	}
	return fromParent(parent)
}

func fromChildren(children []core.Transaction) Summary {
	s := Summary{TotalAmount: decimal.Zero, PendingAmount: decimal.Zero, TotalCount: len(children)}
	for _, c := range children {
		s.TotalAmount = s.TotalAmount.Add(c.Amount)
		if c.Settled() {
			s.PaidCount++
			continue
		}
		s.PendingAmount = s.PendingAmount.Add(c.Amount)
	}
	s.IsCompleted = s.TotalCount > 0 && s.PaidCount == s.TotalCount
	return s
}

func fromParent(parent core.Transaction) Summary {
	s := Summary{TotalAmount: parent.Amount, PendingAmount: parent.Amount}

	switch {
	case parent.TotalInstallmentsCount != nil:
		s.TotalCount = *parent.TotalInstallmentsCount
	case parent.TotalInstallments != nil:
		s.TotalCount = *parent.TotalInstallments
	}
	if parent.PaidInstallmentsCount != nil {
		s.PaidCount = *parent.PaidInstallmentsCount
	}

	if parent.PaidInstallmentsCount != nil && parent.TotalInstallmentsCount != nil && *parent.TotalInstallmentsCount > 0 {
		total := *parent.TotalInstallmentsCount
		unpaid := total - *parent.PaidInstallmentsCount
		s.Approximate = true
		if unpaid > 0 {
			s.PendingAmount = parent.Amount.
				Mul(decimal.NewFromInt(int64(unpaid))).
				Div(decimal.NewFromInt(int64(total))).
				Round(2)
		} else {
			s.PendingAmount = decimal.Zero
		}
	}

	s.IsCompleted = s.TotalCount > 0 && s.PaidCount == s.TotalCount
	return s
}

// DisplayAmount returns the amount a ledger row shows for tx. Group parents
// show their pending amount; every other transaction shows its own amount.
func DisplayAmount(tx core.Transaction, children []core.Transaction) decimal.Decimal {
	if !tx.IsGroupParent() {
		return tx.Amount
	}
	return Summarize(tx, children).DisplayAmount()
}

// ParentIDs lists the ids of the group parents in txs, in order.
func ParentIDs(txs []core.Transaction) []int64 {
	var ids []int64
	for _, t := range txs {
		if t.IsGroupParent() {
			ids = append(ids, t.ID)
		}
	}
	return ids
}
