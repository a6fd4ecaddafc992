package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// MonthTotals is the compact summary shown at the top of the dashboard.
type MonthTotals struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	// Pending is the sum of expense rows not yet paid.
	Pending decimal.Decimal
	Count   int
}

// Balance is income minus expense.
func (m MonthTotals) Balance() decimal.Decimal {
	return m.Income.Sub(m.Expense)
}

// SumByType totals a monthly listing, which holds installment children
// next to their parents. Parents are skipped so each installment counts once.
func SumByType(txs []Transaction) MonthTotals {
	totals := MonthTotals{Income: decimal.Zero, Expense: decimal.Zero, Pending: decimal.Zero}
	for _, t := range txs {
		if t.IsGroupParent() {
			continue
		}
		totals.Count++
		switch t.Type {
		case Income:
			totals.Income = totals.Income.Add(t.Amount)
		case Expense:
			totals.Expense = totals.Expense.Add(t.Amount)
			if !t.Settled() {
				totals.Pending = totals.Pending.Add(t.Amount)
			}
		}
	}
	return totals
}

// SortStatsByAmount orders category stats by total descending, ties by name.
func SortStatsByAmount(stats []CategoryStat) {
	sort.SliceStable(stats, func(i, j int) bool {
		if c := stats[i].TotalAmount.Cmp(stats[j].TotalAmount); c != 0 {
			return c > 0
		}
		return stats[i].CategoryName < stats[j].CategoryName
	})
}

// StatShares returns each stat's share of the grand total as a whole percent.
// A non-zero share is never rendered below 2 so the bar stays visible.
func StatShares(stats []CategoryStat) []int {
	total := decimal.Zero
	for _, s := range stats {
		total = total.Add(s.TotalAmount)
	}
	out := make([]int, len(stats))
	if !total.IsPositive() {
		return out
	}
	hundred := decimal.NewFromInt(100)
	for i, s := range stats {
		if !s.TotalAmount.IsPositive() {
			continue
		}
		pct := int(s.TotalAmount.Mul(hundred).Div(total).Round(0).IntPart())
		if pct < 2 {
			pct = 2
		}
		if pct > 100 {
			pct = 100
		}
		out[i] = pct
	}
	return out
}
