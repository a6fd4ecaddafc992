package sheets

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"nelfy/internal/core"
)

// Columns is the number of columns every exported row spans (A:F).
const Columns = 6

// Report is one user's monthly report as exported to a spreadsheet.
type Report struct {
	JobID        string
	UserName     string
	Month        core.Date
	Stats        []core.CategoryStat
	Transactions []core.Transaction
	GeneratedAt  time.Time
}

// Ports for outbound adapters.
type (
	// ReportExporter writes a report and returns the range it occupies.
	ReportExporter interface {
		ExportReport(ctx context.Context, r Report) (sheetRange string, err error)
	}
)

// Rows flattens r into spreadsheet rows: a title row, one summary row per
// category and one row per transaction. Installment group parents are left
// out; their installments are listed instead.
func Rows(r Report) [][]any {
	month := r.Month.Format("01/2006")
	rows := [][]any{{
		"Relatório " + month,
		r.UserName,
		"",
		"",
		"",
		r.GeneratedAt.Format("02/01/2006 15:04"),
	}}

	stats := append([]core.CategoryStat(nil), r.Stats...)
	core.SortStatsByAmount(stats)
	for _, s := range stats {
		rows = append(rows, []any{month, "Categoria", s.CategoryName, s.TransactionCount, amount(s.TotalAmount), ""})
	}

	for _, t := range r.Transactions {
		if t.IsGroupParent() {
			continue
		}
		date := ""
		switch {
		case t.DueDate != nil:
			date = t.DueDate.Display()
		case t.TransactionDate != nil:
			date = t.TransactionDate.Display()
		}
		category := ""
		if t.Category != nil {
			category = t.Category.Name
		}
		desc := t.Description
		if label := t.InstallmentLabel(); label != "" {
			desc += " (" + label + ")"
		}
		status := "Pendente"
		if t.Settled() {
			status = "Pago"
		}
		rows = append(rows, []any{date, t.Type.Label(), desc, category, amount(t.SignedAmount()), status})
	}
	return rows
}

func amount(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
