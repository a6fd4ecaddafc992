// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for classifying how urgent a
// transaction's due date is. Each status has its own checker; the first
// matching checker in priority order wins.

package services

import (
	"fmt"
	"time"

	"nelfy/internal/core"
)

// DueStatus is the urgency badge shown next to a transaction.
type DueStatus string

const (
	DueNone    DueStatus = "none"
	DuePaid    DueStatus = "paid"
	DueOverdue DueStatus = "overdue"
	DueToday   DueStatus = "today"
	DueSoon    DueStatus = "soon"
	DueLater   DueStatus = "later"
)

// SoonWindow is how many days ahead a due date counts as "soon".
const SoonWindow = 7

// Label is the user-facing badge text.
func (s DueStatus) Label() string {
	switch s {
	case DuePaid:
		return "Pago"
	case DueOverdue:
		return "Vencido"
	case DueToday:
		return "Vence hoje"
	case DueSoon:
		return "Vence em breve"
	case DueLater:
		return "Em aberto"
	}
	return ""
}

// DueChecker is the strategy interface for one due status.
type DueChecker interface {
	// Matches reports whether tx has this status. days is the number of
	// days until the due date and known is false when there is none.
	Matches(tx core.Transaction, days int, known bool) bool
}

// PaidChecker matches settled transactions.
type PaidChecker struct{}

func (PaidChecker) Matches(tx core.Transaction, _ int, _ bool) bool {
	return tx.Settled()
}

// OverdueChecker trusts the backend flag and falls back to the due date.
type OverdueChecker struct{}

func (OverdueChecker) Matches(tx core.Transaction, days int, known bool) bool {
	return tx.IsOverdue || (known && days < 0)
}

// TodayChecker matches transactions due today.
type TodayChecker struct{}

func (TodayChecker) Matches(_ core.Transaction, days int, known bool) bool {
	return known && days == 0
}

// SoonChecker matches transactions due within Window days.
type SoonChecker struct {
	Window int
}

func (c SoonChecker) Matches(_ core.Transaction, days int, known bool) bool {
	return known && days > 0 && days <= c.Window
}

// LaterChecker matches any remaining transaction with a due date.
type LaterChecker struct{}

func (LaterChecker) Matches(_ core.Transaction, _ int, known bool) bool {
	return known
}

// dueOrder is the priority in which checkers are consulted.
var dueOrder = []DueStatus{DuePaid, DueOverdue, DueToday, DueSoon, DueLater}

// duenessStrategies maps statuses to their corresponding checkers.
var duenessStrategies = map[DueStatus]DueChecker{
	DuePaid:    PaidChecker{},
	DueOverdue: OverdueChecker{},
	DueToday:   TodayChecker{},
	DueSoon:    SoonChecker{Window: SoonWindow},
	DueLater:   LaterChecker{},
}

// GetDueChecker returns the checker for a status.
func GetDueChecker(status DueStatus) (DueChecker, error) {
	checker, ok := duenessStrategies[status]
	if !ok {
		return nil, fmt.Errorf("unknown due status: %s", status)
	}
	return checker, nil
}

// ClassifyDue returns the status of tx relative to today.
func ClassifyDue(tx core.Transaction, today time.Time) DueStatus {
	days, known := DaysUntilDue(tx, today)
	for _, status := range dueOrder {
		if duenessStrategies[status].Matches(tx, days, known) {
			return status
		}
	}
	return DueNone
}

// DaysUntilDue prefers the backend's daysUntilDue and otherwise counts
// calendar days from today to the due date.
func DaysUntilDue(tx core.Transaction, today time.Time) (int, bool) {
	if tx.DaysUntilDue != nil {
		return *tx.DaysUntilDue, true
	}
	if tx.DueDate == nil || tx.DueDate.IsZero() {
		return 0, false
	}
	y, m, d := today.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	due := time.Date(tx.DueDate.Year(), tx.DueDate.Month(), tx.DueDate.Day(), 0, 0, 0, 0, time.UTC)
	return int(due.Sub(start).Hours() / 24), true
}
