package services

import (
	"testing"
	"time"

	"nelfy/internal/core"
)

func dueOn(y, m, d int) *core.Date {
	date := core.NewDate(y, m, d)
	return &date
}

func TestClassifyDue(t *testing.T) {
	today := time.Date(2024, 1, 15, 21, 30, 0, 0, time.Local)
	three := 3
	minusTwo := -2

	tests := []struct {
		name string
		tx   core.Transaction
		want DueStatus
	}{
		{
			name: "no due date",
			tx:   core.Transaction{},
			want: DueNone,
		},
		{
			name: "paid wins over overdue",
			tx:   core.Transaction{IsPaid: core.Paid, IsOverdue: true, DueDate: dueOn(2024, 1, 1)},
			want: DuePaid,
		},
		{
			name: "backend overdue flag",
			tx:   core.Transaction{IsOverdue: true},
			want: DueOverdue,
		},
		{
			name: "past due date",
			tx:   core.Transaction{DueDate: dueOn(2024, 1, 14)},
			want: DueOverdue,
		},
		{
			name: "due today",
			tx:   core.Transaction{DueDate: dueOn(2024, 1, 15)},
			want: DueToday,
		},
		{
			name: "due in a week",
			tx:   core.Transaction{DueDate: dueOn(2024, 1, 22)},
			want: DueSoon,
		},
		{
			name: "due in eight days",
			tx:   core.Transaction{DueDate: dueOn(2024, 1, 23)},
			want: DueLater,
		},
		{
			name: "backend days win over the date",
			tx:   core.Transaction{DueDate: dueOn(2024, 3, 1), DaysUntilDue: &three},
			want: DueSoon,
		},
		{
			name: "negative backend days",
			tx:   core.Transaction{DaysUntilDue: &minusTwo},
			want: DueOverdue,
		},
		{
			name: "unknown paid state counts as unpaid",
			tx:   core.Transaction{IsPaid: core.PaidUnknown, DueDate: dueOn(2024, 1, 15)},
			want: DueToday,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyDue(tt.tx, today); got != tt.want {
				t.Errorf("ClassifyDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDaysUntilDue(t *testing.T) {
	today := time.Date(2024, 2, 28, 23, 59, 0, 0, time.UTC)
	days, ok := DaysUntilDue(core.Transaction{DueDate: dueOn(2024, 3, 1)}, today)
	if !ok || days != 2 {
		t.Errorf("DaysUntilDue() = %d, %v; want 2, true (leap year)", days, ok)
	}
	if _, ok := DaysUntilDue(core.Transaction{}, today); ok {
		t.Error("DaysUntilDue() without a due date should report unknown")
	}
}

func TestGetDueChecker(t *testing.T) {
	for _, status := range []DueStatus{DuePaid, DueOverdue, DueToday, DueSoon, DueLater} {
		if _, err := GetDueChecker(status); err != nil {
			t.Errorf("GetDueChecker(%s) error = %v", status, err)
		}
	}
	if _, err := GetDueChecker("weekly"); err == nil {
		t.Error("GetDueChecker() should fail for unknown status")
	}
}

func TestDueStatusLabel(t *testing.T) {
	if DueOverdue.Label() != "Vencido" {
		t.Errorf("Label() = %q", DueOverdue.Label())
	}
	if DueNone.Label() != "" {
		t.Errorf("DueNone.Label() = %q, want empty", DueNone.Label())
	}
}
