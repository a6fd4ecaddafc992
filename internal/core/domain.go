package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"
)

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

const (
	NotificationBillReminder NotificationType = "BILL_REMINDER"
	NotificationBudgetAlert  NotificationType = "BUDGET_ALERT"
	NotificationGoalUpdate   NotificationType = "GOAL_UPDATE"
)

// PaidState is the explicit form of the backend's nullable isPaid flag.
const (
	PaidUnknown PaidState = iota
	Unpaid
	Paid
)

// DateLayout is the wire format of every date exchanged with the backend.
const DateLayout = "2006-01-02"

type (
	TransactionType  string
	Role             string
	NotificationType string
	PaidState        int8

	Date struct {
		time.Time
	}

	Category struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Icon  string `json:"icon,omitempty"`
		Color string `json:"color,omitempty"`
	}

	Transaction struct {
		ID                     int64           `json:"id"`
		Description            string          `json:"description"`
		Amount                 decimal.Decimal `json:"amount"`
		Type                   TransactionType `json:"type"`
		TransactionDate        *Date           `json:"transactionDate,omitempty"`
		DueDate                *Date           `json:"dueDate,omitempty"`
		PaidDate               *Date           `json:"paidDate,omitempty"`
		Category               *Category       `json:"category,omitempty"`
		AccountID              *int64          `json:"accountId,omitempty"`
		IsPaid                 PaidState       `json:"isPaid"`
		IsInstallment          bool            `json:"isInstallment"`
		ParentTransactionID    *int64          `json:"parentTransactionId,omitempty"`
		InstallmentNumber      *int            `json:"installmentNumber,omitempty"`
		TotalInstallments      *int            `json:"totalInstallments,omitempty"`
		PaidInstallmentsCount  *int            `json:"paidInstallmentsCount,omitempty"`
		TotalInstallmentsCount *int            `json:"totalInstallmentsCount,omitempty"`
		DaysUntilDue           *int            `json:"daysUntilDue,omitempty"`
		IsOverdue              bool            `json:"isOverdue"`
	}

	Budget struct {
		ID              int64           `json:"id"`
		Name            string          `json:"name"`
		LimitAmount     decimal.Decimal `json:"limitAmount"`
		StartDate       *Date           `json:"startDate,omitempty"`
		EndDate         *Date           `json:"endDate,omitempty"`
		Category        *Category       `json:"category,omitempty"`
		AlertPercentage int             `json:"alertPercentage"`
		IsActive        bool            `json:"isActive"`
		CurrentSpent    decimal.Decimal `json:"currentSpent"`
		Remaining       decimal.Decimal `json:"remaining"`
		PercentageUsed  decimal.Decimal `json:"percentageUsed"`
		AlertTriggered  bool            `json:"alertTriggered"`
	}

	Notification struct {
		ID                   int64            `json:"id"`
		Title                string           `json:"title"`
		Message              string           `json:"message"`
		Type                 NotificationType `json:"type"`
		IsRead               bool             `json:"isRead"`
		ReadAt               *time.Time       `json:"readAt,omitempty"`
		RelatedTransactionID *int64           `json:"relatedTransactionId,omitempty"`
		CreatedAt            time.Time        `json:"createdAt"`
	}

	CategoryStat struct {
		CategoryID       *int64          `json:"categoryId,omitempty"`
		CategoryName     string          `json:"categoryName"`
		CategoryIcon     string          `json:"categoryIcon,omitempty"`
		CategoryColor    string          `json:"categoryColor,omitempty"`
		TotalAmount      decimal.Decimal `json:"totalAmount"`
		TransactionCount int             `json:"transactionCount"`
	}

	User struct {
		ID           int64  `json:"id"`
		Name         string `json:"name"`
		Email        string `json:"email"`
		Role         Role   `json:"role"`
		ReferralCode string `json:"referralCode,omitempty"`
	}
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrEmptyDescription    = errors.New("empty description")
	ErrInvalidType         = errors.New("invalid transaction type")
	ErrInvalidInstallments = errors.New("invalid number of installments")
	ErrInvalidDate         = errors.New("invalid date")
	ErrDescriptionTooLong  = errors.New("description too long (max 200 characters)")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a yyyy-MM-dd string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Display renders the date the way the UI shows it (dd/MM/yyyy).
func (d Date) Display() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("02/01/2006")
}

// FirstOfMonth returns the first day of the month d falls in.
func (d Date) FirstOfMonth() Date {
	return NewDate(d.Year(), int(d.Month()), 1)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(DateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, data)
	}
	if s == "" {
		return nil
	}
	// Some endpoints send full timestamps; keep the calendar day.
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (p PaidState) MarshalJSON() ([]byte, error) {
	switch p {
	case Paid:
		return []byte("true"), nil
	case Unpaid:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (p *PaidState) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true":
		*p = Paid
	case "false":
		*p = Unpaid
	case "null":
		*p = PaidUnknown
	default:
		return fmt.Errorf("invalid isPaid value %s", data)
	}
	return nil
}

// PaidStateOf converts a plain bool into a PaidState.
func PaidStateOf(paid bool) PaidState {
	if paid {
		return Paid
	}
	return Unpaid
}

// Settled reports whether the record is explicitly marked paid.
// Unknown counts as unpaid everywhere money is summed.
func (t Transaction) Settled() bool {
	return t.IsPaid == Paid
}

// IsGroupParent reports whether t is the parent row of an installment group.
// A parent's own amount is never part of a sum: its children carry the value.
func (t Transaction) IsGroupParent() bool {
	if t.ParentTransactionID != nil {
		return false
	}
	if t.IsInstallment {
		return true
	}
	return t.TotalInstallments != nil && *t.TotalInstallments > 1
}

// IsGroupChild reports whether t is a single installment of a group.
func (t Transaction) IsGroupChild() bool {
	return t.ParentTransactionID != nil
}

// InstallmentLabel renders "3/10" for a child installment.
func (t Transaction) InstallmentLabel() string {
	if t.InstallmentNumber == nil || t.TotalInstallments == nil {
		return ""
	}
	return fmt.Sprintf("%d/%d", *t.InstallmentNumber, *t.TotalInstallments)
}

// SignedAmount returns the amount with expenses negated.
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.Type == Expense {
		return t.Amount.Neg()
	}
	return t.Amount
}

func (tt TransactionType) Validate() error {
	switch tt {
	case Income, Expense:
		return nil
	}
	return ErrInvalidType
}

// Label is the user-facing name of the type.
func (tt TransactionType) Label() string {
	switch tt {
	case Income:
		return "Receita"
	case Expense:
		return "Despesa"
	}
	return string(tt)
}

// Normalize upper-cases the role; an unknown role degrades to USER.
func (r Role) Normalize() Role {
	switch up := Role(strings.ToUpper(strings.TrimSpace(string(r)))); up {
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

func (u User) IsAdmin() bool {
	return u.Role.Normalize() == RoleAdmin
}

// Initials returns up to two upper-case initials for avatars.
func (u User) Initials() string {
	fields := strings.Fields(u.Name)
	if len(fields) == 0 {
		if u.Email != "" {
			return strings.ToUpper(u.Email[:1])
		}
		return "?"
	}
	out := []rune(fields[0])[:1]
	if len(fields) > 1 {
		out = append(out, []rune(fields[len(fields)-1])[:1]...)
	}
	return strings.ToUpper(string(out))
}

// Icon maps a notification type to the glyph used in the dropdown.
func (nt NotificationType) Icon() string {
	switch nt {
	case NotificationBillReminder:
		return "📅"
	case NotificationBudgetAlert:
		return "⚠️"
	case NotificationGoalUpdate:
		return "🎯"
	}
	return "🔔"
}

// ExportStatus is the lifecycle of a report export.
type ExportStatus string

const (
	ExportPending ExportStatus = "PENDING"
	ExportDone    ExportStatus = "DONE"
	ExportFailed  ExportStatus = "FAILED"
)

// ExportJob tracks one export of a monthly report to the spreadsheet.
type ExportJob struct {
	ID         string
	UserID     int64
	Month      Date
	Status     ExportStatus
	SheetRange string
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Finished reports whether the job reached a final status.
func (j ExportJob) Finished() bool {
	return j.Status == ExportDone || j.Status == ExportFailed
}
