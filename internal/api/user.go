package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"nelfy/internal/core"
)

// NewTransaction is the body of POST /transactions. TotalInstallments above
// one makes the backend create an installment group.
type NewTransaction struct {
	Description       string               `json:"description"`
	Amount            decimal.Decimal      `json:"amount"`
	Type              core.TransactionType `json:"type"`
	Category          *CategoryRef         `json:"category"`
	IsPaid            bool                 `json:"isPaid"`
	TotalInstallments *int                 `json:"totalInstallments"`
	DueDate           core.Date            `json:"dueDate"`
	TransactionDate   core.Date            `json:"transactionDate"`
}

// CategoryRef references an existing category by id.
type CategoryRef struct {
	ID int64 `json:"id"`
}

// UserClient issues calls on behalf of one signed-in user.
type UserClient struct {
	c     *Client
	token string
}

// As binds the client to a bearer token.
func (c *Client) As(token string) *UserClient {
	return &UserClient{c: c, token: token}
}

func (u *UserClient) get(ctx context.Context, path string, query url.Values, out any) error {
	return u.c.do(ctx, u.token, http.MethodGet, path, query, nil, out)
}

func (u *UserClient) put(ctx context.Context, path string, out any) error {
	return u.c.do(ctx, u.token, http.MethodPut, path, nil, nil, out)
}

func monthQuery(month core.Date) url.Values {
	return url.Values{"month": {month.FirstOfMonth().String()}}
}

// Transactions lists the user's transactions.
func (u *UserClient) Transactions(ctx context.Context) ([]core.Transaction, error) {
	var out []core.Transaction
	err := u.get(ctx, "/transactions", nil, &out)
	return out, err
}

// Transaction returns one transaction, including the installment counts of
// a group parent.
func (u *UserClient) Transaction(ctx context.Context, id int64) (core.Transaction, error) {
	var out core.Transaction
	err := u.get(ctx, fmt.Sprintf("/transactions/%d", id), nil, &out)
	return out, err
}

// CreateTransaction creates a transaction or an installment group.
func (u *UserClient) CreateTransaction(ctx context.Context, in NewTransaction) (core.Transaction, error) {
	var out core.Transaction
	err := u.c.do(ctx, u.token, http.MethodPost, "/transactions", nil, in, &out)
	return out, err
}

// DeleteTransaction deletes a transaction; deleting a parent deletes the group.
func (u *UserClient) DeleteTransaction(ctx context.Context, id int64) error {
	return u.c.do(ctx, u.token, http.MethodDelete, fmt.Sprintf("/transactions/%d", id), nil, nil, nil)
}

// Installments returns the children of a group parent in backend order.
func (u *UserClient) Installments(ctx context.Context, parentID int64) ([]core.Transaction, error) {
	var out []core.Transaction
	err := u.get(ctx, fmt.Sprintf("/transactions/%d/installments", parentID), nil, &out)
	return out, err
}

func (u *UserClient) MarkPaid(ctx context.Context, id int64) (core.Transaction, error) {
	var out core.Transaction
	err := u.put(ctx, fmt.Sprintf("/transactions/%d/mark-paid", id), &out)
	return out, err
}

func (u *UserClient) MarkUnpaid(ctx context.Context, id int64) (core.Transaction, error) {
	var out core.Transaction
	err := u.put(ctx, fmt.Sprintf("/transactions/%d/mark-unpaid", id), &out)
	return out, err
}

// Upcoming lists unpaid transactions due soon.
func (u *UserClient) Upcoming(ctx context.Context) ([]core.Transaction, error) {
	var out []core.Transaction
	err := u.get(ctx, "/transactions/upcoming", nil, &out)
	return out, err
}

// Overdue lists unpaid transactions past their due date.
func (u *UserClient) Overdue(ctx context.Context) ([]core.Transaction, error) {
	var out []core.Transaction
	err := u.get(ctx, "/transactions/overdue", nil, &out)
	return out, err
}

// Monthly lists the transactions of the month containing month.
func (u *UserClient) Monthly(ctx context.Context, month core.Date) ([]core.Transaction, error) {
	var out []core.Transaction
	err := u.get(ctx, "/transactions/monthly", monthQuery(month), &out)
	return out, err
}

// CategoryStats returns per-category totals of the month containing month.
func (u *UserClient) CategoryStats(ctx context.Context, month core.Date) ([]core.CategoryStat, error) {
	var out []core.CategoryStat
	err := u.get(ctx, "/transactions/monthly/category-stats", monthQuery(month), &out)
	return out, err
}

// BudgetAlerts lists the budgets whose alert threshold was crossed.
func (u *UserClient) BudgetAlerts(ctx context.Context) ([]core.Budget, error) {
	var out []core.Budget
	err := u.get(ctx, "/budgets/alerts", nil, &out)
	return out, err
}

func (u *UserClient) Categories(ctx context.Context) ([]core.Category, error) {
	var out []core.Category
	err := u.get(ctx, "/categories", nil, &out)
	return out, err
}

func (u *UserClient) UnreadNotifications(ctx context.Context) ([]core.Notification, error) {
	var out []core.Notification
	err := u.get(ctx, "/notifications/unread", nil, &out)
	return out, err
}

func (u *UserClient) UnreadCount(ctx context.Context) (int64, error) {
	var out int64
	err := u.get(ctx, "/notifications/unread/count", nil, &out)
	return out, err
}

func (u *UserClient) MarkNotificationRead(ctx context.Context, id int64) error {
	return u.put(ctx, fmt.Sprintf("/notifications/%d/read", id), nil)
}

func (u *UserClient) MarkAllNotificationsRead(ctx context.Context) error {
	return u.put(ctx, "/notifications/read-all", nil)
}
