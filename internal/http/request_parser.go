// This file parses and validates form submissions. Struct tags carry the
// rules; messages shown to the user are Portuguese.

package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"nelfy/internal/api"
	"nelfy/internal/core"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoginForm is the login page submission.
type LoginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// RegisterForm is the register page submission.
type RegisterForm struct {
	Name            string `validate:"required,max=100"`
	Email           string `validate:"required,email"`
	Password        string `validate:"required,min=6"`
	ConfirmPassword string `validate:"eqfield=Password"`
	ReferralCode    string `validate:"omitempty,alphanum,max=32"`
}

// TransactionForm is the create-transaction submission. Amount is kept as
// typed and parsed by core.ParseAmount.
type TransactionForm struct {
	Description       string `validate:"required,max=200"`
	Amount            string `validate:"required"`
	Type              string `validate:"required,oneof=INCOME EXPENSE"`
	CategoryID        int64  `validate:"omitempty,gt=0"`
	DueDate           string `validate:"omitempty,datetime=2006-01-02"`
	TransactionDate   string `validate:"omitempty,datetime=2006-01-02"`
	TotalInstallments int    `validate:"omitempty,min=1,max=120"`
	IsPaid            bool
}

// FormErrors maps a form field to the message shown under it.
type FormErrors map[string]string

func (e FormErrors) Error() string {
	parts := make([]string, 0, len(e))
	for field, msg := range e {
		parts = append(parts, field+": "+msg)
	}
	return strings.Join(parts, "; ")
}

// ParseLoginForm reads and validates the login form.
func ParseLoginForm(form url.Values) (api.LoginRequest, error) {
	f := LoginForm{
		Email:    strings.ToLower(sanitizeInput(form.Get("email"))),
		Password: form.Get("password"),
	}
	if err := check(f); err != nil {
		return api.LoginRequest{}, err
	}
	return api.LoginRequest{Email: f.Email, Password: f.Password}, nil
}

// ParseRegisterForm reads and validates the register form.
func ParseRegisterForm(form url.Values) (api.RegisterRequest, error) {
	f := RegisterForm{
		Name:            sanitizeInput(form.Get("name")),
		Email:           strings.ToLower(sanitizeInput(form.Get("email"))),
		Password:        form.Get("password"),
		ConfirmPassword: form.Get("confirmPassword"),
		ReferralCode:    strings.ToUpper(sanitizeInput(form.Get("referralCode"))),
	}
	if err := check(f); err != nil {
		return api.RegisterRequest{}, err
	}
	return api.RegisterRequest{Name: f.Name, Email: f.Email, Password: f.Password, ReferralCode: f.ReferralCode}, nil
}

// ParseTransactionForm reads and validates the create-transaction form.
// Missing dates default to today; the due date defaults to the transaction
// date.
func ParseTransactionForm(form url.Values, today time.Time) (api.NewTransaction, error) {
	f := TransactionForm{
		Description:     sanitizeInput(form.Get("description")),
		Amount:          strings.TrimSpace(form.Get("amount")),
		Type:            strings.ToUpper(strings.TrimSpace(form.Get("type"))),
		DueDate:         strings.TrimSpace(form.Get("dueDate")),
		TransactionDate: strings.TrimSpace(form.Get("transactionDate")),
		IsPaid:          form.Get("isPaid") == "on" || form.Get("isPaid") == "true",
	}
	errs := FormErrors{}
	if v := strings.TrimSpace(form.Get("categoryId")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs["CategoryID"] = "Categoria inválida"
		}
		f.CategoryID = id
	}
	if v := strings.TrimSpace(form.Get("totalInstallments")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs["TotalInstallments"] = "Número de parcelas inválido"
		}
		f.TotalInstallments = n
	}

	if err := check(f); err != nil {
		var fe FormErrors
		if errors.As(err, &fe) {
			for k, v := range fe {
				errs[k] = v
			}
		}
	}
	amount, err := core.ParseAmount(f.Amount)
	if err != nil && errs["Amount"] == "" {
		errs["Amount"] = "Valor inválido"
	}
	if len(errs) > 0 {
		return api.NewTransaction{}, errs
	}

	txDate := core.NewDate(today.Year(), int(today.Month()), today.Day())
	if f.TransactionDate != "" {
		txDate, _ = core.ParseDate(f.TransactionDate)
	}
	dueDate := txDate
	if f.DueDate != "" {
		dueDate, _ = core.ParseDate(f.DueDate)
	}

	out := api.NewTransaction{
		Description:     f.Description,
		Amount:          amount,
		Type:            core.TransactionType(f.Type),
		IsPaid:          f.IsPaid,
		DueDate:         dueDate,
		TransactionDate: txDate,
	}
	if f.CategoryID > 0 {
		out.Category = &api.CategoryRef{ID: f.CategoryID}
	}
	if f.TotalInstallments > 1 {
		n := f.TotalInstallments
		out.TotalInstallments = &n
		// Installments are settled one by one.
		out.IsPaid = false
	}
	return out, nil
}

// check runs the validator and converts its errors into FormErrors.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := FormErrors{}
	for _, fe := range verrs {
		out[fe.Field()] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Campo obrigatório"
	case "email":
		return "Email inválido"
	case "min":
		return fmt.Sprintf("Mínimo de %s caracteres", fe.Param())
	case "max":
		return fmt.Sprintf("Máximo de %s caracteres", fe.Param())
	case "eqfield":
		return "As senhas não coincidem"
	case "oneof":
		return "Selecione uma opção válida"
	case "datetime":
		return "Data inválida"
	case "alphanum":
		return "Use apenas letras e números"
	}
	return "Valor inválido"
}

// ParseMonth reads ?month=YYYY-MM (or a full date) and falls back to the
// month of now.
func ParseMonth(query url.Values, now time.Time) core.Date {
	v := strings.TrimSpace(query.Get("month"))
	if v != "" {
		if t, err := time.Parse("2006-01", v); err == nil {
			return core.NewDate(t.Year(), int(t.Month()), 1)
		}
		if d, err := core.ParseDate(v); err == nil {
			return d.FirstOfMonth()
		}
	}
	return core.NewDate(now.Year(), int(now.Month()), 1)
}

// pathID reads a positive integer path value.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, r.PathValue(name))
	}
	return id, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
