package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nelfy/internal/core"
)

var parseToday = time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC)

func TestParseTransactionForm(t *testing.T) {
	t.Run("minimal expense defaults dates to today", func(t *testing.T) {
		tx, err := ParseTransactionForm(url.Values{
			"description": {"  Mercado  "},
			"amount":      {"1.234,56"},
			"type":        {"expense"},
		}, parseToday)
		require.NoError(t, err)

		assert.Equal(t, "Mercado", tx.Description)
		assert.True(t, tx.Amount.Equal(decimal.RequireFromString("1234.56")), tx.Amount.String())
		assert.Equal(t, core.Expense, tx.Type)
		assert.Equal(t, "2025-03-14", tx.TransactionDate.String())
		assert.Equal(t, "2025-03-14", tx.DueDate.String())
		assert.Nil(t, tx.Category)
		assert.Nil(t, tx.TotalInstallments)
		assert.False(t, tx.IsPaid)
	})

	t.Run("full form", func(t *testing.T) {
		tx, err := ParseTransactionForm(url.Values{
			"description":     {"Salário"},
			"amount":          {"5000"},
			"type":            {"INCOME"},
			"categoryId":      {"7"},
			"transactionDate": {"2025-03-05"},
			"dueDate":         {"2025-03-10"},
			"isPaid":          {"on"},
		}, parseToday)
		require.NoError(t, err)

		assert.Equal(t, core.Income, tx.Type)
		require.NotNil(t, tx.Category)
		assert.Equal(t, int64(7), tx.Category.ID)
		assert.Equal(t, "2025-03-05", tx.TransactionDate.String())
		assert.Equal(t, "2025-03-10", tx.DueDate.String())
		assert.True(t, tx.IsPaid)
	})

	t.Run("installments are never created paid", func(t *testing.T) {
		tx, err := ParseTransactionForm(url.Values{
			"description":       {"Notebook"},
			"amount":            {"3000,00"},
			"type":              {"EXPENSE"},
			"totalInstallments": {"10"},
			"isPaid":            {"on"},
		}, parseToday)
		require.NoError(t, err)

		require.NotNil(t, tx.TotalInstallments)
		assert.Equal(t, 10, *tx.TotalInstallments)
		assert.False(t, tx.IsPaid)
	})

	t.Run("one installment is a plain transaction", func(t *testing.T) {
		tx, err := ParseTransactionForm(url.Values{
			"description":       {"Café"},
			"amount":            {"8,50"},
			"type":              {"EXPENSE"},
			"totalInstallments": {"1"},
		}, parseToday)
		require.NoError(t, err)
		assert.Nil(t, tx.TotalInstallments)
	})

	tests := []struct {
		name   string
		form   url.Values
		fields []string
	}{
		{
			name:   "everything missing",
			form:   url.Values{},
			fields: []string{"Description", "Amount", "Type"},
		},
		{
			name:   "bad amount",
			form:   url.Values{"description": {"x"}, "amount": {"abc"}, "type": {"EXPENSE"}},
			fields: []string{"Amount"},
		},
		{
			name:   "unknown type",
			form:   url.Values{"description": {"x"}, "amount": {"10"}, "type": {"TRANSFER"}},
			fields: []string{"Type"},
		},
		{
			name:   "bad category and installments",
			form:   url.Values{"description": {"x"}, "amount": {"10"}, "type": {"EXPENSE"}, "categoryId": {"abc"}, "totalInstallments": {"dez"}},
			fields: []string{"CategoryID", "TotalInstallments"},
		},
		{
			name:   "too many installments",
			form:   url.Values{"description": {"x"}, "amount": {"10"}, "type": {"EXPENSE"}, "totalInstallments": {"121"}},
			fields: []string{"TotalInstallments"},
		},
		{
			name:   "bad dates",
			form:   url.Values{"description": {"x"}, "amount": {"10"}, "type": {"EXPENSE"}, "dueDate": {"10/03/2025"}, "transactionDate": {"ontem"}},
			fields: []string{"DueDate", "TransactionDate"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTransactionForm(tt.form, parseToday)
			require.Error(t, err)

			var fe FormErrors
			require.ErrorAs(t, err, &fe)
			for _, field := range tt.fields {
				assert.Contains(t, fe, field)
			}
		})
	}
}

func TestParseLoginForm(t *testing.T) {
	req, err := ParseLoginForm(url.Values{"email": {"  Ana@Example.COM "}, "password": {"secret"}})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", req.Email)
	assert.Equal(t, "secret", req.Password)

	_, err = ParseLoginForm(url.Values{"email": {"not-an-email"}})
	var fe FormErrors
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "Email inválido", fe["Email"])
	assert.Equal(t, "Campo obrigatório", fe["Password"])
}

func TestParseRegisterForm(t *testing.T) {
	valid := url.Values{
		"name":            {"Ana Souza"},
		"email":           {"ana@example.com"},
		"password":        {"segredo1"},
		"confirmPassword": {"segredo1"},
		"referralCode":    {"abc123"},
	}
	req, err := ParseRegisterForm(valid)
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", req.Name)
	assert.Equal(t, "ABC123", req.ReferralCode)

	tests := []struct {
		name  string
		edit  func(url.Values)
		field string
		msg   string
	}{
		{"short password", func(v url.Values) { v.Set("password", "123"); v.Set("confirmPassword", "123") }, "Password", "Mínimo de 6 caracteres"},
		{"mismatch", func(v url.Values) { v.Set("confirmPassword", "outra") }, "ConfirmPassword", "As senhas não coincidem"},
		{"referral symbols", func(v url.Values) { v.Set("referralCode", "ab-12") }, "ReferralCode", "Use apenas letras e números"},
		{"no name", func(v url.Values) { v.Del("name") }, "Name", "Campo obrigatório"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{}
			for k, v := range valid {
				form[k] = append([]string(nil), v...)
			}
			tt.edit(form)

			_, err := ParseRegisterForm(form)
			var fe FormErrors
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.msg, fe[tt.field])
		})
	}
}

func TestParseMonth(t *testing.T) {
	tests := []struct {
		name  string
		query url.Values
		want  string
	}{
		{"year-month", url.Values{"month": {"2024-12"}}, "2024-12-01"},
		{"full date", url.Values{"month": {"2024-07-19"}}, "2024-07-01"},
		{"missing", url.Values{}, "2025-03-01"},
		{"garbage", url.Values{"month": {"dezembro"}}, "2025-03-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseMonth(tt.query, parseToday).String())
		})
	}
}

func TestPathID(t *testing.T) {
	mux := http.NewServeMux()
	var got int64
	var gotErr error
	mux.HandleFunc("POST /t/{id}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = pathID(r, "id")
	})

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/t/42", nil))
	require.NoError(t, gotErr)
	assert.Equal(t, int64(42), got)

	for _, bad := range []string{"0", "-3", "abc"} {
		mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/t/"+bad, nil))
		assert.Error(t, gotErr, bad)
	}
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "ab\tc", sanitizeInput("  a\x00b\tc\x07 "))
	assert.Equal(t, "", sanitizeInput("   "))
}

func TestFormErrorsError(t *testing.T) {
	err := FormErrors{"Amount": "Valor inválido"}
	assert.Equal(t, "Amount: Valor inválido", err.Error())
}
