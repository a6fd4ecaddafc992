// Package core provides money parsing and handling utilities.
//
// Amounts travel as decimal.Decimal end to end; this file converts between
// user input, the backend's JSON numbers and the R$ display format.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-typed amount into a positive decimal with two
// fractional digits (half-up).
//
// Both Brazilian ("1.234,56") and plain ("1234.56") notations are accepted.
// When only one separator kind is present, a comma is always decimal and a
// dot is decimal only when followed by one or two digits.
//
// Examples:
//
//	ParseAmount("12,34")    -> 12.34
//	ParseAmount("1.234,56") -> 1234.56
//	ParseAmount("1.234")    -> 1234
//	ParseAmount("12.345")   -> 12345
//	ParseAmount("R$ 10")    -> 10
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return decimal.Zero, ErrInvalidAmount
		}
	}

	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		// Thousands dots, decimal comma.
		if strings.LastIndex(s, ".") > strings.LastIndex(s, ",") {
			return decimal.Zero, ErrInvalidAmount
		}
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case strings.Contains(s, ","):
		if strings.Count(s, ",") > 1 {
			return decimal.Zero, ErrInvalidAmount
		}
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	case strings.Contains(s, "."):
		if frac := s[strings.Index(s, ".")+1:]; len(frac) == 3 {
			s = strings.Replace(s, ".", "", 1)
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatBRL renders an amount as Brazilian currency, e.g. "R$ 1.050,00".
func FormatBRL(d decimal.Decimal) string {
	neg := d.IsNegative()
	if neg {
		d = d.Neg()
	}
	intPart, frac, _ := strings.Cut(d.Round(2).StringFixed(2), ".")

	var b strings.Builder
	b.WriteString("R$ ")
	if neg {
		b.WriteString("-")
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	b.WriteByte(',')
	b.WriteString(frac)
	return b.String()
}

// FormatSigned renders an amount with a leading + or - sign for ledger rows.
func FormatSigned(d decimal.Decimal) string {
	if d.IsNegative() {
		return "- " + FormatBRL(d.Neg())
	}
	return "+ " + FormatBRL(d)
}

// InputValue renders an amount the way the edit form expects it back ("1050,00").
func InputValue(d decimal.Decimal) string {
	return strings.Replace(d.Round(2).StringFixed(2), ".", ",", 1)
}
