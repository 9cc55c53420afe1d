// Package core provides the cashbook domain types and money parsing.
//
// Amounts entered as text use a comma as decimal separator. Parsing
// normalises the comma to a dot before converting, and an empty string
// parses to zero.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts user input to a decimal amount.
//
// Examples:
//
//	ParseAmount("12,50") -> 12.5, nil
//	ParseAmount("12.50") -> 12.5, nil
//	ParseAmount("")      -> 0, nil
//	ParseAmount("abc")   -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseNullAmount is ParseAmount for optional amounts: an empty string is
// "no value recorded" rather than zero.
func ParseNullAmount(s string) (decimal.NullDecimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// ToFloat is the float view of ParseAmount, for callers that only display.
func ToFloat(s string) (float64, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}

// AmountOrZero returns the recorded amount, treating a missing value as zero.
func AmountOrZero(n decimal.NullDecimal) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	return n.Decimal
}

// FormatAmount renders an amount with two decimals and a comma separator,
// dropping the decimals entirely when they are zero: 1.2345 -> "1,23", 20 -> "20".
func FormatAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	whole, cents, _ := strings.Cut(s, ".")
	if cents == "00" {
		return whole
	}
	return whole + "," + cents
}
