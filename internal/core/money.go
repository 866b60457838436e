// Package core holds the domain types shared by every layer: transactions,
// categories, payment methods, date ranges and typed failures.
//
// This file contains the display helpers for monetary amounts. Amounts are
// decimal values in reais with two fractional digits.
package core

import (
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// brlPattern groups thousands with '.' and uses ',' for the two decimals.
const brlPattern = "#.###,##"

// MaxAmount is the first amount the NUMERIC(14, 2) columns cannot hold.
var MaxAmount = decimal.New(1, 12)

// FormatBRL renders an amount the way the dashboard shows currency:
// "R$ 1.234,56", with a leading '-' for negatives.
func FormatBRL(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	return sign + "R$ " + humanize.FormatFloat(brlPattern, d.Round(2).InexactFloat64())
}
