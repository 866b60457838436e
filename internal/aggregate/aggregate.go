// Package aggregate turns a flat list of transactions into the rollups the
// dashboard shows: monthly series, cash flow, category breakdowns and the
// income/expense summary.
//
// Every function is pure. Inputs are never mutated and results do not depend
// on input order except where a tie-break is documented.
package aggregate

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fluxo/internal/core"
)

// OtherCategory labels transactions whose category no longer resolves.
const OtherCategory = "Other"

var hundred = decimal.NewFromInt(100)

type (
	MonthPoint struct {
		Month   int             `json:"month"`
		Label   string          `json:"label"`
		Income  decimal.Decimal `json:"income"`
		Expense decimal.Decimal `json:"expense"`
		Profit  decimal.Decimal `json:"profit"`
	}

	CashFlowPoint struct {
		Month   int             `json:"month"`
		Label   string          `json:"label"`
		Inflow  decimal.Decimal `json:"inflow"`
		Outflow decimal.Decimal `json:"outflow"`
	}

	CategoryAmount struct {
		Category string          `json:"category"`
		Amount   decimal.Decimal `json:"amount"`
	}

	CategoryShare struct {
		Name       string          `json:"name"`
		Value      decimal.Decimal `json:"value"`
		Percentage float64         `json:"percentage"`
	}

	Totals struct {
		Income  decimal.Decimal `json:"income"`
		Expense decimal.Decimal `json:"expense"`
		Balance decimal.Decimal `json:"balance"`
	}

	monthTotals struct {
		income, expense decimal.Decimal
	}
)

// groupByMonth sums income and expense per calendar month of year. Other
// years are skipped.
func groupByMonth(txs []core.Transaction, year int) [12]monthTotals {
	var months [12]monthTotals
	for _, t := range txs {
		if t.Date.Year() != year {
			continue
		}
		m := &months[t.Date.Month()-1]
		switch t.Type {
		case core.Income:
			m.income = m.income.Add(t.Amount)
		case core.Expense:
			m.expense = m.expense.Add(t.Amount)
		}
	}
	return months
}

// YearSeries builds both the monthly profit series and the cash flow series
// for ref's year from a single grouping pass.
func YearSeries(txs []core.Transaction, ref time.Time) ([]MonthPoint, []CashFlowPoint) {
	months := groupByMonth(txs, ref.Year())
	series := make([]MonthPoint, 12)
	flow := make([]CashFlowPoint, 12)
	for i, m := range months {
		label := core.MonthShort(i + 1)
		series[i] = MonthPoint{
			Month:   i + 1,
			Label:   label,
			Income:  m.income,
			Expense: m.expense,
			Profit:  m.income.Sub(m.expense),
		}
		flow[i] = CashFlowPoint{
			Month:   i + 1,
			Label:   label,
			Inflow:  m.income,
			Outflow: m.expense,
		}
	}
	return series, flow
}

// MonthlySeries returns January..December of ref's year. Membership is by
// the transaction's calendar month, never by any selected range.
func MonthlySeries(txs []core.Transaction, ref time.Time) []MonthPoint {
	series, _ := YearSeries(txs, ref)
	return series
}

func CashFlowSeries(txs []core.Transaction, ref time.Time) []CashFlowPoint {
	_, flow := YearSeries(txs, ref)
	return flow
}

type group struct {
	name  string
	total decimal.Decimal
}

// byCategory sums amounts of typ inside r per category name, ordered by
// total descending. Ties keep first-seen order.
func byCategory(txs []core.TransactionDetails, r core.DateRange, typ core.TransactionType) ([]group, decimal.Decimal) {
	if !r.Bounded() {
		return nil, decimal.Zero
	}
	index := make(map[string]int)
	var groups []group
	total := decimal.Zero
	for _, t := range txs {
		if t.Type != typ || !r.Contains(t.Date) {
			continue
		}
		name := t.CategoryName
		if name == "" {
			name = OtherCategory
		}
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, group{name: name})
		}
		groups[i].total = groups[i].total.Add(t.Amount)
		total = total.Add(t.Amount)
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].total.GreaterThan(groups[b].total)
	})
	return groups, total
}

// ExpensesByCategory is empty unless both bounds of r are set.
func ExpensesByCategory(txs []core.TransactionDetails, r core.DateRange) []CategoryAmount {
	groups, _ := byCategory(txs, r, core.Expense)
	out := make([]CategoryAmount, len(groups))
	for i, g := range groups {
		out[i] = CategoryAmount{Category: g.name, Amount: g.total}
	}
	return out
}

// RevenuesByCategory also reports each group's share of the in-range income
// total, or 0 for every group when that total is zero.
func RevenuesByCategory(txs []core.TransactionDetails, r core.DateRange) []CategoryShare {
	groups, total := byCategory(txs, r, core.Income)
	out := make([]CategoryShare, len(groups))
	for i, g := range groups {
		share := CategoryShare{Name: g.name, Value: g.total}
		if total.IsPositive() {
			share.Percentage = g.total.Div(total).Mul(hundred).InexactFloat64()
		}
		out[i] = share
	}
	return out
}

func Summarize(txs []core.Transaction) Totals {
	var totals Totals
	for _, t := range txs {
		switch t.Type {
		case core.Income:
			totals.Income = totals.Income.Add(t.Amount)
		case core.Expense:
			totals.Expense = totals.Expense.Add(t.Amount)
		}
	}
	totals.Balance = totals.Income.Sub(totals.Expense)
	return totals
}
