package google

import (
	"fmt"
	"strconv"
	"strings"

	"fluxo/internal/aggregate"
	"fluxo/internal/core"
)

var (
	ledgerHeader  = []any{"Data", "Tipo", "Descrição", "Categoria", "Forma de pagamento", "Valor"}
	summaryHeader = []any{"Mês", "Receitas", "Despesas", "Lucro"}
)

// ledgerRows renders transactions as sheet rows, header first, in the order
// given. Amounts are numbers so the sheet locale decides formatting.
func ledgerRows(rows []core.TransactionDetails) [][]any {
	out := make([][]any, 0, len(rows)+1)
	out = append(out, ledgerHeader)
	for _, r := range rows {
		out = append(out, []any{
			r.Date.Format("02/01/2006"),
			typeLabel(r.Type),
			literal(r.Description),
			orDash(r.CategoryName),
			orDash(r.PaymentMethodName),
			r.Amount.InexactFloat64(),
		})
	}
	return out
}

func summaryRows(points []aggregate.MonthPoint) [][]any {
	out := make([][]any, 0, len(points)+1)
	out = append(out, summaryHeader)
	for _, p := range points {
		out = append(out, []any{
			core.MonthName(p.Month),
			p.Income.InexactFloat64(),
			p.Expense.InexactFloat64(),
			p.Profit.InexactFloat64(),
		})
	}
	return out
}

func typeLabel(t core.TransactionType) string {
	switch t {
	case core.Income:
		return "Receita"
	case core.Expense:
		return "Despesa"
	}
	return string(t)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return literal(s)
}

// literal keeps user text from being parsed as a formula under
// USER_ENTERED. Sheets drops the leading quote on display.
func literal(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// a1Range quotes the sheet name for A1 notation.
func a1Range(sheet, cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(sheet, "'", "''"), cells)
}
