// Command fluxo-report prints the dashboard for a period to the terminal.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"fluxo/internal/backend"
	"fluxo/internal/cli"
	"fluxo/internal/core"
	"fluxo/internal/dashboard"
	apphttp "fluxo/internal/http"
	"fluxo/internal/log"
	"fluxo/internal/services"
)

func main() {
	period := flag.String("period", "", "current-year, last-year, last-3, all or YYYY-MM (default: current month)")
	start := flag.String("start", "", "custom range start, YYYY-MM-DD")
	end := flag.String("end", "", "custom range end, YYYY-MM-DD")
	limit := flag.Int("limit", 10, "transactions to list, 0 for none")
	asJSON := flag.Bool("json", false, "print the dashboard snapshot as JSON")
	timeout := flag.Duration("timeout", 30*time.Second, "overall deadline")
	add := flag.String("add", "", "record a transaction (JSON) before reporting")
	update := flag.String("update", "", "replace a transaction before reporting, ID=JSON")
	remove := flag.Int64("delete", 0, "delete a transaction by id before reporting")
	flag.Parse()

	write, err := parseWrite(*add, *update, *remove)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentDashboard)
	cfg := cli.LoadAndValidateConfig(logger)

	query := map[string][]string{"preset": {*period}, "start": {*start}, "end": {*end}}
	rs, err := apphttp.ParseRange(query, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	// Read-only runs have nothing to publish
	if write == nil {
		backendCfg.AMQPURL = ""
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer res.Cleanup()

	dash := services.NewDashboard(res.Store, nil, nil)
	board := dashboard.New(services.NewLedger(res.Store, res.Publisher, dash), dash, rs)
	if f := board.Refresh(ctx); f != nil {
		logger.Error("Failed to load dashboard", log.FieldFailureKind, string(f.Kind), log.FieldError, f.Message)
		os.Exit(1)
	}
	if write != nil {
		if r := write(ctx, board); !r.OK() {
			logger.Error("Write failed", log.FieldFailureKind, string(r.Failure.Kind), log.FieldError, r.Failure.Message)
			os.Exit(1)
		}
	}

	snap := board.Snapshot()
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			logger.Error("Failed to encode snapshot", log.FieldError, err.Error())
			os.Exit(1)
		}
		return
	}
	if err := render(os.Stdout, snap, *limit); err != nil {
		logger.Error("Failed to render report", log.FieldError, err.Error())
		os.Exit(1)
	}
}

type boardWrite func(context.Context, *dashboard.Board) core.Result[[]core.TransactionDetails]

// parseWrite turns the write flags into one board write; nil when none is
// set. At most one may be given.
func parseWrite(add, update string, remove int64) (boardWrite, error) {
	var writes []boardWrite
	if add != "" {
		var in core.TransactionInput
		if err := json.Unmarshal([]byte(add), &in); err != nil {
			return nil, fmt.Errorf("-add: %w", err)
		}
		writes = append(writes, func(ctx context.Context, b *dashboard.Board) core.Result[[]core.TransactionDetails] {
			return b.AddTransaction(ctx, in)
		})
	}
	if update != "" {
		idText, body, ok := strings.Cut(update, "=")
		id, err := strconv.ParseInt(strings.TrimSpace(idText), 10, 64)
		if !ok || err != nil || id <= 0 {
			return nil, errors.New("-update: want ID=JSON with a positive id")
		}
		var in core.TransactionInput
		if err := json.Unmarshal([]byte(body), &in); err != nil {
			return nil, fmt.Errorf("-update: %w", err)
		}
		writes = append(writes, func(ctx context.Context, b *dashboard.Board) core.Result[[]core.TransactionDetails] {
			return b.EditTransaction(ctx, id, in)
		})
	}
	if remove < 0 {
		return nil, errors.New("-delete: id must be positive")
	}
	if remove > 0 {
		writes = append(writes, func(ctx context.Context, b *dashboard.Board) core.Result[[]core.TransactionDetails] {
			return b.RemoveTransaction(ctx, remove)
		})
	}
	switch len(writes) {
	case 0:
		return nil, nil
	case 1:
		return writes[0], nil
	default:
		return nil, errors.New("-add, -update and -delete are mutually exclusive")
	}
}

func render(out io.Writer, snap dashboard.Snapshot, limit int) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	summary := snap.Summary.Data
	charts := snap.Charts.Data

	fmt.Fprintf(w, "Período: %s\t%s\t\n", snap.Range.Period, rangeLabel(snap.Range.Range))
	fmt.Fprintf(w, "Receitas\t%s\t\n", summary.Income)
	fmt.Fprintf(w, "Despesas\t%s\t\n", summary.Expense)
	fmt.Fprintf(w, "Saldo\t%s\t\n", summary.Balance)
	fmt.Fprintf(w, "Lançamentos\t%d\t\n\n", summary.Count)

	fmt.Fprintf(w, "%d\tReceitas\tDespesas\tLucro\t\n", charts.Year)
	for _, m := range charts.Monthly {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", m.Label, m.IncomeBRL, m.ExpenseBRL, m.ProfitBRL)
	}

	if len(charts.Expenses) > 0 {
		fmt.Fprintf(w, "\nDespesas por categoria\t\t\n")
		for _, c := range charts.Expenses {
			fmt.Fprintf(w, "%s\t%s\t\n", c.Category, core.FormatBRL(c.Amount))
		}
	}
	if len(charts.Revenues) > 0 {
		fmt.Fprintf(w, "\nReceitas por categoria\t\t\t\n")
		for _, c := range charts.Revenues {
			fmt.Fprintf(w, "%s\t%s\t%.1f%%\t\n", c.Name, core.FormatBRL(c.Value), c.Percentage)
		}
	}

	rows := snap.Transactions.Data
	if limit > 0 && len(rows) > 0 {
		fmt.Fprintf(w, "\nData\tTipo\tCategoria\tValor\t\n")
		for i, t := range rows {
			if i == limit {
				fmt.Fprintf(w, "… mais %d\t\t\t\t\n", len(rows)-limit)
				break
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", t.Date.Format("02/01/2006"), t.Type, orDash(t.CategoryName), core.FormatBRL(t.Amount))
		}
	}
	return w.Flush()
}

func rangeLabel(r core.DateRange) string {
	if r.Start == nil && r.End == nil {
		return "todo o período"
	}
	return r.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
