package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"fluxo/internal/aggregate"
	"fluxo/internal/cache"
	"fluxo/internal/core"
	"fluxo/internal/store"
)

type (
	// SummaryView is the totals card for a range, with display strings.
	SummaryView struct {
		Range   core.DateRange   `json:"range"`
		Totals  aggregate.Totals `json:"totals"`
		Count   int              `json:"count"`
		Income  string           `json:"income_brl"`
		Expense string           `json:"expense_brl"`
		Balance string           `json:"balance_brl"`
	}

	MonthView struct {
		aggregate.MonthPoint
		IncomeBRL  string `json:"income_brl"`
		ExpenseBRL string `json:"expense_brl"`
		ProfitBRL  string `json:"profit_brl"`
	}

	CashFlowView struct {
		aggregate.CashFlowPoint
		InflowBRL  string `json:"inflow_brl"`
		OutflowBRL string `json:"outflow_brl"`
	}

	// ChartsView holds every chart series. Monthly and CashFlow cover the
	// whole reference year; the breakdowns cover only the selected range.
	ChartsView struct {
		Year     int                        `json:"year"`
		Monthly  []MonthView                `json:"monthly"`
		CashFlow []CashFlowView             `json:"cash_flow"`
		Expenses []aggregate.CategoryAmount `json:"expenses_by_category"`
		Revenues []aggregate.CategoryShare  `json:"revenues_by_category"`
	}

	Overview struct {
		Summary SummaryView `json:"summary"`
		Charts  ChartsView  `json:"charts"`
	}
)

// Dashboard serves the read side. Identical concurrent loads share one
// store query and results are cached until the next write.
type Dashboard struct {
	store     store.TransactionRepository
	summaries cache.Cache[SummaryView]
	charts    cache.Cache[ChartsView]
	group     singleflight.Group
	gen       atomic.Uint64
	now       func() time.Time
}

var _ Invalidator = (*Dashboard)(nil)

// NewDashboard builds the read service. Nil caches disable caching.
func NewDashboard(repo store.TransactionRepository, summaries cache.Cache[SummaryView], charts cache.Cache[ChartsView]) *Dashboard {
	if summaries == nil {
		summaries = cache.Noop[SummaryView]{}
	}
	if charts == nil {
		charts = cache.Noop[ChartsView]{}
	}
	return &Dashboard{
		store:     repo,
		summaries: summaries,
		charts:    charts,
		now:       time.Now,
	}
}

// Invalidate drops cached rollups. Loads already in flight will not
// populate the cache.
func (d *Dashboard) Invalidate() {
	d.gen.Add(1)
	d.summaries.Clear()
	d.charts.Clear()
}

func (d *Dashboard) Summary(ctx context.Context, r core.DateRange) (SummaryView, error) {
	return load(ctx, d, d.summaries, "summary:"+r.Key(), func(ctx context.Context) (SummaryView, error) {
		rows, err := d.store.ListTransactions(ctx, store.TransactionQuery{Range: r})
		if err != nil {
			return SummaryView{}, storeError("list transactions", "transaction", 0, err)
		}
		totals := aggregate.Summarize(core.Plain(rows))
		return SummaryView{
			Range:   r,
			Totals:  totals,
			Count:   len(rows),
			Income:  core.FormatBRL(totals.Income),
			Expense: core.FormatBRL(totals.Expense),
			Balance: core.FormatBRL(totals.Balance),
		}, nil
	})
}

func (d *Dashboard) Charts(ctx context.Context, r core.DateRange) (ChartsView, error) {
	now := d.now()
	ref := core.ChartReference(r, now)
	key := fmt.Sprintf("charts:%d:%s", ref.Year(), r.Key())
	return load(ctx, d, d.charts, key, func(ctx context.Context) (ChartsView, error) {
		rows, err := d.store.ListTransactions(ctx, store.TransactionQuery{Range: core.ChartWindow(r, now)})
		if err != nil {
			return ChartsView{}, storeError("list transactions", "transaction", 0, err)
		}
		return buildCharts(rows, r, ref), nil
	})
}

// Overview loads the summary and the charts in parallel.
func (d *Dashboard) Overview(ctx context.Context, r core.DateRange) (Overview, error) {
	var out Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := d.Summary(gctx, r)
		out.Summary = s
		return err
	})
	g.Go(func() error {
		c, err := d.Charts(gctx, r)
		out.Charts = c
		return err
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return out, nil
}

func buildCharts(rows []core.TransactionDetails, r core.DateRange, ref core.Date) ChartsView {
	monthly, flow := aggregate.YearSeries(core.Plain(rows), ref.Time)

	view := ChartsView{
		Year:     ref.Year(),
		Monthly:  make([]MonthView, len(monthly)),
		CashFlow: make([]CashFlowView, len(flow)),
		Expenses: aggregate.ExpensesByCategory(rows, r),
		Revenues: aggregate.RevenuesByCategory(rows, r),
	}
	for i, p := range monthly {
		view.Monthly[i] = MonthView{
			MonthPoint: p,
			IncomeBRL:  core.FormatBRL(p.Income),
			ExpenseBRL: core.FormatBRL(p.Expense),
			ProfitBRL:  core.FormatBRL(p.Profit),
		}
	}
	for i, p := range flow {
		view.CashFlow[i] = CashFlowView{
			CashFlowPoint: p,
			InflowBRL:     core.FormatBRL(p.Inflow),
			OutflowBRL:    core.FormatBRL(p.Outflow),
		}
	}
	return view
}

// load serves key from c, or runs fetch once for all concurrent callers.
// The flight is detached from any single caller's cancellation; each
// caller still stops waiting when its own ctx ends.
func load[T any](ctx context.Context, d *Dashboard, c cache.Cache[T], key string, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	gen := d.gen.Load()
	flightKey := fmt.Sprintf("%d/%s", gen, key)
	ch := d.group.DoChan(flightKey, func() (any, error) {
		v, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if d.gen.Load() == gen {
			c.Set(key, v)
			// An Invalidate between the check and the Set left a stale entry.
			if d.gen.Load() != gen {
				c.Delete(key)
			}
		}
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, core.AsFailure(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}
