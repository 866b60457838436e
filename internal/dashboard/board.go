// Package dashboard is a dashboard session: the selected range plus
// latest-wins views of everything the screen shows.
package dashboard

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"fluxo/internal/core"
	"fluxo/internal/resource"
	"fluxo/internal/services"
	"fluxo/internal/store"
)

type Board struct {
	ledger *services.Ledger
	dash   *services.Dashboard
	now    func() time.Time

	mu  sync.Mutex
	rng core.RangeState

	Transactions   *resource.View[[]core.TransactionDetails]
	Summary        *resource.View[services.SummaryView]
	Charts         *resource.View[services.ChartsView]
	Categories     *resource.View[[]core.Category]
	PaymentMethods *resource.View[[]core.PaymentMethod]
}

// Snapshot is a consistent copy of every view.
type Snapshot struct {
	Range          core.RangeState                           `json:"range"`
	Transactions   resource.State[[]core.TransactionDetails] `json:"transactions"`
	Summary        resource.State[services.SummaryView]      `json:"summary"`
	Charts         resource.State[services.ChartsView]       `json:"charts"`
	Categories     resource.State[[]core.Category]           `json:"categories"`
	PaymentMethods resource.State[[]core.PaymentMethod]      `json:"payment_methods"`
}

// New builds a board over initial. Nothing is fetched until Refresh.
func New(ledger *services.Ledger, dash *services.Dashboard, initial core.RangeState) *Board {
	b := &Board{ledger: ledger, dash: dash, now: time.Now, rng: initial}
	b.Transactions = resource.NewView(func(ctx context.Context) ([]core.TransactionDetails, error) {
		return ledger.ListTransactions(ctx, b.query())
	})
	b.Summary = resource.NewView(func(ctx context.Context) (services.SummaryView, error) {
		return dash.Summary(ctx, b.Range().Range)
	})
	b.Charts = resource.NewView(func(ctx context.Context) (services.ChartsView, error) {
		return dash.Charts(ctx, b.Range().Range)
	})
	b.Categories = resource.NewView(func(ctx context.Context) ([]core.Category, error) {
		return ledger.ListCategories(ctx, "")
	})
	b.PaymentMethods = resource.NewView(ledger.ListPaymentMethods)
	return b
}

func (b *Board) Range() core.RangeState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rng
}

func (b *Board) query() store.TransactionQuery {
	return store.TransactionQuery{Range: b.Range().Range}
}

// SetRange switches the range and reloads the range-dependent views.
func (b *Board) SetRange(ctx context.Context, rs core.RangeState) *core.Failure {
	b.mu.Lock()
	b.rng = rs
	b.mu.Unlock()
	return b.refreshRanged(ctx)
}

// SetPeriod resolves a period selector against the clock and applies it.
func (b *Board) SetPeriod(ctx context.Context, period string) *core.Failure {
	rs, err := core.NewRangeState(period, b.now())
	if err != nil {
		return core.Invalid(err)
	}
	return b.SetRange(ctx, rs)
}

// Refresh reloads every view concurrently and returns the first failure.
func (b *Board) Refresh(ctx context.Context) *core.Failure {
	return firstFailure(
		func() *core.Failure { return b.refreshRanged(ctx) },
		func() *core.Failure { return b.Categories.Refetch(ctx).Failure },
		func() *core.Failure { return b.PaymentMethods.Refetch(ctx).Failure },
	)
}

func (b *Board) refreshRanged(ctx context.Context) *core.Failure {
	return firstFailure(
		func() *core.Failure { return b.Transactions.Refetch(ctx).Failure },
		b.rollups(ctx),
	)
}

// rollups returns a loader for the views derived from transactions.
func (b *Board) rollups(ctx context.Context) func() *core.Failure {
	return func() *core.Failure {
		return firstFailure(
			func() *core.Failure { return b.Summary.Refetch(ctx).Failure },
			func() *core.Failure { return b.Charts.Refetch(ctx).Failure },
		)
	}
}

// firstFailure runs fns in parallel. Superseded loads are not failures of
// the board.
func firstFailure(fns ...func() *core.Failure) *core.Failure {
	out := make([]*core.Failure, len(fns))
	var g errgroup.Group
	for i, fn := range fns {
		i, fn := i, fn
		g.Go(func() error {
			out[i] = fn()
			return nil
		})
	}
	_ = g.Wait()
	for _, f := range out {
		if f != nil && f.Kind != core.KindCanceled {
			return f
		}
	}
	return nil
}

func (b *Board) AddTransaction(ctx context.Context, in core.TransactionInput) core.Result[[]core.TransactionDetails] {
	return b.writeTransactions(ctx, func(ctx context.Context) error {
		_, err := b.ledger.CreateTransaction(ctx, in, b.query())
		return err
	})
}

func (b *Board) EditTransaction(ctx context.Context, id int64, in core.TransactionInput) core.Result[[]core.TransactionDetails] {
	return b.writeTransactions(ctx, func(ctx context.Context) error {
		_, err := b.ledger.UpdateTransaction(ctx, id, in, b.query())
		return err
	})
}

func (b *Board) RemoveTransaction(ctx context.Context, id int64) core.Result[[]core.TransactionDetails] {
	return b.writeTransactions(ctx, func(ctx context.Context) error {
		_, err := b.ledger.DeleteTransaction(ctx, id, b.query())
		return err
	})
}

// writeTransactions reloads the rollups whenever the write landed, even if
// a newer load took over the transaction list.
func (b *Board) writeTransactions(ctx context.Context, write func(context.Context) error) core.Result[[]core.TransactionDetails] {
	res, written := b.Transactions.Mutate(ctx, write)
	if written {
		b.rollups(ctx)()
	}
	return res
}

func (b *Board) Snapshot() Snapshot {
	return Snapshot{
		Range:          b.Range(),
		Transactions:   b.Transactions.State(),
		Summary:        b.Summary.State(),
		Charts:         b.Charts.State(),
		Categories:     b.Categories.State(),
		PaymentMethods: b.PaymentMethods.State(),
	}
}
