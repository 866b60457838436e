package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fluxo/internal/core"
	"fluxo/internal/services"
	"fluxo/internal/storage/memory"
	"fluxo/internal/store"
)

var refNow = time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)

type harness struct {
	board *Board
	sales int64
	rent  int64
	pix   int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	sales, _ := s.InsertCategory(ctx, core.Category{Name: "Vendas", Type: core.Income})
	rent, _ := s.InsertCategory(ctx, core.Category{Name: "Aluguel", Type: core.Expense})
	pix, _ := s.InsertPaymentMethod(ctx, core.PaymentMethod{Name: "Pix"})

	dash := services.NewDashboard(s, nil, nil)
	ledger := services.NewLedger(s, nil, dash)
	initial, err := core.NewRangeState("", refNow)
	if err != nil {
		t.Fatal(err)
	}
	b := New(ledger, dash, initial)
	b.now = func() time.Time { return refNow }
	return &harness{board: b, sales: sales.ID, rent: rent.ID, pix: pix.ID}
}

func (h *harness) input(amount string, date core.Date, typ core.TransactionType) core.TransactionInput {
	a := decimal.RequireFromString(amount)
	cat := h.sales
	if typ == core.Expense {
		cat = h.rent
	}
	pix := h.pix
	return core.TransactionInput{Amount: &a, CategoryID: &cat, PaymentMethodID: &pix, Date: &date, Type: typ}
}

func TestBoardRefreshDefaultsToCurrentMonth(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if f := h.board.Refresh(ctx); f != nil {
		t.Fatalf("Refresh: %v", f)
	}
	snap := h.board.Snapshot()
	if snap.Range.Period != "2025-03" {
		t.Errorf("period = %q, want 2025-03", snap.Range.Period)
	}
	if !snap.Transactions.Loaded || len(snap.Categories.Data) != 2 || len(snap.PaymentMethods.Data) != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if len(snap.Charts.Data.Monthly) != 12 {
		t.Errorf("charts not loaded")
	}
}

func TestBoardAddRefreshesRollups(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.board.Refresh(ctx)

	res := h.board.AddTransaction(ctx, h.input("250", core.NewDate(2025, 3, 2), core.Income))
	if !res.OK() {
		t.Fatalf("AddTransaction: %v", res.Failure)
	}
	if len(res.Value) != 1 {
		t.Fatalf("expected refetched list with 1 row, got %d", len(res.Value))
	}

	snap := h.board.Snapshot()
	if snap.Summary.Data.Income != "R$ 250,00" {
		t.Errorf("summary not refreshed: %+v", snap.Summary.Data)
	}
	if !snap.Charts.Data.Monthly[2].Income.Equal(decimal.NewFromInt(250)) {
		t.Errorf("charts not refreshed: %+v", snap.Charts.Data.Monthly[2])
	}
}

func TestBoardValidationFailureIsState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	in := h.input("10", core.NewDate(2025, 3, 1), core.Income)
	in.Amount = nil
	res := h.board.AddTransaction(ctx, in)
	if res.OK() || res.Failure.Kind != core.KindValidation {
		t.Fatalf("expected validation failure, got %+v", res)
	}
	if h.board.Transactions.State().Error != core.ErrMissingAmount.Error() {
		t.Errorf("error state = %q", h.board.Transactions.State().Error)
	}
}

func TestBoardSetPeriod(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.board.AddTransaction(ctx, h.input("100", core.NewDate(2024, 7, 1), core.Income))
	h.board.AddTransaction(ctx, h.input("40", core.NewDate(2025, 3, 1), core.Expense))

	if f := h.board.SetPeriod(ctx, core.PresetLastYear); f != nil {
		t.Fatalf("SetPeriod: %v", f)
	}
	snap := h.board.Snapshot()
	if len(snap.Transactions.Data) != 1 || snap.Transactions.Data[0].Date.Year() != 2024 {
		t.Fatalf("unexpected transactions %+v", snap.Transactions.Data)
	}
	if snap.Charts.Data.Year != 2024 {
		t.Errorf("charts year = %d, want 2024", snap.Charts.Data.Year)
	}

	if f := h.board.SetPeriod(ctx, "not-a-period"); f == nil || f.Kind != core.KindValidation {
		t.Fatalf("expected validation failure, got %v", f)
	}
	if h.board.Range().Period != core.PresetLastYear {
		t.Error("bad period must not change the range")
	}

	if f := h.board.SetRange(ctx, core.CustomRange(nil, nil)); f != nil {
		t.Fatal(f)
	}
	if got := len(h.board.Transactions.State().Data); got != 2 {
		t.Errorf("open range should list everything, got %d", got)
	}
}

func TestBoardRemoveTransaction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	added := h.board.AddTransaction(ctx, h.input("5", core.NewDate(2025, 3, 3), core.Income))
	id := added.Value[0].ID

	res := h.board.RemoveTransaction(ctx, id)
	if !res.OK() || len(res.Value) != 0 {
		t.Fatalf("RemoveTransaction: %+v", res)
	}
	if !h.board.Summary.State().Data.Totals.Income.IsZero() {
		t.Error("summary still counts the deleted row")
	}

	again := h.board.RemoveTransaction(ctx, id)
	if again.OK() || again.Failure.Kind != core.KindNotFound {
		t.Fatalf("expected not_found, got %+v", again)
	}
}

// blockingStore holds InsertTransaction until released and records the
// context state the insert saw.
type blockingStore struct {
	*memory.Store
	inserting chan struct{}
	release   chan struct{}
	ctxErr    chan error
}

func (s *blockingStore) InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	close(s.inserting)
	<-s.release
	s.ctxErr <- ctx.Err()
	if err := ctx.Err(); err != nil {
		return core.Transaction{}, err
	}
	return s.Store.InsertTransaction(ctx, tx)
}

func TestBoardRangeChangeDoesNotCancelWrite(t *testing.T) {
	ctx := context.Background()
	s := &blockingStore{
		Store:     memory.New(),
		inserting: make(chan struct{}),
		release:   make(chan struct{}),
		ctxErr:    make(chan error, 1),
	}
	sales, _ := s.InsertCategory(ctx, core.Category{Name: "Vendas", Type: core.Income})
	pix, _ := s.InsertPaymentMethod(ctx, core.PaymentMethod{Name: "Pix"})

	dash := services.NewDashboard(s, nil, nil)
	initial, _ := core.NewRangeState("", refNow)
	b := New(services.NewLedger(s, nil, dash), dash, initial)
	b.now = func() time.Time { return refNow }

	h := &harness{board: b, sales: sales.ID, pix: pix.ID}
	done := make(chan core.Result[[]core.TransactionDetails], 1)
	go func() { done <- b.AddTransaction(ctx, h.input("90", core.NewDate(2025, 3, 4), core.Income)) }()
	<-s.inserting

	if f := b.SetPeriod(ctx, core.PresetCurrentYear); f != nil {
		t.Fatalf("SetPeriod: %v", f)
	}
	close(s.release)

	if err := <-s.ctxErr; err != nil {
		t.Fatalf("insert ran under a canceled context: %v", err)
	}
	res := <-done
	if !res.OK() || len(res.Value) != 1 {
		t.Fatalf("AddTransaction: %+v", res)
	}
	rows, _ := s.ListTransactions(ctx, store.TransactionQuery{})
	if len(rows) != 1 {
		t.Fatalf("rows in store = %d, want 1", len(rows))
	}
	if b.Summary.State().Data.Income != "R$ 90,00" {
		t.Errorf("summary not refreshed: %+v", b.Summary.State().Data)
	}
}
