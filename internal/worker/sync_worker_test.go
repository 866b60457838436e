package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fluxo/internal/aggregate"
	"fluxo/internal/amqp"
	"fluxo/internal/core"
	"fluxo/internal/storage/memory"
)

type fakeExporter struct {
	ledgers   map[int][]core.TransactionDetails
	summaries map[int][]aggregate.MonthPoint
	err       error
}

func newFakeExporter() *fakeExporter {
	return &fakeExporter{
		ledgers:   map[int][]core.TransactionDetails{},
		summaries: map[int][]aggregate.MonthPoint{},
	}
}

func (f *fakeExporter) ExportYear(_ context.Context, year int, rows []core.TransactionDetails) error {
	if f.err != nil {
		return f.err
	}
	f.ledgers[year] = rows
	return nil
}

func (f *fakeExporter) ExportSummary(_ context.Context, year int, points []aggregate.MonthPoint) error {
	f.summaries[year] = points
	return nil
}

func seed(t *testing.T, s *memory.Store, date core.Date, amount string, typ core.TransactionType) core.Transaction {
	t.Helper()
	tx, err := s.InsertTransaction(context.Background(), core.Transaction{
		Amount: decimal.RequireFromString(amount),
		Date:   date,
		Type:   typ,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return tx
}

func newWorker(t *testing.T) (*SyncWorker, *memory.Store, *fakeExporter) {
	t.Helper()
	s := memory.New()
	exp := newFakeExporter()
	w := NewSyncWorker(s, exp)
	w.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return w, s, exp
}

func TestHandleChangeExportsTransactionYear(t *testing.T) {
	w, s, exp := newWorker(t)
	ctx := context.Background()

	tx := seed(t, s, core.NewDate(2024, 2, 10), "100", core.Income)
	seed(t, s, core.NewDate(2024, 2, 20), "40", core.Expense)
	seed(t, s, core.NewDate(2025, 1, 5), "999", core.Income)

	err := w.HandleChange(ctx, amqp.NewChangeMessage(amqp.ResourceTransactions, amqp.ActionCreated, tx.ID, 2024))
	if err != nil {
		t.Fatalf("HandleChange: %v", err)
	}

	if len(exp.ledgers) != 1 || len(exp.ledgers[2024]) != 2 {
		t.Fatalf("expected only 2024 with 2 rows, got %v", exp.ledgers)
	}
	feb := exp.summaries[2024][1]
	if !feb.Profit.Equal(decimal.NewFromInt(60)) {
		t.Errorf("february profit = %s, want 60", feb.Profit)
	}
	if len(exp.summaries[2024]) != 12 {
		t.Errorf("summary should have 12 months, got %d", len(exp.summaries[2024]))
	}
}

func TestHandleChangeMovedYearExportsBoth(t *testing.T) {
	w, _, exp := newWorker(t)
	msg := amqp.NewChangeMessage(amqp.ResourceTransactions, amqp.ActionUpdated, 1, 2025)
	msg.PreviousYear = 2024

	if err := w.HandleChange(context.Background(), msg); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}
	if _, ok := exp.ledgers[2024]; !ok {
		t.Error("previous year not re-exported")
	}
	if _, ok := exp.ledgers[2025]; !ok {
		t.Error("new year not re-exported")
	}
}

func TestHandleChangeCategoryUsesCurrentYear(t *testing.T) {
	w, _, exp := newWorker(t)
	msg := amqp.NewChangeMessage(amqp.ResourceCategories, amqp.ActionUpdated, 3, 0)

	if err := w.HandleChange(context.Background(), msg); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}
	if _, ok := exp.ledgers[2025]; !ok || len(exp.ledgers) != 1 {
		t.Fatalf("expected current year export, got %v", exp.ledgers)
	}
}

func TestHandleChangeDeletedRowDisappears(t *testing.T) {
	w, s, exp := newWorker(t)
	ctx := context.Background()

	tx := seed(t, s, core.NewDate(2025, 3, 1), "10", core.Expense)
	if err := s.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	msg := amqp.NewChangeMessage(amqp.ResourceTransactions, amqp.ActionDeleted, tx.ID, 2025)
	if err := w.HandleChange(ctx, msg); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}
	for _, r := range exp.ledgers[2025] {
		if r.ID == tx.ID {
			t.Fatal("deleted transaction still exported")
		}
	}
}

func TestHandleChangeExporterError(t *testing.T) {
	w, _, exp := newWorker(t)
	exp.err = errors.New("quota exceeded")

	err := w.HandleChange(context.Background(), amqp.NewChangeMessage(amqp.ResourceTransactions, amqp.ActionCreated, 1, 2025))
	if err == nil || !errors.Is(err, exp.err) {
		t.Fatalf("expected wrapped exporter error, got %v", err)
	}
}

func TestStartupSync(t *testing.T) {
	w, s, exp := newWorker(t)
	seed(t, s, core.NewDate(2025, 5, 5), "12.5", core.Income)

	if err := w.StartupSync(context.Background()); err != nil {
		t.Fatalf("StartupSync: %v", err)
	}
	if len(exp.ledgers[2025]) != 1 {
		t.Fatalf("expected one row, got %d", len(exp.ledgers[2025]))
	}
}
