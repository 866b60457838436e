package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"fluxo/internal/amqp"
	"fluxo/internal/core"
	"fluxo/internal/storage/memory"
	"fluxo/internal/store"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*amqp.ChangeMessage
	err  error
}

func (p *recordingPublisher) PublishChange(_ context.Context, msg *amqp.ChangeMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate() { c.n++ }

type fixture struct {
	store     *memory.Store
	ledger    *Ledger
	publisher *recordingPublisher
	inv       *countingInvalidator
	sales     int64
	rent      int64
	pix       int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	sales, err := s.InsertCategory(ctx, core.Category{Name: "Vendas", Type: core.Income})
	if err != nil {
		t.Fatal(err)
	}
	rent, err := s.InsertCategory(ctx, core.Category{Name: "Aluguel", Type: core.Expense})
	if err != nil {
		t.Fatal(err)
	}
	pix, err := s.InsertPaymentMethod(ctx, core.PaymentMethod{Name: "Pix"})
	if err != nil {
		t.Fatal(err)
	}
	pub := &recordingPublisher{}
	inv := &countingInvalidator{}
	return &fixture{
		store:     s,
		ledger:    NewLedger(s, pub, inv),
		publisher: pub,
		inv:       inv,
		sales:     sales.ID,
		rent:      rent.ID,
		pix:       pix.ID,
	}
}

func (f *fixture) input(amount string, date core.Date, typ core.TransactionType) core.TransactionInput {
	a := decimal.RequireFromString(amount)
	cat := f.sales
	if typ == core.Expense {
		cat = f.rent
	}
	return core.TransactionInput{
		Amount:          &a,
		Description:     "  lançamento  ",
		CategoryID:      &cat,
		PaymentMethodID: &f.pix,
		Date:            &date,
		Type:            typ,
	}
}

func failureKind(t *testing.T, err error) core.FailureKind {
	t.Helper()
	var f *core.Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *core.Failure, got %T: %v", err, err)
	}
	return f.Kind
}

func TestCreateTransactionRefetches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.ledger.CreateTransaction(ctx, f.input("1500.555", core.NewDate(2025, 1, 10), core.Income), store.TransactionQuery{})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if m.Item == nil || m.Item.CategoryName != "Vendas" || m.Item.PaymentMethodName != "Pix" {
		t.Fatalf("item not resolved: %+v", m.Item)
	}
	if m.Item.Description != "lançamento" {
		t.Errorf("description not trimmed: %q", m.Item.Description)
	}
	if !m.Item.Amount.Equal(decimal.RequireFromString("1500.56")) {
		t.Errorf("amount = %s, want 1500.56", m.Item.Amount)
	}
	if len(m.Items) != 1 || m.Items[0].ID != m.Item.ID {
		t.Fatalf("refetched list = %+v", m.Items)
	}

	if f.inv.n != 1 {
		t.Errorf("invalidations = %d, want 1", f.inv.n)
	}
	if len(f.publisher.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(f.publisher.msgs))
	}
	msg := f.publisher.msgs[0]
	if msg.Resource != amqp.ResourceTransactions || msg.Action != amqp.ActionCreated || msg.Year != 2025 {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestCreateTransactionRefetchUsesQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.ledger.CreateTransaction(ctx, f.input("10", core.NewDate(2024, 12, 31), core.Expense), store.TransactionQuery{}); err != nil {
		t.Fatal(err)
	}
	q := store.TransactionQuery{Range: core.YearRange(2025)}
	m, err := f.ledger.CreateTransaction(ctx, f.input("20", core.NewDate(2025, 1, 1), core.Expense), q)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Items) != 1 {
		t.Fatalf("expected only the 2025 row, got %d", len(m.Items))
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	neg := f.input("-1", core.NewDate(2025, 1, 1), core.Income)
	mismatch := f.input("1", core.NewDate(2025, 1, 1), core.Income)
	mismatch.CategoryID = &f.rent
	missingCat := f.input("1", core.NewDate(2025, 1, 1), core.Income)
	ghost := int64(999)
	missingCat.CategoryID = &ghost
	missingPay := f.input("1", core.NewDate(2025, 1, 1), core.Income)
	missingPay.PaymentMethodID = &ghost
	noDate := f.input("1", core.NewDate(2025, 1, 1), core.Income)
	noDate.Date = nil

	tests := []struct {
		name    string
		in      core.TransactionInput
		wantErr error
	}{
		{"negative amount", neg, core.ErrNegativeAmount},
		{"category of other type", mismatch, core.ErrCategoryTypeMismatch},
		{"unknown category", missingCat, core.ErrMissingCategory},
		{"unknown payment method", missingPay, core.ErrMissingPaymentMethod},
		{"missing date", noDate, core.ErrMissingDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.CreateTransaction(ctx, tt.in, store.TransactionQuery{})
			if kind := failureKind(t, err); kind != core.KindValidation {
				t.Fatalf("kind = %s, want validation", kind)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	rows, _ := f.store.ListTransactions(ctx, store.TransactionQuery{})
	if len(rows) != 0 {
		t.Fatalf("invalid input reached the store: %d rows", len(rows))
	}
	if len(f.publisher.msgs) != 0 || f.inv.n != 0 {
		t.Error("failed writes must not publish or invalidate")
	}
}

func TestUpdateTransactionAcrossYears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.ledger.CreateTransaction(ctx, f.input("10", core.NewDate(2024, 6, 1), core.Income), store.TransactionQuery{})
	if err != nil {
		t.Fatal(err)
	}
	id := m.Item.ID

	upd, err := f.ledger.UpdateTransaction(ctx, id, f.input("15", core.NewDate(2025, 2, 1), core.Income), store.TransactionQuery{})
	if err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	if !upd.Item.Amount.Equal(decimal.NewFromInt(15)) || upd.Item.Date.Year() != 2025 {
		t.Errorf("update not applied: %+v", upd.Item)
	}

	msg := f.publisher.msgs[len(f.publisher.msgs)-1]
	if msg.Action != amqp.ActionUpdated || msg.Year != 2025 || msg.PreviousYear != 2024 {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestUpdateTransactionNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.UpdateTransaction(context.Background(), 404, f.input("1", core.NewDate(2025, 1, 1), core.Income), store.TransactionQuery{})
	if kind := failureKind(t, err); kind != core.KindNotFound {
		t.Fatalf("kind = %s, want not_found", kind)
	}
}

func TestDeleteThenRefetchOmitsID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _ := f.ledger.CreateTransaction(ctx, f.input("1", core.NewDate(2025, 1, 1), core.Income), store.TransactionQuery{})
	b, _ := f.ledger.CreateTransaction(ctx, f.input("2", core.NewDate(2025, 1, 2), core.Income), store.TransactionQuery{})

	m, err := f.ledger.DeleteTransaction(ctx, a.Item.ID, store.TransactionQuery{})
	if err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if m.Item != nil {
		t.Error("delete should not return an item")
	}
	for _, r := range m.Items {
		if r.ID == a.Item.ID {
			t.Fatal("deleted id returned by refetch")
		}
	}
	if len(m.Items) != 1 || m.Items[0].ID != b.Item.ID {
		t.Fatalf("unexpected remaining rows %+v", m.Items)
	}

	_, err = f.ledger.DeleteTransaction(ctx, a.Item.ID, store.TransactionQuery{})
	if kind := failureKind(t, err); kind != core.KindNotFound {
		t.Fatalf("second delete kind = %s, want not_found", kind)
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")

	m, err := f.ledger.CreateTransaction(context.Background(), f.input("5", core.NewDate(2025, 3, 3), core.Income), store.TransactionQuery{})
	if err != nil {
		t.Fatalf("write failed because of publisher: %v", err)
	}
	if len(m.Items) != 1 {
		t.Fatalf("expected the row to be stored")
	}
}

func TestNilCollaborators(t *testing.T) {
	s := memory.NewFromFiles(t.TempDir())
	l := NewLedger(s, nil, nil)
	m, err := l.CreatePaymentMethod(context.Background(), core.PaymentMethodInput{Name: "Transferência"})
	if err != nil {
		t.Fatalf("CreatePaymentMethod: %v", err)
	}
	if m.Item == nil || m.Item.Name != "Transferência" {
		t.Fatalf("unexpected item %+v", m.Item)
	}
}

func TestCategoryLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.ledger.CreateTransaction(ctx, f.input("100", core.NewDate(2025, 1, 1), core.Expense), store.TransactionQuery{})
	if err != nil {
		t.Fatal(err)
	}

	created, err := f.ledger.CreateCategory(ctx, core.CategoryInput{Name: "Energia", Type: core.Expense})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if len(created.Items) != 3 {
		t.Fatalf("expected 3 categories after create, got %d", len(created.Items))
	}
	// ordered by name
	if created.Items[0].Name != "Aluguel" || created.Items[1].Name != "Energia" {
		t.Errorf("unexpected order %+v", created.Items)
	}

	expenses, err := f.ledger.ListCategories(ctx, core.Expense)
	if err != nil || len(expenses) != 2 {
		t.Fatalf("ListCategories(EXPENSE) = %d %v", len(expenses), err)
	}

	if _, err := f.ledger.UpdateCategory(ctx, created.Item.ID, core.CategoryInput{Name: "", Type: core.Expense}); failureKind(t, err) != core.KindValidation {
		t.Error("empty name should be a validation failure")
	}
	if _, err := f.ledger.UpdateCategory(ctx, 999, core.CategoryInput{Name: "x", Type: core.Expense}); failureKind(t, err) != core.KindNotFound {
		t.Error("unknown category should be not_found")
	}

	if _, err := f.ledger.DeleteCategory(ctx, f.rent); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
	got, err := f.ledger.GetTransaction(ctx, tx.Item.ID)
	if err != nil {
		t.Fatalf("transaction should survive category delete: %v", err)
	}
	if got.CategoryID != nil || got.CategoryName != "" {
		t.Errorf("category reference not cleared: %+v", got)
	}
}

func TestPaymentMethodLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	upd, err := f.ledger.UpdatePaymentMethod(ctx, f.pix, core.PaymentMethodInput{Name: "PIX"})
	if err != nil {
		t.Fatalf("UpdatePaymentMethod: %v", err)
	}
	if upd.Item.Name != "PIX" || len(upd.Items) != 1 {
		t.Fatalf("unexpected mutation %+v", upd)
	}

	del, err := f.ledger.DeletePaymentMethod(ctx, f.pix)
	if err != nil {
		t.Fatalf("DeletePaymentMethod: %v", err)
	}
	if len(del.Items) != 0 {
		t.Fatalf("expected empty list, got %+v", del.Items)
	}
	if _, err := f.ledger.DeletePaymentMethod(ctx, f.pix); failureKind(t, err) != core.KindNotFound {
		t.Error("second delete should be not_found")
	}
}

type failingStore struct {
	*memory.Store
	err error
}

func (s failingStore) ListTransactions(context.Context, store.TransactionQuery) ([]core.TransactionDetails, error) {
	return nil, s.err
}

func TestStoreFailureIsTyped(t *testing.T) {
	cause := errors.New("disk I/O error")
	l := NewLedger(failingStore{Store: memory.New(), err: cause}, nil, nil)

	_, err := l.ListTransactions(context.Background(), store.TransactionQuery{})
	if kind := failureKind(t, err); kind != core.KindStore {
		t.Fatalf("kind = %s, want store", kind)
	}
	if !errors.Is(err, cause) {
		t.Error("cause should stay reachable for logging")
	}
	if err.Error() == cause.Error() {
		t.Error("store detail leaked into the message")
	}
}

func TestCategoryRetypeRefusedWhileInUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.ledger.CreateTransaction(ctx, f.input("100", core.NewDate(2025, 1, 1), core.Expense), store.TransactionQuery{})
	if err != nil {
		t.Fatal(err)
	}
	published := len(f.publisher.msgs)

	_, err = f.ledger.UpdateCategory(ctx, f.rent, core.CategoryInput{Name: "Aluguel", Type: core.Income})
	if failureKind(t, err) != core.KindValidation || !errors.Is(err, core.ErrCategoryInUse) {
		t.Fatalf("retype of a used category: %v", err)
	}
	if cat, _ := f.store.GetCategory(ctx, f.rent); cat.Type != core.Expense {
		t.Errorf("category type changed to %s", cat.Type)
	}
	if len(f.publisher.msgs) != published {
		t.Error("refused update must not publish")
	}

	// Renaming keeps the type and stays allowed
	if _, err := f.ledger.UpdateCategory(ctx, f.rent, core.CategoryInput{Name: "Aluguel loja", Type: core.Expense}); err != nil {
		t.Fatalf("rename: %v", err)
	}

	// Once nothing references it the type may change
	if _, err := f.ledger.DeleteTransaction(ctx, tx.Item.ID, store.TransactionQuery{}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.UpdateCategory(ctx, f.rent, core.CategoryInput{Name: "Aluguel loja", Type: core.Income}); err != nil {
		t.Fatalf("retype of an unused category: %v", err)
	}
}
