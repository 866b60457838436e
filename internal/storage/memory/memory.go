// Package memory is an in-process store used for development and tests.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"fluxo/internal/core"
	"fluxo/internal/store"
)

type Store struct {
	mu       sync.Mutex
	nextID   int64
	txs      []core.Transaction
	cats     []core.Category
	payments []core.PaymentMethod
	now      func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{now: time.Now}
}

// NewFromFiles seeds categories and payment methods from base. Category lines
// are "INCOME;Name" or "EXPENSE;Name"; payment method lines are plain names.
func NewFromFiles(base string) *Store {
	s := New()
	cats := readLines(filepath.Join(base, "seed_categories.txt"))
	if len(cats) == 0 {
		cats = []string{
			"INCOME;Vendas", "INCOME;Serviços",
			"EXPENSE;Aluguel", "EXPENSE;Insumos", "EXPENSE;Salários",
		}
	}
	methods := readLines(filepath.Join(base, "seed_payment_methods.txt"))
	if len(methods) == 0 {
		methods = []string{"Pix", "Dinheiro", "Cartão de crédito", "Boleto"}
	}
	for _, line := range cats {
		typ, name, ok := strings.Cut(line, ";")
		if !ok || !core.TransactionType(typ).IsValid() {
			continue
		}
		_, _ = s.InsertCategory(context.Background(), core.Category{Name: strings.TrimSpace(name), Type: core.TransactionType(typ)})
	}
	for _, name := range methods {
		_, _ = s.InsertPaymentMethod(context.Background(), core.PaymentMethod{Name: name})
	}
	return s
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error { return nil }

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) ListTransactions(_ context.Context, q store.TransactionQuery) ([]core.TransactionDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.TransactionDetails, 0, len(s.txs))
	for _, t := range s.txs {
		if q.Matches(t) {
			out = append(out, s.details(t))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, id int64) (core.TransactionDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.txIndex(id)
	if i < 0 {
		return core.TransactionDetails{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return s.details(s.txs[i]), nil
}

func (s *Store) InsertTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id()
	t.CreatedAt = s.now().UTC()
	s.txs = append(s.txs, t)
	return t, nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.txIndex(t.ID)
	if i < 0 {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", t.ID, core.ErrNotFound)
	}
	t.CreatedAt = s.txs[i].CreatedAt
	s.txs[i] = t
	return t, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.txIndex(id)
	if i < 0 {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	s.txs = append(s.txs[:i], s.txs[i+1:]...)
	return nil
}

func (s *Store) ListCategories(context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]core.Category(nil), s.cats...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, id int64) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.catIndex(id); i >= 0 {
		return s.cats[i], nil
	}
	return core.Category{}, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
}

func (s *Store) InsertCategory(_ context.Context, c core.Category) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	c.CreatedAt = s.now().UTC()
	s.cats = append(s.cats, c)
	return c, nil
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.catIndex(c.ID)
	if i < 0 {
		return core.Category{}, fmt.Errorf("category %d: %w", c.ID, core.ErrNotFound)
	}
	c.CreatedAt = s.cats[i].CreatedAt
	s.cats[i] = c
	return c, nil
}

// DeleteCategory clears the reference on transactions and child
// categories, mirroring ON DELETE SET NULL.
func (s *Store) DeleteCategory(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.catIndex(id)
	if i < 0 {
		return fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	s.cats = append(s.cats[:i], s.cats[i+1:]...)
	for j := range s.cats {
		if s.cats[j].ParentID != nil && *s.cats[j].ParentID == id {
			s.cats[j].ParentID = nil
		}
	}
	for j := range s.txs {
		if s.txs[j].CategoryID != nil && *s.txs[j].CategoryID == id {
			s.txs[j].CategoryID = nil
		}
	}
	return nil
}

func (s *Store) ListPaymentMethods(context.Context) ([]core.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]core.PaymentMethod(nil), s.payments...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetPaymentMethod(_ context.Context, id int64) (core.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.paymentIndex(id); i >= 0 {
		return s.payments[i], nil
	}
	return core.PaymentMethod{}, fmt.Errorf("payment method %d: %w", id, core.ErrNotFound)
}

func (s *Store) InsertPaymentMethod(_ context.Context, p core.PaymentMethod) (core.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	p.CreatedAt = s.now().UTC()
	s.payments = append(s.payments, p)
	return p, nil
}

func (s *Store) UpdatePaymentMethod(_ context.Context, p core.PaymentMethod) (core.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.paymentIndex(p.ID)
	if i < 0 {
		return core.PaymentMethod{}, fmt.Errorf("payment method %d: %w", p.ID, core.ErrNotFound)
	}
	p.CreatedAt = s.payments[i].CreatedAt
	s.payments[i] = p
	return p, nil
}

func (s *Store) DeletePaymentMethod(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.paymentIndex(id)
	if i < 0 {
		return fmt.Errorf("payment method %d: %w", id, core.ErrNotFound)
	}
	s.payments = append(s.payments[:i], s.payments[i+1:]...)
	for j := range s.txs {
		if s.txs[j].PaymentMethodID != nil && *s.txs[j].PaymentMethodID == id {
			s.txs[j].PaymentMethodID = nil
		}
	}
	return nil
}

// details resolves names. Caller holds s.mu.
func (s *Store) details(t core.Transaction) core.TransactionDetails {
	d := core.TransactionDetails{Transaction: t}
	if t.CategoryID != nil {
		if i := s.catIndex(*t.CategoryID); i >= 0 {
			d.CategoryName = s.cats[i].Name
		}
	}
	if t.PaymentMethodID != nil {
		if i := s.paymentIndex(*t.PaymentMethodID); i >= 0 {
			d.PaymentMethodName = s.payments[i].Name
		}
	}
	return d
}

func (s *Store) txIndex(id int64) int {
	for i := range s.txs {
		if s.txs[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) catIndex(id int64) int {
	for i := range s.cats {
		if s.cats[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) paymentIndex(id int64) int {
	for i := range s.payments {
		if s.payments[i].ID == id {
			return i
		}
	}
	return -1
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
