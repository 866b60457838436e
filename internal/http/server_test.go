package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fluxo/internal/core"
	"fluxo/internal/log"
	"fluxo/internal/services"
	"fluxo/internal/storage/memory"
	"fluxo/internal/store"
)

var fixedNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	srv   *Server
	store *memory.Store
	sales int64
	rent  int64
	pix   int64
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
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

	dash := services.NewDashboard(s, nil, nil)
	ledger := services.NewLedger(s, nil, dash)
	opts.Now = func() time.Time { return fixedNow }
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	srv := NewServer(":0", ledger, dash, opts)
	t.Cleanup(func() { srv.rateLimiter.Stop() })

	return &testEnv{srv: srv, store: s, sales: sales.ID, rent: rent.ID, pix: pix.ID}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) txBody(amount, date string, typ core.TransactionType) string {
	cat := e.sales
	if typ == core.Expense {
		cat = e.rent
	}
	return `{"amount":"` + amount + `","description":"x","category_id":` + strconv.FormatInt(cat, 10) +
		`,"payment_method_id":` + strconv.FormatInt(e.pix, 10) + `,"date":"` + date + `","type":"` + string(typ) + `"}`
}

type mutationBody struct {
	Item  *core.TransactionDetails  `json:"item"`
	Items []core.TransactionDetails `json:"items"`
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, Options{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(t, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s missing X-Request-ID", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s missing security headers", path)
		}
	}
}

func TestUnknownRouteIsJSON(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(t, http.MethodGet, "/api/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
	body := decode[ErrorBody](t, rr)
	if body.Error.Kind != core.KindNotFound {
		t.Errorf("kind = %q", body.Error.Kind)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	env := newTestEnv(t, Options{})
	const year = "?start=2024-01-01&end=2024-12-31"

	rr := env.do(t, http.MethodPost, "/api/transactions"+year, env.txBody("1500.00", "2024-01-10", core.Income))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	created := decode[mutationBody](t, rr)
	if created.Item == nil || created.Item.CategoryName != "Vendas" {
		t.Fatalf("created item = %+v", created.Item)
	}
	if len(created.Items) != 1 {
		t.Fatalf("refetched items = %d, want 1", len(created.Items))
	}
	id := strconv.FormatInt(created.Item.ID, 10)

	rr = env.do(t, http.MethodPut, "/api/transactions/"+id+year, env.txBody("1750.5", "2024-02-10", core.Income))
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	updated := decode[mutationBody](t, rr)
	if !updated.Items[0].Amount.Equal(decimal.RequireFromString("1750.50")) {
		t.Errorf("amount = %s", updated.Items[0].Amount)
	}

	rr = env.do(t, http.MethodGet, "/api/transactions/"+id, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodDelete, "/api/transactions/"+id+year, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d body=%s", rr.Code, rr.Body.String())
	}
	deleted := decode[mutationBody](t, rr)
	for _, row := range deleted.Items {
		if row.ID == created.Item.ID {
			t.Fatal("deleted id returned by refetch")
		}
	}

	rr = env.do(t, http.MethodGet, "/api/transactions/"+id, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status=%d", rr.Code)
	}
}

func TestListTransactionsUsesRange(t *testing.T) {
	env := newTestEnv(t, Options{})
	for _, b := range []string{
		env.txBody("10", "2024-03-02", core.Income),
		env.txBody("20", "2024-01-02", core.Expense),
		env.txBody("30", "2023-12-31", core.Income),
	} {
		if rr := env.do(t, http.MethodPost, "/api/transactions", b); rr.Code != http.StatusCreated {
			t.Fatalf("seed status=%d body=%s", rr.Code, rr.Body.String())
		}
	}

	tests := []struct {
		query  string
		want   int
		period string
	}{
		{"", 1, "2024-03"},
		{"?preset=current-year", 2, "current-year"},
		{"?preset=all", 3, "all"},
		{"?preset=all&type=expense", 1, "all"},
		{"?start=2023-12-01", 3, "custom"},
		{"?end=2023-12-31", 1, "custom"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, "/api/transactions"+tt.query, "")
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			got := decode[transactionList](t, rr)
			if len(got.Items) != tt.want {
				t.Errorf("items = %d, want %d", len(got.Items), tt.want)
			}
			if got.Range.Period != tt.period {
				t.Errorf("period = %q, want %q", got.Range.Period, tt.period)
			}
		})
	}
}

func TestTransactionErrors(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		kind   core.FailureKind
	}{
		{"missing amount", http.MethodPost, "/api/transactions",
			`{"date":"2024-01-01","category_id":1,"payment_method_id":1,"type":"INCOME"}`,
			http.StatusUnprocessableEntity, core.KindValidation},
		{"negative amount", http.MethodPost, "/api/transactions",
			env.txBody("-1", "2024-01-01", core.Income), http.StatusUnprocessableEntity, core.KindValidation},
		{"amount past column precision", http.MethodPost, "/api/transactions",
			env.txBody("1000000000000", "2024-01-01", core.Income), http.StatusUnprocessableEntity, core.KindValidation},
		{"category of the other type", http.MethodPost, "/api/transactions",
			strings.Replace(env.txBody("1", "2024-01-01", core.Income), `"INCOME"`, `"EXPENSE"`, 1),
			http.StatusUnprocessableEntity, core.KindValidation},
		{"malformed json", http.MethodPost, "/api/transactions", `{"amount":`,
			http.StatusBadRequest, KindBadRequest},
		{"unknown field", http.MethodPost, "/api/transactions", `{"amount":"1","bogus":true}`,
			http.StatusBadRequest, KindBadRequest},
		{"bad id", http.MethodDelete, "/api/transactions/abc", "",
			http.StatusBadRequest, KindBadRequest},
		{"missing id", http.MethodPut, "/api/transactions/999",
			env.txBody("1", "2024-01-01", core.Income), http.StatusNotFound, core.KindNotFound},
		{"bad preset", http.MethodGet, "/api/transactions?preset=someday", "",
			http.StatusBadRequest, KindBadRequest},
		{"bad start", http.MethodGet, "/api/summary?start=01/02/2024", "",
			http.StatusBadRequest, KindBadRequest},
		{"bad type", http.MethodGet, "/api/categories?type=TRANSFER", "",
			http.StatusBadRequest, KindBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.target, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status=%d, want %d (body=%s)", rr.Code, tt.status, rr.Body.String())
			}
			if got := decode[ErrorBody](t, rr).Error.Kind; got != tt.kind {
				t.Errorf("kind = %q, want %q", got, tt.kind)
			}
		})
	}

	rows, _ := env.store.ListTransactions(context.Background(), store.TransactionQuery{})
	if len(rows) != 0 {
		t.Errorf("failed writes reached the store: %d rows", len(rows))
	}
}

func TestSummaryAndCharts(t *testing.T) {
	env := newTestEnv(t, Options{})
	for _, b := range []string{
		env.txBody("1000", "2024-01-15", core.Income),
		env.txBody("300", "2024-02-03", core.Expense),
	} {
		if rr := env.do(t, http.MethodPost, "/api/transactions", b); rr.Code != http.StatusCreated {
			t.Fatalf("seed status=%d body=%s", rr.Code, rr.Body.String())
		}
	}

	rr := env.do(t, http.MethodGet, "/api/summary?preset=current-year", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("summary status=%d body=%s", rr.Code, rr.Body.String())
	}
	summary := decode[services.SummaryView](t, rr)
	if !summary.Totals.Balance.Equal(decimal.NewFromInt(700)) {
		t.Errorf("balance = %s, want 700", summary.Totals.Balance)
	}
	if summary.Balance != "R$ 700,00" {
		t.Errorf("balance_brl = %q", summary.Balance)
	}

	rr = env.do(t, http.MethodGet, "/api/charts?preset=current-year", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("charts status=%d body=%s", rr.Code, rr.Body.String())
	}
	charts := decode[services.ChartsView](t, rr)
	if len(charts.Monthly) != 12 {
		t.Fatalf("monthly = %d points", len(charts.Monthly))
	}
	if !charts.Monthly[0].Profit.Equal(decimal.NewFromInt(1000)) || !charts.Monthly[1].Profit.Equal(decimal.NewFromInt(-300)) {
		t.Errorf("profits = %s, %s", charts.Monthly[0].Profit, charts.Monthly[1].Profit)
	}
	if len(charts.Expenses) != 1 || charts.Expenses[0].Category != "Aluguel" {
		t.Errorf("expenses = %+v", charts.Expenses)
	}

	rr = env.do(t, http.MethodGet, "/api/overview?preset=current-year", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("overview status=%d", rr.Code)
	}
}

func TestSummaryRefreshesAfterWrite(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(t, http.MethodGet, "/api/summary?preset=all", "")
	if got := decode[services.SummaryView](t, rr); got.Count != 0 {
		t.Fatalf("count = %d", got.Count)
	}
	if rr := env.do(t, http.MethodPost, "/api/transactions", env.txBody("5", "2024-03-01", core.Income)); rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/api/summary?preset=all", "")
	if got := decode[services.SummaryView](t, rr); got.Count != 1 {
		t.Errorf("count after write = %d, want 1", got.Count)
	}
}

func TestCategoriesAndPaymentMethods(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(t, http.MethodGet, "/api/categories?type=income", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	list := decode[struct {
		Items []core.Category `json:"items"`
	}](t, rr)
	if len(list.Items) != 1 || list.Items[0].Name != "Vendas" {
		t.Errorf("income categories = %+v", list.Items)
	}

	rr = env.do(t, http.MethodPost, "/api/categories", `{"name":"Serviços","type":"INCOME"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create category status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodPost, "/api/categories", `{"name":"  ","type":"INCOME"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("blank name status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/payment-methods", `{"name":"Boleto"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create payment method status=%d body=%s", rr.Code, rr.Body.String())
	}
	methods := decode[struct {
		Items []core.PaymentMethod `json:"items"`
	}](t, rr)
	if len(methods.Items) != 2 || methods.Items[0].Name != "Boleto" {
		t.Errorf("payment methods = %+v", methods.Items)
	}

	rr = env.do(t, http.MethodDelete, "/api/payment-methods/"+strconv.FormatInt(env.pix, 10), "")
	if rr.Code != http.StatusOK {
		t.Errorf("delete payment method status=%d", rr.Code)
	}
	rr = env.do(t, http.MethodPut, "/api/categories/999", `{"name":"X","type":"INCOME"}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("update missing category status=%d", rr.Code)
	}
}

func TestPeriods(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(t, http.MethodGet, "/api/periods", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := decode[struct {
		Default core.RangeState     `json:"default"`
		Options []core.PeriodOption `json:"options"`
	}](t, rr)
	if body.Default.Period != "2024-03" {
		t.Errorf("default period = %q", body.Default.Period)
	}
	if len(body.Options) != 15 {
		t.Errorf("options = %d, want 15", len(body.Options))
	}
}

func TestWritesAreRateLimited(t *testing.T) {
	// 6 per minute gives a burst of one
	env := newTestEnv(t, Options{RateLimitPerMinute: 6})

	body := env.txBody("1", "2024-03-01", core.Income)
	if rr := env.do(t, http.MethodPost, "/api/transactions", body); rr.Code != http.StatusCreated {
		t.Fatalf("first write status=%d", rr.Code)
	}
	rr := env.do(t, http.MethodPost, "/api/transactions", body)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second write status=%d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	for i := 0; i < 5; i++ {
		if rr := env.do(t, http.MethodGet, "/api/transactions", ""); rr.Code != http.StatusOK {
			t.Fatalf("reads must not be limited, status=%d", rr.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, Options{})

	env.do(t, http.MethodGet, "/api/transactions/7", "")
	rr := env.do(t, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	out := rr.Body.String()
	for _, want := range []string{
		`fluxo_http_requests_total{method="GET",route="/api/transactions/{id}",status="404"} 1`,
		"fluxo_suspicious_requests_total",
		"go_goroutines",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
