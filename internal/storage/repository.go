package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fluxo/internal/core"
	"fluxo/internal/store"

	_ "modernc.org/sqlite"
)

const (
	timestampLayout = time.RFC3339Nano

	transactionColumns = `t.id, t.value, t.description, t.category_id, t.payment_id, t.date, t.type, t.created_at,
		COALESCE(c.name, ''), COALESCE(p.name, '')`
	transactionJoins = `FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		LEFT JOIN payment_method p ON p.id = t.payment_id`
)

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*SQLiteRepository)(nil)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the main pool exists so it never sees a partial schema
	if _, err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, q store.TransactionQuery) ([]core.TransactionDetails, error) {
	if q.Range.Inverted() {
		return []core.TransactionDetails{}, nil
	}
	var (
		where []string
		args  []any
	)
	if q.Range.Start != nil {
		where = append(where, "t.date >= ?")
		args = append(args, q.Range.Start.String())
	}
	if q.Range.End != nil {
		where = append(where, "t.date <= ?")
		args = append(args, q.Range.End.String())
	}
	if q.Type != "" {
		where = append(where, "t.type = ?")
		args = append(args, string(q.Type))
	}
	query := "SELECT " + transactionColumns + " " + transactionJoins
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY t.date DESC, t.id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []core.TransactionDetails{}
	for rows.Next() {
		d, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.TransactionDetails, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+transactionColumns+" "+transactionJoins+" WHERE t.id = ?", id)
	d, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TransactionDetails{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.TransactionDetails{}, fmt.Errorf("get transaction: %w", err)
	}
	return d, nil
}

func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.CreatedAt = r.now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (value, description, category_id, payment_id, date, type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.Amount.String(), t.Description, nullableID(t.CategoryID), nullableID(t.PaymentMethodID),
		t.Date.String(), string(t.Type), t.CreatedAt.Format(timestampLayout))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction id: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"type", t.Type,
		"amount", t.Amount.String(),
		"date", t.Date.String())

	return t, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET value = ?, description = ?, category_id = ?, payment_id = ?, date = ?, type = ?
		WHERE id = ?`,
		t.Amount.String(), t.Description, nullableID(t.CategoryID), nullableID(t.PaymentMethodID),
		t.Date.String(), string(t.Type), t.ID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if err := expectRow(res, "transaction", t.ID); err != nil {
		return core.Transaction{}, err
	}
	d, err := r.GetTransaction(ctx, t.ID)
	if err != nil {
		return core.Transaction{}, err
	}
	return d.Transaction, nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if err := expectRow(res, "transaction", id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Transaction deleted from SQLite", "id", id)
	return nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, parent_id, type, created_at FROM categories ORDER BY name ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := []core.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	row := r.db.QueryRowContext(ctx, "SELECT id, name, parent_id, type, created_at FROM categories WHERE id = ?", id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) InsertCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.CreatedAt = r.now().UTC()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO categories (name, parent_id, type, created_at) VALUES (?, ?, ?, ?)",
		c.Name, nullableID(c.ParentID), string(c.Type), c.CreatedAt.Format(timestampLayout))
	if err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return core.Category{}, fmt.Errorf("insert category id: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE categories SET name = ?, parent_id = ?, type = ? WHERE id = ?",
		c.Name, nullableID(c.ParentID), string(c.Type), c.ID)
	if err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}
	if err := expectRow(res, "category", c.ID); err != nil {
		return core.Category{}, err
	}
	return r.GetCategory(ctx, c.ID)
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return expectRow(res, "category", id)
}

func (r *SQLiteRepository) ListPaymentMethods(ctx context.Context) ([]core.PaymentMethod, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM payment_method ORDER BY name ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	defer rows.Close()

	out := []core.PaymentMethod{}
	for rows.Next() {
		p, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment methods: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetPaymentMethod(ctx context.Context, id int64) (core.PaymentMethod, error) {
	row := r.db.QueryRowContext(ctx, "SELECT id, name, created_at FROM payment_method WHERE id = ?", id)
	p, err := scanPaymentMethod(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.PaymentMethod{}, fmt.Errorf("payment method %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.PaymentMethod{}, fmt.Errorf("get payment method: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) InsertPaymentMethod(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error) {
	p.CreatedAt = r.now().UTC()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO payment_method (name, created_at) VALUES (?, ?)",
		p.Name, p.CreatedAt.Format(timestampLayout))
	if err != nil {
		return core.PaymentMethod{}, fmt.Errorf("insert payment method: %w", err)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return core.PaymentMethod{}, fmt.Errorf("insert payment method id: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) UpdatePaymentMethod(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error) {
	res, err := r.db.ExecContext(ctx, "UPDATE payment_method SET name = ? WHERE id = ?", p.Name, p.ID)
	if err != nil {
		return core.PaymentMethod{}, fmt.Errorf("update payment method: %w", err)
	}
	if err := expectRow(res, "payment method", p.ID); err != nil {
		return core.PaymentMethod{}, err
	}
	return r.GetPaymentMethod(ctx, p.ID)
}

func (r *SQLiteRepository) DeletePaymentMethod(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM payment_method WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete payment method: %w", err)
	}
	return expectRow(res, "payment method", id)
}

func scanTransaction(s rowScanner) (core.TransactionDetails, error) {
	var (
		d                   core.TransactionDetails
		value, date, typ    string
		created             string
		categoryID, payment sql.NullInt64
	)
	if err := s.Scan(&d.ID, &value, &d.Description, &categoryID, &payment, &date, &typ, &created,
		&d.CategoryName, &d.PaymentMethodName); err != nil {
		return d, err
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return d, fmt.Errorf("parse value %q: %w", value, err)
	}
	d.Amount = amount
	if d.Date, err = core.ParseDate(date); err != nil {
		return d, err
	}
	d.Type = core.TransactionType(typ)
	d.CategoryID = fromNullable(categoryID)
	d.PaymentMethodID = fromNullable(payment)
	d.CreatedAt = parseTimestamp(created)
	return d, nil
}

func scanCategory(s rowScanner) (core.Category, error) {
	var (
		c       core.Category
		parent  sql.NullInt64
		typ     string
		created string
	)
	if err := s.Scan(&c.ID, &c.Name, &parent, &typ, &created); err != nil {
		return c, err
	}
	c.ParentID = fromNullable(parent)
	c.Type = core.TransactionType(typ)
	c.CreatedAt = parseTimestamp(created)
	return c, nil
}

func scanPaymentMethod(s rowScanner) (core.PaymentMethod, error) {
	var (
		p       core.PaymentMethod
		created string
	)
	if err := s.Scan(&p.ID, &p.Name, &created); err != nil {
		return p, err
	}
	p.CreatedAt = parseTimestamp(created)
	return p, nil
}

func expectRow(res sql.Result, resource string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", resource, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", resource, id, core.ErrNotFound)
	}
	return nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func fromNullable(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
