// Package postgres is the pgx-backed store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"fluxo/internal/core"
	"fluxo/internal/store"
)

const (
	transactionSelect = `
		SELECT t.id, t.value::text, t.description, t.category_id, t.payment_id, t.date, t.type, t.created_at,
			COALESCE(c.name, ''), COALESCE(p.name, '')
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		LEFT JOIN payment_method p ON p.id = t.payment_id`
	categoryColumns = "id, name, parent_id, type, created_at"
	paymentColumns  = "id, name, created_at"
)

type Repository struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Repository)(nil)

// Connect opens a pool, checks it and applies migrations.
func Connect(ctx context.Context, url string) (*Repository, error) {
	if err := RunMigrations(url); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) ListTransactions(ctx context.Context, q store.TransactionQuery) ([]core.TransactionDetails, error) {
	if q.Range.Inverted() {
		return []core.TransactionDetails{}, nil
	}
	var (
		where []string
		args  []any
	)
	if q.Range.Start != nil {
		args = append(args, q.Range.Start.Time)
		where = append(where, fmt.Sprintf("t.date >= $%d", len(args)))
	}
	if q.Range.End != nil {
		args = append(args, q.Range.End.Time)
		where = append(where, fmt.Sprintf("t.date <= $%d", len(args)))
	}
	if q.Type != "" {
		args = append(args, string(q.Type))
		where = append(where, fmt.Sprintf("t.type = $%d", len(args)))
	}
	query := transactionSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY t.date DESC, t.id DESC"

	rows, err := r.pool.Query(ctx, query, args...)
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
	return out, rows.Err()
}

func (r *Repository) GetTransaction(ctx context.Context, id int64) (core.TransactionDetails, error) {
	d, err := scanTransaction(r.pool.QueryRow(ctx, transactionSelect+" WHERE t.id = $1", id))
	if err != nil {
		return core.TransactionDetails{}, notFound(err, "transaction", id)
	}
	return d, nil
}

func (r *Repository) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	query := `
		INSERT INTO transactions (value, description, category_id, payment_id, date, type)
		VALUES ($1::text::numeric, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		t.Amount.StringFixed(2), t.Description, t.CategoryID, t.PaymentMethodID, t.Date.Time, string(t.Type)).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to Postgres",
		"id", t.ID,
		"type", t.Type,
		"amount", t.Amount.String(),
		"date", t.Date.String())

	return t, nil
}

func (r *Repository) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	query := `
		UPDATE transactions
		SET value = $1::text::numeric, description = $2, category_id = $3, payment_id = $4, date = $5, type = $6
		WHERE id = $7
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query,
		t.Amount.StringFixed(2), t.Description, t.CategoryID, t.PaymentMethodID, t.Date.Time, string(t.Type), t.ID).
		Scan(&t.CreatedAt)
	if err != nil {
		return core.Transaction{}, notFound(err, "transaction", t.ID)
	}
	return t, nil
}

func (r *Repository) DeleteTransaction(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM transactions WHERE id = $1", id)
	return affected(tag, err, "transaction", id)
}

func (r *Repository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+categoryColumns+" FROM categories ORDER BY name ASC, id ASC")
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
	return out, rows.Err()
}

func (r *Repository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	c, err := scanCategory(r.pool.QueryRow(ctx, "SELECT "+categoryColumns+" FROM categories WHERE id = $1", id))
	if err != nil {
		return core.Category{}, notFound(err, "category", id)
	}
	return c, nil
}

func (r *Repository) InsertCategory(ctx context.Context, c core.Category) (core.Category, error) {
	row := r.pool.QueryRow(ctx,
		"INSERT INTO categories (name, parent_id, type) VALUES ($1, $2, $3) RETURNING "+categoryColumns,
		c.Name, c.ParentID, string(c.Type))
	out, err := scanCategory(row)
	if err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return out, nil
}

func (r *Repository) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	row := r.pool.QueryRow(ctx,
		"UPDATE categories SET name = $1, parent_id = $2, type = $3 WHERE id = $4 RETURNING "+categoryColumns,
		c.Name, c.ParentID, string(c.Type), c.ID)
	out, err := scanCategory(row)
	if err != nil {
		return core.Category{}, notFound(err, "category", c.ID)
	}
	return out, nil
}

func (r *Repository) DeleteCategory(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM categories WHERE id = $1", id)
	return affected(tag, err, "category", id)
}

func (r *Repository) ListPaymentMethods(ctx context.Context) ([]core.PaymentMethod, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+paymentColumns+" FROM payment_method ORDER BY name ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	defer rows.Close()

	out := []core.PaymentMethod{}
	for rows.Next() {
		var p core.PaymentMethod
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) GetPaymentMethod(ctx context.Context, id int64) (core.PaymentMethod, error) {
	var p core.PaymentMethod
	err := r.pool.QueryRow(ctx, "SELECT "+paymentColumns+" FROM payment_method WHERE id = $1", id).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		return core.PaymentMethod{}, notFound(err, "payment method", id)
	}
	return p, nil
}

func (r *Repository) InsertPaymentMethod(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error) {
	err := r.pool.QueryRow(ctx,
		"INSERT INTO payment_method (name) VALUES ($1) RETURNING "+paymentColumns, p.Name).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		return core.PaymentMethod{}, fmt.Errorf("insert payment method: %w", err)
	}
	return p, nil
}

func (r *Repository) UpdatePaymentMethod(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error) {
	err := r.pool.QueryRow(ctx,
		"UPDATE payment_method SET name = $1 WHERE id = $2 RETURNING "+paymentColumns, p.Name, p.ID).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		return core.PaymentMethod{}, notFound(err, "payment method", p.ID)
	}
	return p, nil
}

func (r *Repository) DeletePaymentMethod(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM payment_method WHERE id = $1", id)
	return affected(tag, err, "payment method", id)
}

func scanTransaction(row pgx.Row) (core.TransactionDetails, error) {
	var (
		d     core.TransactionDetails
		value string
		date  time.Time
		typ   string
	)
	err := row.Scan(&d.ID, &value, &d.Description, &d.CategoryID, &d.PaymentMethodID, &date, &typ, &d.CreatedAt,
		&d.CategoryName, &d.PaymentMethodName)
	if err != nil {
		return d, err
	}
	if d.Amount, err = decimal.NewFromString(value); err != nil {
		return d, fmt.Errorf("parse value %q: %w", value, err)
	}
	d.Date = core.DateOf(date)
	d.Type = core.TransactionType(typ)
	return d, nil
}

func scanCategory(row pgx.Row) (core.Category, error) {
	var (
		c   core.Category
		typ string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.ParentID, &typ, &c.CreatedAt); err != nil {
		return c, err
	}
	c.Type = core.TransactionType(typ)
	return c, nil
}

func notFound(err error, resource string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", resource, id, core.ErrNotFound)
	}
	return fmt.Errorf("%s %d: %w", resource, id, err)
}

func affected(tag pgconn.CommandTag, err error, resource string, id int64) error {
	if err != nil {
		return fmt.Errorf("delete %s: %w", resource, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", resource, id, core.ErrNotFound)
	}
	return nil
}
