// Package store declares the outbound persistence ports. Backends live under
// internal/storage.
package store

import (
	"context"

	"fluxo/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionQuery narrows a transaction listing. A zero query lists
	// everything.
	TransactionQuery struct {
		Range core.DateRange
		Type  core.TransactionType
	}

	TransactionRepository interface {
		// ListTransactions returns matching rows with names resolved,
		// newest date first, ties by id descending.
		ListTransactions(ctx context.Context, q TransactionQuery) ([]core.TransactionDetails, error)
		GetTransaction(ctx context.Context, id int64) (core.TransactionDetails, error)
		InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, id int64) error
	}

	// CategoryRepository lists categories ordered by name.
	CategoryRepository interface {
		ListCategories(ctx context.Context) ([]core.Category, error)
		GetCategory(ctx context.Context, id int64) (core.Category, error)
		InsertCategory(ctx context.Context, c core.Category) (core.Category, error)
		UpdateCategory(ctx context.Context, c core.Category) (core.Category, error)
		DeleteCategory(ctx context.Context, id int64) error
	}

	// PaymentMethodRepository lists payment methods ordered by name.
	PaymentMethodRepository interface {
		ListPaymentMethods(ctx context.Context) ([]core.PaymentMethod, error)
		GetPaymentMethod(ctx context.Context, id int64) (core.PaymentMethod, error)
		InsertPaymentMethod(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error)
		UpdatePaymentMethod(ctx context.Context, p core.PaymentMethod) (core.PaymentMethod, error)
		DeletePaymentMethod(ctx context.Context, id int64) error
	}

	// Store is a complete backend. Get/Update/Delete of a missing id return
	// an error wrapping core.ErrNotFound.
	Store interface {
		TransactionRepository
		CategoryRepository
		PaymentMethodRepository
		Ping(ctx context.Context) error
		Close() error
	}
)

// Matches reports whether t passes q's filters.
func (q TransactionQuery) Matches(t core.Transaction) bool {
	if q.Type != "" && t.Type != q.Type {
		return false
	}
	if q.Range.Inverted() {
		return false
	}
	return q.Range.Contains(t.Date)
}
