package services

import (
	"context"
	"errors"
	"fmt"

	"fluxo/internal/amqp"
	"fluxo/internal/core"
	"fluxo/internal/log"
	"fluxo/internal/store"
)

// ChangePublisher announces successful writes. *amqp.Client satisfies it.
type ChangePublisher interface {
	PublishChange(ctx context.Context, msg *amqp.ChangeMessage) error
}

// Invalidator drops derived data after a write.
type Invalidator interface {
	Invalidate()
}

// Mutation is what every write returns: the written row (nil after a
// delete) and the resource list re-read after the write.
type Mutation[T any] struct {
	Item  *T  `json:"item,omitempty"`
	Items []T `json:"items"`
}

// Ledger orchestrates CRUD over the store. Inputs are validated before the
// store sees them, and every successful write is followed by a re-read of
// the affected list.
type Ledger struct {
	store       store.Store
	publisher   ChangePublisher
	invalidator Invalidator
	log         *log.StructuredLogger
}

// NewLedger wires a ledger. publisher and invalidator may be nil.
func NewLedger(s store.Store, publisher ChangePublisher, invalidator Invalidator) *Ledger {
	logger := log.FromContext(context.Background()).WithComponent(log.ComponentLedger)
	return &Ledger{
		store:       s,
		publisher:   publisher,
		invalidator: invalidator,
		log:         log.NewStructuredLogger(logger),
	}
}

// storeError converts a repository error into a Failure.
func storeError(op, resource string, id int64, err error) error {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return core.NotFound(resource, id)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return core.AsFailure(err)
	}
	return core.StoreFailure(op, err)
}

func (l *Ledger) ListTransactions(ctx context.Context, q store.TransactionQuery) ([]core.TransactionDetails, error) {
	rows, err := l.store.ListTransactions(ctx, q)
	if err != nil {
		return nil, storeError("list transactions", "transaction", 0, err)
	}
	return rows, nil
}

func (l *Ledger) GetTransaction(ctx context.Context, id int64) (core.TransactionDetails, error) {
	t, err := l.store.GetTransaction(ctx, id)
	if err != nil {
		return core.TransactionDetails{}, storeError("get transaction", "transaction", id, err)
	}
	return t, nil
}

// checkReferences verifies the category exists with the transaction's type
// and the payment method exists. Missing references are validation errors.
func (l *Ledger) checkReferences(ctx context.Context, in core.TransactionInput) error {
	cat, err := l.store.GetCategory(ctx, *in.CategoryID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Invalid(fmt.Errorf("%w: category %d does not exist", core.ErrMissingCategory, *in.CategoryID))
	}
	if err != nil {
		return storeError("get category", "category", *in.CategoryID, err)
	}
	if cat.Type != in.Type {
		return core.Invalid(core.ErrCategoryTypeMismatch)
	}

	_, err = l.store.GetPaymentMethod(ctx, *in.PaymentMethodID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Invalid(fmt.Errorf("%w: payment method %d does not exist", core.ErrMissingPaymentMethod, *in.PaymentMethodID))
	}
	if err != nil {
		return storeError("get payment method", "payment method", *in.PaymentMethodID, err)
	}
	return nil
}

// CreateTransaction inserts a transaction and returns it with the list for q.
func (l *Ledger) CreateTransaction(ctx context.Context, in core.TransactionInput, q store.TransactionQuery) (Mutation[core.TransactionDetails], error) {
	if err := in.Validate(); err != nil {
		return Mutation[core.TransactionDetails]{}, core.Invalid(err)
	}
	if err := l.checkReferences(ctx, in); err != nil {
		return Mutation[core.TransactionDetails]{}, err
	}

	created, err := l.store.InsertTransaction(ctx, in.Transaction())
	if err != nil {
		return Mutation[core.TransactionDetails]{}, storeError("create transaction", "transaction", 0, err)
	}
	l.afterWrite(ctx, amqp.NewChangeMessage(amqp.ResourceTransactions, amqp.ActionCreated, created.ID, created.Date.Year()), log.OpCreate)

	return l.transactionMutation(ctx, created.ID, q)
}

// UpdateTransaction replaces every field of transaction id.
func (l *Ledger) UpdateTransaction(ctx context.Context, id int64, in core.TransactionInput, q store.TransactionQuery) (Mutation[core.TransactionDetails], error) {
	if err := in.Validate(); err != nil {
		return Mutation[core.TransactionDetails]{}, core.Invalid(err)
	}
	previous, err := l.store.GetTransaction(ctx, id)
	if err != nil {
		return Mutation[core.TransactionDetails]{}, storeError("get transaction", "transaction", id, err)
	}
	if err := l.checkReferences(ctx, in); err != nil {
		return Mutation[core.TransactionDetails]{}, err
	}

	t := in.Transaction()
	t.ID = id
	updated, err := l.store.UpdateTransaction(ctx, t)
	if err != nil {
		return Mutation[core.TransactionDetails]{}, storeError("update transaction", "transaction", id, err)
	}

	msg := amqp.NewChangeMessage(amqp.ResourceTransactions, amqp.ActionUpdated, id, updated.Date.Year())
	if y := previous.Date.Year(); y != msg.Year {
		msg.PreviousYear = y
	}
	l.afterWrite(ctx, msg, log.OpUpdate)

	return l.transactionMutation(ctx, id, q)
}

// DeleteTransaction removes transaction id and returns the list for q.
func (l *Ledger) DeleteTransaction(ctx context.Context, id int64, q store.TransactionQuery) (Mutation[core.TransactionDetails], error) {
	previous, err := l.store.GetTransaction(ctx, id)
	if err != nil {
		return Mutation[core.TransactionDetails]{}, storeError("get transaction", "transaction", id, err)
	}
	if err := l.store.DeleteTransaction(ctx, id); err != nil {
		return Mutation[core.TransactionDetails]{}, storeError("delete transaction", "transaction", id, err)
	}
	l.afterWrite(ctx, amqp.NewChangeMessage(amqp.ResourceTransactions, amqp.ActionDeleted, id, previous.Date.Year()), log.OpDelete)

	items, err := l.ListTransactions(ctx, q)
	if err != nil {
		return Mutation[core.TransactionDetails]{}, err
	}
	return Mutation[core.TransactionDetails]{Items: items}, nil
}

func (l *Ledger) transactionMutation(ctx context.Context, id int64, q store.TransactionQuery) (Mutation[core.TransactionDetails], error) {
	item, err := l.GetTransaction(ctx, id)
	if err != nil {
		return Mutation[core.TransactionDetails]{}, err
	}
	items, err := l.ListTransactions(ctx, q)
	if err != nil {
		return Mutation[core.TransactionDetails]{}, err
	}
	return Mutation[core.TransactionDetails]{Item: &item, Items: items}, nil
}

// ListCategories returns categories by name, optionally only those of typ.
func (l *Ledger) ListCategories(ctx context.Context, typ core.TransactionType) ([]core.Category, error) {
	all, err := l.store.ListCategories(ctx)
	if err != nil {
		return nil, storeError("list categories", "category", 0, err)
	}
	if typ == "" {
		return all, nil
	}
	out := make([]core.Category, 0, len(all))
	for _, c := range all {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out, nil
}

func (l *Ledger) CreateCategory(ctx context.Context, in core.CategoryInput) (Mutation[core.Category], error) {
	if err := in.Validate(); err != nil {
		return Mutation[core.Category]{}, core.Invalid(err)
	}
	created, err := l.store.InsertCategory(ctx, in.Category())
	if err != nil {
		return Mutation[core.Category]{}, storeError("create category", "category", 0, err)
	}
	l.afterWrite(ctx, amqp.NewChangeMessage(amqp.ResourceCategories, amqp.ActionCreated, created.ID, 0), log.OpCreate)
	return l.categoryMutation(ctx, &created)
}

func (l *Ledger) UpdateCategory(ctx context.Context, id int64, in core.CategoryInput) (Mutation[core.Category], error) {
	if err := in.Validate(); err != nil {
		return Mutation[core.Category]{}, core.Invalid(err)
	}
	c := in.Category()
	c.ID = id
	if err := l.checkRetype(ctx, c); err != nil {
		return Mutation[core.Category]{}, err
	}
	updated, err := l.store.UpdateCategory(ctx, c)
	if err != nil {
		return Mutation[core.Category]{}, storeError("update category", "category", id, err)
	}
	l.afterWrite(ctx, amqp.NewChangeMessage(amqp.ResourceCategories, amqp.ActionUpdated, id, 0), log.OpUpdate)
	return l.categoryMutation(ctx, &updated)
}

// checkRetype refuses a type change on a category that transactions still
// reference, since they would no longer match it.
func (l *Ledger) checkRetype(ctx context.Context, c core.Category) error {
	current, err := l.store.GetCategory(ctx, c.ID)
	if err != nil {
		return storeError("update category", "category", c.ID, err)
	}
	if current.Type == c.Type {
		return nil
	}
	rows, err := l.store.ListTransactions(ctx, store.TransactionQuery{})
	if err != nil {
		return storeError("update category", "category", c.ID, err)
	}
	for _, t := range rows {
		if t.CategoryID != nil && *t.CategoryID == c.ID {
			return core.Invalid(core.ErrCategoryInUse)
		}
	}
	return nil
}

// DeleteCategory removes a category. Transactions that used it keep
// existing with no category.
func (l *Ledger) DeleteCategory(ctx context.Context, id int64) (Mutation[core.Category], error) {
	if err := l.store.DeleteCategory(ctx, id); err != nil {
		return Mutation[core.Category]{}, storeError("delete category", "category", id, err)
	}
	l.afterWrite(ctx, amqp.NewChangeMessage(amqp.ResourceCategories, amqp.ActionDeleted, id, 0), log.OpDelete)
	return l.categoryMutation(ctx, nil)
}

func (l *Ledger) categoryMutation(ctx context.Context, item *core.Category) (Mutation[core.Category], error) {
	items, err := l.ListCategories(ctx, "")
	if err != nil {
		return Mutation[core.Category]{}, err
	}
	return Mutation[core.Category]{Item: item, Items: items}, nil
}

func (l *Ledger) ListPaymentMethods(ctx context.Context) ([]core.PaymentMethod, error) {
	rows, err := l.store.ListPaymentMethods(ctx)
	if err != nil {
		return nil, storeError("list payment methods", "payment method", 0, err)
	}
	return rows, nil
}

func (l *Ledger) CreatePaymentMethod(ctx context.Context, in core.PaymentMethodInput) (Mutation[core.PaymentMethod], error) {
	if err := in.Validate(); err != nil {
		return Mutation[core.PaymentMethod]{}, core.Invalid(err)
	}
	created, err := l.store.InsertPaymentMethod(ctx, in.PaymentMethod())
	if err != nil {
		return Mutation[core.PaymentMethod]{}, storeError("create payment method", "payment method", 0, err)
	}
	l.afterWrite(ctx, amqp.NewChangeMessage(amqp.ResourcePaymentMethods, amqp.ActionCreated, created.ID, 0), log.OpCreate)
	return l.paymentMethodMutation(ctx, &created)
}

func (l *Ledger) UpdatePaymentMethod(ctx context.Context, id int64, in core.PaymentMethodInput) (Mutation[core.PaymentMethod], error) {
	if err := in.Validate(); err != nil {
		return Mutation[core.PaymentMethod]{}, core.Invalid(err)
	}
	p := in.PaymentMethod()
	p.ID = id
	updated, err := l.store.UpdatePaymentMethod(ctx, p)
	if err != nil {
		return Mutation[core.PaymentMethod]{}, storeError("update payment method", "payment method", id, err)
	}
	l.afterWrite(ctx, amqp.NewChangeMessage(amqp.ResourcePaymentMethods, amqp.ActionUpdated, id, 0), log.OpUpdate)
	return l.paymentMethodMutation(ctx, &updated)
}

func (l *Ledger) DeletePaymentMethod(ctx context.Context, id int64) (Mutation[core.PaymentMethod], error) {
	if err := l.store.DeletePaymentMethod(ctx, id); err != nil {
		return Mutation[core.PaymentMethod]{}, storeError("delete payment method", "payment method", id, err)
	}
	l.afterWrite(ctx, amqp.NewChangeMessage(amqp.ResourcePaymentMethods, amqp.ActionDeleted, id, 0), log.OpDelete)
	return l.paymentMethodMutation(ctx, nil)
}

func (l *Ledger) paymentMethodMutation(ctx context.Context, item *core.PaymentMethod) (Mutation[core.PaymentMethod], error) {
	items, err := l.ListPaymentMethods(ctx)
	if err != nil {
		return Mutation[core.PaymentMethod]{}, err
	}
	return Mutation[core.PaymentMethod]{Item: item, Items: items}, nil
}

// afterWrite invalidates derived data and publishes the change. Publishing
// is best effort: the write already happened.
func (l *Ledger) afterWrite(ctx context.Context, msg *amqp.ChangeMessage, op string) {
	l.log.LogWrite(ctx, msg.Resource, op, msg.ID)

	if l.invalidator != nil {
		l.invalidator.Invalidate()
	}

	if l.publisher == nil {
		return
	}
	if err := l.publisher.PublishChange(ctx, msg); err != nil {
		l.log.LogError(ctx, "Failed to publish change message", err, log.ComponentAMQP, log.OpPublish,
			log.NewFields().WithResource(msg.Resource, msg.ID))
	}
}

// Ping reports whether the store is reachable.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}
