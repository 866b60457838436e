package core

import (
	"context"
	"errors"
	"fmt"
)

type FailureKind string

const (
	KindValidation FailureKind = "validation"
	KindNotFound   FailureKind = "not_found"
	KindStore      FailureKind = "store"
	KindCanceled   FailureKind = "canceled"
)

// Failure is the error every service returns. Message is safe to show.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	err     error
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.err
}

func Invalid(err error) *Failure {
	return &Failure{Kind: KindValidation, Message: err.Error(), err: err}
}

func NotFound(resource string, id int64) *Failure {
	return &Failure{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s %d not found", resource, id),
		err:     ErrNotFound,
	}
}

func StoreFailure(op string, err error) *Failure {
	return &Failure{Kind: KindStore, Message: op + " failed", err: err}
}

// Superseded is reported to callers whose fetch lost to a newer one.
func Superseded() *Failure {
	return &Failure{Kind: KindCanceled, Message: "superseded by a newer request", err: context.Canceled}
}

// AsFailure classifies any error. Store errors keep their cause for logging
// but expose only a generic message.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Failure{Kind: KindCanceled, Message: err.Error(), err: err}
	case errors.Is(err, ErrNotFound):
		return &Failure{Kind: KindNotFound, Message: err.Error(), err: err}
	}
	return StoreFailure("store operation", err)
}

// Result is the outcome of a view fetch or mutation: either Value or Failure.
type Result[T any] struct {
	Value   T
	Failure *Failure
}

func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func Fail[T any](f *Failure) Result[T] {
	return Result[T]{Failure: f}
}

func (r Result[T]) OK() bool {
	return r.Failure == nil
}
