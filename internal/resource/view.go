// Package resource holds client-side views over a remote resource: the last
// loaded value, whether a load is running, and the last failure message.
//
// Fetches are latest-wins. Issuing a fetch cancels any fetch still in flight
// on the same view, and only the newest fetch may commit. Losers receive a
// canceled failure. Writes never take part.
package resource

import (
	"context"
	"sync"

	"fluxo/internal/core"
)

type Fetcher[T any] func(ctx context.Context) (T, error)

// State is a point-in-time copy of a view.
type State[T any] struct {
	Data    T             `json:"data"`
	Loaded  bool          `json:"loaded"`
	Loading bool          `json:"loading"`
	Error   string        `json:"error,omitempty"`
	Failure *core.Failure `json:"-"`
}

type View[T any] struct {
	mu     sync.Mutex
	fetch  Fetcher[T]
	seq    uint64
	cancel context.CancelFunc
	state  State[T]
}

func NewView[T any](fetch Fetcher[T]) *View[T] {
	return &View[T]{fetch: fetch}
}

// begin supersedes whatever is in flight and returns the new ticket.
func (v *View[T]) begin(ctx context.Context) (uint64, context.Context, context.CancelFunc) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq++
	if v.cancel != nil {
		v.cancel()
	}
	fctx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	v.state.Loading = true
	return v.seq, fctx, cancel
}

// commit records the outcome of ticket seq unless a newer one exists.
func (v *View[T]) commit(seq uint64, cancel context.CancelFunc, val T, err error) core.Result[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	cancel()
	if seq != v.seq {
		return core.Fail[T](core.Superseded())
	}
	v.cancel = nil
	v.state.Loading = false
	if err != nil {
		f := core.AsFailure(err)
		v.state.Failure = f
		v.state.Error = f.Message
		return core.Fail[T](f)
	}
	v.state.Data = val
	v.state.Loaded = true
	v.state.Failure = nil
	v.state.Error = ""
	return core.Ok(val)
}

// Refetch loads the view. It never panics; failures are returned and kept
// in State.
func (v *View[T]) Refetch(ctx context.Context) core.Result[T] {
	seq, fctx, cancel := v.begin(ctx)
	val, err := v.fetch(fctx)
	return v.commit(seq, cancel, val, err)
}

// Mutate runs write under ctx and then refetches the view. The write is
// outside latest-wins: no fetch can cancel it. The refetch that follows is
// a normal one, so fetches issued while the write ran lose to it. written
// reports whether the write landed; it may be true with a canceled result
// when an even newer fetch took over the view.
func (v *View[T]) Mutate(ctx context.Context, write func(context.Context) error) (res core.Result[T], written bool) {
	if err := write(ctx); err != nil {
		f := core.AsFailure(err)
		v.mu.Lock()
		v.state.Failure = f
		v.state.Error = f.Message
		v.mu.Unlock()
		return core.Fail[T](f), false
	}
	return v.Refetch(ctx), true
}

func (v *View[T]) State() State[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}
