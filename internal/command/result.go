package command

import (
	"context"
	"sync"
)

// Result is a single-assignment cell. The first Resolve or Reject wins;
// every waiter observes the same outcome.
//
// Wait blocks the calling goroutine. Callers multiplexing several results
// select on Done and then read Value.
type Result[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewResult returns an unresolved result.
func NewResult[T any]() *Result[T] {
	return &Result[T]{done: make(chan struct{})}
}

// Resolve settles the result with a value. It reports whether this call
// settled it.
func (r *Result[T]) Resolve(v T) bool {
	return r.settle(v, nil)
}

// Reject settles the result with a fault. It reports whether this call
// settled it.
func (r *Result[T]) Reject(err error) bool {
	var zero T
	return r.settle(zero, err)
}

func (r *Result[T]) settle(v T, err error) bool {
	settled := false
	r.once.Do(func() {
		r.value = v
		r.err = err
		close(r.done)
		settled = true
	})
	return settled
}

// Done is closed once the result is settled.
func (r *Result[T]) Done() <-chan struct{} {
	return r.done
}

// Settled reports whether the result has a value or a fault.
func (r *Result[T]) Settled() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Value returns the settled outcome. It must only be called after Done is closed.
func (r *Result[T]) Value() (T, error) {
	return r.value, r.err
}

// Wait blocks until the result is settled or ctx is done. Giving up on ctx
// does not cancel the command; it still settles later.
func (r *Result[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-r.done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
