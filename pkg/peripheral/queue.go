package peripheral

import (
	"context"
	"sync"
)

// Future is the suspension handle returned by blocking facade operations.
// It is settled exactly once, either by a reply (resolve) or by teardown (reject).
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Rejected returns an already settled future carrying err
func Rejected[T any](err error) *Future[T] {
	f := newFuture[T]()
	f.reject(err)
	return f
}

func (f *Future[T]) resolve(v T) bool {
	settled := false
	f.once.Do(func() {
		f.value = v
		close(f.done)
		settled = true
	})
	return settled
}

func (f *Future[T]) reject(err error) bool {
	settled := false
	f.once.Do(func() {
		f.err = err
		close(f.done)
		settled = true
	})
	return settled
}

// Done is closed once the future is settled
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is done.
// Abandoning a wait through ctx does not give up the reply slot: the waiter stays
// queued and still consumes the reply it was issued for.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	// a settled future wins over a context that is also done
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}

	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the settled value and error; ok is false while still pending
func (f *Future[T]) Result() (value T, err error, ok bool) {
	select {
	case <-f.done:
		return f.value, f.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// ObserverQueue is an ordered per-peripheral queue of pending waiters.
// The Nth enqueued waiter is resolved by the Nth Resolve call.
type ObserverQueue[T any] struct {
	mu      sync.Mutex
	waiters []*Future[T]
}

// Enqueue appends a new waiter to the tail and returns its future
func (q *ObserverQueue[T]) Enqueue() *Future[T] {
	f := newFuture[T]()
	q.mu.Lock()
	q.waiters = append(q.waiters, f)
	q.mu.Unlock()
	return f
}

// Resolve pops the head waiter and resolves it with v.
// It returns false, and does nothing else, when no waiter is pending.
func (q *ObserverQueue[T]) Resolve(v T) bool {
	q.mu.Lock()
	if len(q.waiters) == 0 {
		q.mu.Unlock()
		return false
	}
	head := q.waiters[0]
	q.waiters[0] = nil
	q.waiters = q.waiters[1:]
	q.mu.Unlock()

	head.resolve(v)
	return true
}

// Reject pops the head waiter and rejects it with err.
// Used when a reply arrived for the head but could not be decoded.
func (q *ObserverQueue[T]) Reject(err error) bool {
	q.mu.Lock()
	if len(q.waiters) == 0 {
		q.mu.Unlock()
		return false
	}
	head := q.waiters[0]
	q.waiters[0] = nil
	q.waiters = q.waiters[1:]
	q.mu.Unlock()

	head.reject(err)
	return true
}

// Remove drops a specific waiter without settling it.
// Used when the command that enqueued it could not be sent.
func (q *ObserverQueue[T]) Remove(f *Future[T]) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, w := range q.waiters {
		if w == f {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// RejectAll drains the queue, rejecting every pending waiter with err in FIFO order.
// It returns the number of rejected waiters.
func (q *ObserverQueue[T]) RejectAll(err error) int {
	q.mu.Lock()
	pending := q.waiters
	q.waiters = nil
	q.mu.Unlock()

	for _, w := range pending {
		w.reject(err)
	}
	return len(pending)
}

// Len returns the number of pending waiters
func (q *ObserverQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}
