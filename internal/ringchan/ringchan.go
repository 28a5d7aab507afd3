// Package ringchan provides a bounded channel that never blocks producers.
package ringchan

import (
	"sync"
	"sync/atomic"
)

// RingChannel is a buffered channel with overwrite-oldest semantics.
//
// Producers call Push, which always succeeds: when the buffer is full the oldest
// element is discarded and counted as dropped. Consumers read from C() like any
// other channel, or use TryReceive.
//
//	rc := ringchan.New[peripheral.Alert](64)
//	rc.Push(alert)
//	for a := range rc.C() { ... }
type RingChannel[T any] struct {
	ch      chan T
	mu      sync.Mutex // serialises producers so drop+send is atomic
	closed  bool
	metrics Metrics
}

// Metrics provides lock-free counters for a RingChannel
type Metrics struct {
	Written int64
	Dropped int64
}

// New creates a RingChannel with the given capacity
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Push inserts v, discarding the oldest element if the buffer is full.
// It reports whether an element was dropped. Push after Close is a no-op.
func (rc *RingChannel[T]) Push(v T) (dropped bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return false
	}
	for {
		select {
		case rc.ch <- v:
			atomic.AddInt64(&rc.metrics.Written, 1)
			return dropped
		default:
		}
		select {
		case <-rc.ch:
			atomic.AddInt64(&rc.metrics.Dropped, 1)
			dropped = true
		default:
		}
	}
}

// TryReceive attempts a non-blocking receive
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the buffer capacity
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Close closes the receive side once; buffered elements remain readable
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if !rc.closed {
		rc.closed = true
		close(rc.ch)
	}
}

// GetMetrics returns a snapshot of the counters
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Written: atomic.LoadInt64(&rc.metrics.Written),
		Dropped: atomic.LoadInt64(&rc.metrics.Dropped),
	}
}
