package peripheral

import "sync"

// ValueStore holds the last-known value of a stateful peripheral.
// The zero value is ready to use and reports the zero T until the first Set.
type ValueStore[T any] struct {
	mu    sync.RWMutex
	value T
	set   bool
}

// Set overwrites the stored value unconditionally
func (s *ValueStore[T]) Set(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	s.set = true
}

// Get returns the last stored value without side effects
func (s *ValueStore[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Load returns the stored value and whether anything was stored since the last reset
func (s *ValueStore[T]) Load() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.set
}

// Reset clears the store back to its initial state
func (s *ValueStore[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.value = zero
	s.set = false
}
