// Package syncx provides the synchronization primitives shared between pipeline workers and
// the consumer: a published snapshot cell and a single-lock hand-off queue.
package syncx

import "sync"

// Latest holds the most recently published value of T. One goroutine publishes; any
// number load. T should be a value type or treated as immutable once published.
type Latest[T any] struct {
	mu      sync.RWMutex
	value   T
	version uint64
}

// NewLatest creates a cell holding initial at version 0.
func NewLatest[T any](initial T) *Latest[T] {
	return &Latest[T]{value: initial}
}

// Publish replaces the value and returns its version.
func (l *Latest[T]) Publish(v T) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.value = v
	l.version++
	return l.version
}

// Load returns the current value.
func (l *Latest[T]) Load() T {
	v, _ := l.LoadVersion()
	return v
}

// LoadVersion returns the current value with its version.
func (l *Latest[T]) LoadVersion() (T, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.value, l.version
}
