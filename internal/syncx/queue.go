package syncx

import (
	"fmt"
	"strings"
	"sync"
)

// Order selects which end of a Queue TryPop takes from.
type Order int

const (
	// FIFO pops the oldest item first.
	FIFO Order = iota
	// LIFO pops the most recently pushed item first.
	LIFO
)

func (o Order) String() string {
	if o == LIFO {
		return "lifo"
	}
	return "fifo"
}

// ParseOrder accepts "fifo" or "lifo" (case-insensitive).
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fifo":
		return FIFO, nil
	case "lifo":
		return LIFO, nil
	default:
		return FIFO, fmt.Errorf("unknown queue order %q", s)
	}
}

// Queue is an unbounded hand-off container guarded by one mutex. Push never blocks the
// producer; TryPop never blocks the consumer. The lock is never held across caller code.
type Queue[T any] struct {
	mu    sync.Mutex
	order Order
	items []T
}

// NewQueue creates an empty queue draining in the given order.
func NewQueue[T any](order Order) *Queue[T] {
	return &Queue[T]{order: order}
}

// Push appends an item. Ownership of v passes to the queue.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
}

// TryPop removes one item according to the queue order.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	n := len(q.items)
	if n == 0 {
		return zero, false
	}

	var v T
	if q.order == LIFO {
		v = q.items[n-1]
		q.items[n-1] = zero
		q.items = q.items[:n-1]
	} else {
		v = q.items[0]
		q.items[0] = zero
		q.items = q.items[1:]
	}
	if len(q.items) == 0 {
		q.items = nil
	}
	return v, true
}

// Len returns the number of pending items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear drops every pending item and returns how many were dropped.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}
