// Package fifo provides an unbounded FIFO queue with a timed blocking pop.
// Pushing never blocks the producer; the single consumer polls with a
// timeout so it can observe shutdown between items.
package fifo

import (
	"sync"
	"time"
)

type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
}

func New[T any]() *Queue[T] {
	return &Queue[T]{signal: make(chan struct{}, 1)}
}

// Push appends an item. Never blocks.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// PopWait removes and returns the oldest item, waiting up to timeout for one
// to arrive. The second return is false on timeout.
func (q *Queue[T]) PopWait(timeout time.Duration) (T, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if item, ok := q.TryPop(); ok {
			return item, true
		}
		remain := time.Until(deadline)
		if remain <= 0 {
			var zero T
			return zero, false
		}
		timer := time.NewTimer(remain)
		select {
		case <-q.signal:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// TryPop removes and returns the oldest item without waiting.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Drain removes and returns all pending items, oldest first.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Len reports the number of pending items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
