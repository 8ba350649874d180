package port

import (
	"context"
	"sync"
)

// queue is an unbounded FIFO with one consumer. push never blocks.
type queue[T any] struct {
	notify  chan struct{}
	items   []T
	mu      sync.Mutex
	closed  bool
	dropped bool
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{notify: make(chan struct{}, 1)}
}

// push appends v. It reports false once the queue is closed or dropped.
func (q *queue[T]) push(v T) bool {
	q.mu.Lock()
	if q.closed || q.dropped {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.wake()
	return true
}

// close stops further pushes. Items already queued remain readable.
func (q *queue[T]) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// drop discards queued items and stops further pushes.
func (q *queue[T]) drop() {
	q.mu.Lock()
	q.dropped = true
	q.closed = true
	q.items = nil
	q.mu.Unlock()
	q.wake()
}

func (q *queue[T]) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *queue[T]) isDropped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *queue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop waits for the next item. ok is false once the queue is closed and
// drained.
func (q *queue[T]) pop(ctx context.Context) (v T, ok bool, err error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v = q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return v, true, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return v, false, nil
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			return v, false, ctx.Err()
		}
	}
}
