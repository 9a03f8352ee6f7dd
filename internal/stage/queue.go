package stage

import (
	"sync"
	"time"
)

// Queue is an unbounded FIFO. Push never blocks. After Close, Push fails
// with ErrStageClosed but already queued items can still be taken.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{}
}

// NewQueue returns an empty open queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{signal: make(chan struct{}, 1)}
}

// Push appends item to the queue.
func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrStageClosed
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.notify()
	return nil
}

func (q *Queue[T]) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// tryNext removes the head item without waiting.
func (q *Queue[T]) tryNext() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	} else {
		q.notify()
	}
	return item, true
}

// Next removes the head item, waiting up to timeout for one to arrive. It
// returns false when the wait expires, or immediately once the queue is
// closed and empty.
func (q *Queue[T]) Next(timeout time.Duration) (T, bool) {
	if item, ok := q.tryNext(); ok || timeout <= 0 {
		return item, ok
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		q.mu.Lock()
		item, ok := q.popLocked()
		closed := q.closed
		q.mu.Unlock()
		if ok {
			return item, true
		}
		if closed {
			return item, false
		}
		select {
		case <-q.signal:
		case <-timer.C:
			return q.tryNext()
		}
	}
}

// wait removes the head item, blocking until one arrives. It returns false
// once the queue is closed and empty.
func (q *Queue[T]) wait() (T, bool) {
	for {
		q.mu.Lock()
		item, ok := q.popLocked()
		closed := q.closed
		q.mu.Unlock()
		if ok || closed {
			return item, ok
		}
		<-q.signal
	}
}

// Len reports the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further pushes. It is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notify()
}

// Drain removes and returns every queued item.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Collector returns a send handle on the queue.
func (q *Queue[T]) Collector() Collector[T] {
	return Collector[T]{queue: q}
}

// Collector is a cloneable send-only handle on a queue. The zero value is
// unbound and rejects every item with ErrNoDrain.
type Collector[T any] struct {
	queue *Queue[T]
}

// Send enqueues item without blocking.
func (c Collector[T]) Send(item T) error {
	if c.queue == nil {
		return ErrNoDrain
	}
	return c.queue.Push(item)
}

// Bound reports whether the collector points at a queue.
func (c Collector[T]) Bound() bool {
	return c.queue != nil
}
