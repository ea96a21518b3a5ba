// Package queue provides an unbounded FIFO used between pipeline stages.
//
// Producers never block: the ring doubles once it passes a fill threshold.
// Consumers block in Pop or drain what is queued with PopBatch.
package queue

import "sync"

// growPercent is the fill level at which the ring doubles.
const growPercent = 70

// Queue is a goroutine-safe FIFO backed by a growable ring.
type Queue[T any] struct {
	mu     sync.Mutex
	ready  *sync.Cond
	ring   []T
	head   int
	size   int
	closed bool

	pushed  int64
	popped  int64
	resizes int
}

// Stats is a point-in-time view of a Queue.
type Stats struct {
	Len     int
	Cap     int
	Pushed  int64
	Popped  int64
	Resizes int
}

// New creates a Queue with the given starting capacity.
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue[T]{ring: make([]T, capacity)}
	q.ready = sync.NewCond(&q.mu)
	return q
}

// Push appends v. It reports false once the queue is closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	limit := len(q.ring) * growPercent / 100
	if limit < 1 {
		limit = 1
	}
	if q.size+1 >= limit {
		q.resize(len(q.ring) * 2)
	}

	q.ring[(q.head+q.size)%len(q.ring)] = v
	q.size++
	q.pushed++
	q.ready.Signal()
	return true
}

// Pop blocks until an item is available. It returns false when the queue is
// closed and drained.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == 0 && !q.closed {
		q.ready.Wait()
	}
	if q.size == 0 {
		var zero T
		return zero, false
	}
	return q.take(), true
}

// PopBatch removes up to max items (all when max <= 0) without blocking.
// It returns nil when the queue is empty.
func (q *Queue[T]) PopBatch(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.size
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	for i := range out {
		out[i] = q.take()
	}
	return out
}

// Close stops further pushes and wakes blocked consumers. Items already
// queued can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.ready.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Len:     q.size,
		Cap:     len(q.ring),
		Pushed:  q.pushed,
		Popped:  q.popped,
		Resizes: q.resizes,
	}
}

// take removes the head item. Caller holds mu and has checked size > 0.
func (q *Queue[T]) take() T {
	var zero T
	v := q.ring[q.head]
	q.ring[q.head] = zero
	q.head = (q.head + 1) % len(q.ring)
	q.size--
	q.popped++
	return v
}

// resize moves the ring into a new backing slice of capacity n.
func (q *Queue[T]) resize(n int) {
	next := make([]T, n)
	for i := 0; i < q.size; i++ {
		next[i] = q.ring[(q.head+i)%len(q.ring)]
	}
	q.ring = next
	q.head = 0
	q.resizes++
}
