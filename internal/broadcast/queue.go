package broadcast

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by [Queue.Pop] once a closed queue is drained.
var ErrQueueClosed = errors.New("queue closed")

// Queue is an unbounded FIFO of entries owned by a single consumer.
//
// Push never blocks, so [Broadcaster.Publish] may deliver while holding its
// lock; a slow consumer only grows its own queue. Pop blocks until a record
// is available, the queue is closed, or the context is done.
type Queue struct {
	mu     sync.Mutex
	items  []Entry
	closed bool

	// signal has capacity 1 and coalesces wakeups for the single consumer.
	signal chan struct{}
}

// NewQueue creates an empty [Queue].
func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Push appends an entry. Pushing to a closed queue is a no-op.
func (q *Queue) Push(e Entry) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, e)
	q.mu.Unlock()

	q.wake()
}

// Pop removes and returns the oldest entry.
//
// It returns ctx.Err() if the context is done before an entry arrives, and
// [ErrQueueClosed] if the queue was closed and has been fully drained.
func (q *Queue) Pop(ctx context.Context) (Entry, error) {
	for {
		if e, ok := q.TryPop(); ok {
			return e, nil
		}

		q.mu.Lock()
		closed := q.closed && len(q.items) == 0
		q.mu.Unlock()
		if closed {
			return Entry{}, ErrQueueClosed
		}

		select {
		case <-q.signal:
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		}
	}
}

// TryPop removes and returns the oldest entry without blocking.
func (q *Queue) TryPop() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Entry{}, false
	}
	e := q.items[0]
	q.items[0] = Entry{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		// drop the backing array so a burst does not pin memory
		q.items = nil
	}
	return e, true
}

// Len returns the number of entries waiting in the queue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue closed. Entries already queued can still be popped.
// Safe to call multiple times.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.wake()
}

func (q *Queue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
