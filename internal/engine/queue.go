package engine

import "sync"

// mutation is one submitted updater and the future that reports its outcome.
type mutation struct {
	updater Updater
	future  *Future
}

// mutationQueue is a thread-safe, unbounded FIFO of submitted mutations.
//
// Any goroutine may enqueue; only the Run loop dequeues. Unbounded so that a
// burst of submissions is never dropped: every Submit is either queued or
// rejected with ErrStopped.
//
// The signal channel enables context-aware waiting in the Run loop.
type mutationQueue struct {
	mu      sync.Mutex
	pending []*mutation
	closed  bool
	signal  chan struct{} // Signals availability (buffered, size 1)
}

func newMutationQueue() *mutationQueue {
	return &mutationQueue{
		pending: make([]*mutation, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds a mutation to the back of the queue.
// Returns false if the queue is closed.
func (q *mutationQueue) Enqueue(m *mutation) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.pending = append(q.pending, m)

	// Non-blocking: the buffer of 1 coalesces signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front mutation without blocking.
func (q *mutationQueue) TryDequeue() (*mutation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, false
	}

	m := q.pending[0]
	// Nil out the slot so the backing array does not retain the mutation.
	q.pending[0] = nil

	if len(q.pending) == 1 {
		q.pending = q.pending[:0]
	} else {
		q.pending = q.pending[1:]
	}

	return m, true
}

// Wait returns a channel that signals when mutations may be available.
// The channel is closed once the queue is closed.
func (q *mutationQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued mutations.
func (q *mutationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Closed reports whether Close has been called.
func (q *mutationQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting mutations and wakes the Run loop.
// Already queued mutations remain and can still be dequeued.
func (q *mutationQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// Drain closes the queue and returns everything still queued.
func (q *mutationQueue) Drain() []*mutation {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.signal)
	}
	out := q.pending
	q.pending = nil
	return out
}
