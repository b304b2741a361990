package engine

import "sync"

// eventQueue is the unbounded FIFO between event producers and the Run loop.
//
// Producers (the terminal, the file watcher, compile goroutines) never block,
// even while the loop is busy evaluating a command. Events leave in exactly
// the order they arrived, one at a time.
//
// The loop waits on a signal channel rather than a condition variable so the
// wait can be combined with ctx.Done() in a select.
type eventQueue struct {
	mu     sync.Mutex
	buf    []Event
	head   int // index of the next event to hand out
	closed bool
	signal chan struct{} // buffered (1); closed by Close
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		buf:    make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends e. It returns false once the queue is closed.
// Safe from any goroutine.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.buf = append(q.buf, e)

	// A pending signal already covers this event.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the oldest event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.buf) {
		return Event{}, false
	}
	e := q.buf[q.head]
	q.buf[q.head] = Event{} // drop references to compile results
	q.head++

	// Reuse the backing array once everything handed out is consumed, and
	// compact when the consumed prefix dominates.
	switch {
	case q.head == len(q.buf):
		q.buf, q.head = q.buf[:0], 0
	case q.head > 64 && q.head*2 > len(q.buf):
		n := copy(q.buf, q.buf[q.head:])
		clear(q.buf[n:])
		q.buf, q.head = q.buf[:n], 0
	}
	return e, true
}

// Wait returns the channel that fires when events may be available. It is
// closed by Close, so a closed queue always looks ready.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of events not yet dequeued.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf) - q.head
}

// Drained reports whether the queue is closed and nothing is left in it.
func (q *eventQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && q.head == len(q.buf)
}

// Close rejects further events and wakes the loop. Events already queued
// can still be dequeued. Closing twice is a no-op.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
