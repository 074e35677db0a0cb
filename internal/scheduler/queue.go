package scheduler

import (
	"sync"

	"github.com/roach88/reflow/internal/executor"
	"github.com/roach88/reflow/internal/ident"
	"github.com/roach88/reflow/internal/resolve"
)

// eventType distinguishes between event kinds.
type eventType int

const (
	// eventSetProps is a user edit.
	eventSetProps eventType = iota + 1
	// eventHydrate requests the initial callbacks of the layout.
	eventHydrate
	// eventCompletion carries an executor result back to the loop.
	eventCompletion
	// eventMoveHistory is an undo, redo or revert.
	eventMoveHistory
	// eventWaitIdle registers a waiter released when nothing is pending.
	eventWaitIdle
	// eventSnapshot asks for a copy of the layout.
	eventSnapshot
)

func (t eventType) String() string {
	switch t {
	case eventSetProps:
		return "set_props"
	case eventHydrate:
		return "hydrate"
	case eventCompletion:
		return "completion"
	case eventMoveHistory:
		return "move_history"
	case eventWaitIdle:
		return "wait_idle"
	case eventSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// event is the unit of work of the Run loop.
type event struct {
	typ        eventType
	id         ident.ID
	props      map[string]any
	move       HistoryMove
	completion *completion
	idle       chan struct{}
	snapshot   chan any
}

// completion is an executor result tagged with the token of the execution
// that produced it.
type completion struct {
	cb     *resolve.Callback
	token  int64
	result executor.Result
}

// eventQueue is an unbounded, thread-safe FIFO of events.
//
// Executor goroutines and API callers enqueue; only the Run loop dequeues.
// A buffered signal channel of size 1 lets the loop wait with select.
type eventQueue struct {
	mu     sync.Mutex
	events []event
	closed bool
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue. Returns false if the
// queue is closed.
func (q *eventQueue) Enqueue(e event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return event{}, false
	}

	e := q.events[0]
	// Release the slot's pointers for GC.
	q.events[0] = event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available. It is
// closed when the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close was called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops further enqueues and wakes the waiting loop.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
