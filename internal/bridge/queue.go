package bridge

import "sync"

// EventType distinguishes inbound host events.
type EventType int

const (
	// EventObserve begins tracking an element.
	EventObserve EventType = iota + 1
	// EventAttribute carries a raw attribute update for one flag.
	EventAttribute
	// EventRemoval reports an element leaving the host UI tree.
	EventRemoval
	// EventCompletion reports natural completion of a transition by ID.
	EventCompletion
	// EventChannelCompletion completes whatever transition currently runs
	// on a channel. Used by replay and the scenario harness, where the
	// original run's transition IDs are not reproducible.
	EventChannelCompletion
)

// Event is one inbound host notification awaiting processing.
type Event struct {
	Type    EventType
	Element string

	// Flag and Raw carry attribute updates (EventAttribute). Raw is the
	// attribute text exactly as the host observed it, before domain
	// translation.
	Flag string
	Raw  string

	// TransitionID identifies the finished transition (EventCompletion).
	TransitionID string

	// Channel selects the transition to finish (EventChannelCompletion).
	Channel string
}

// eventQueue is a thread-safe FIFO queue for inbound events.
//
// Unbounded: a burst of attribute mutations from the host must never block
// the observer callback that reported them.
//
// The queue uses a channel for signaling so the Run loop can wait
// context-aware instead of blocking on a mutex.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered size 1, coalesces signals
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
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

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if the queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]
	q.events[0] = Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait returns a channel that signals when events may be available.
// The channel closes when the queue closes.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
