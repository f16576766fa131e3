package stream

import (
	"sync"

	"notebridge/internal/protocol"
)

// Log is the append-only, monotonically growing event log for one session.
// Writers append; each consumer tracks its own Cursor, which guarantees
// exactly-once local delivery regardless of how the transport chunked the
// stream.
type Log struct {
	mu     sync.Mutex
	events []*protocol.AgentEvent
	notify chan struct{}
}

// NewLog creates an empty log
func NewLog() *Log {
	return &Log{notify: make(chan struct{}, 1)}
}

// Append adds an event and signals waiting consumers. The signal is
// coalesced: consumers drain everything past their cursor per wakeup.
func (l *Log) Append(evt *protocol.AgentEvent) {
	l.mu.Lock()
	l.events = append(l.events, evt)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of events appended so far
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Slice returns events [from, len) in arrival order
func (l *Log) Slice(from int) []*protocol.AgentEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	if from < 0 || from >= len(l.events) {
		return nil
	}
	out := make([]*protocol.AgentEvent, len(l.events)-from)
	copy(out, l.events[from:])
	return out
}

// Notify returns the channel signaled on append. Also signaled once when the
// stream reaches a terminal state, so consumers wake up to observe it.
func (l *Log) Notify() <-chan struct{} {
	return l.notify
}

func (l *Log) signal() {
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Cursor is one consumer's processed-index into a Log. Drain hands each
// event to the consumer exactly once, in arrival order.
type Cursor struct {
	next int
}

// Drain returns all events the cursor has not yet seen and advances past them
func (c *Cursor) Drain(l *Log) []*protocol.AgentEvent {
	evts := l.Slice(c.next)
	c.next += len(evts)
	return evts
}

// Position returns the index of the next unread event
func (c *Cursor) Position() int {
	return c.next
}
