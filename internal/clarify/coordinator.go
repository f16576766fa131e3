// Package clarify coordinates the turn-based clarification dialogue: a FIFO
// queue of pending questions, at most one active at a time, answers recorded
// idempotently by term.
package clarify

import (
	"log/slog"
	"sync"

	"notebridge/internal/protocol"
	"notebridge/internal/transcript"
)

// Coordinator drains clarification batches strictly in arrival order.
// Presenting a clarification means emitting a prompt record to the
// conversation log and marking it active until the human answers.
type Coordinator struct {
	tlog   *transcript.Log
	logger *slog.Logger

	mu       sync.Mutex
	queue    []protocol.ClarificationRequest
	active   *protocol.ClarificationRequest
	answered map[string]string
}

// NewCoordinator creates an empty coordinator writing prompts to tlog
func NewCoordinator(tlog *transcript.Log, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		tlog:     tlog,
		logger:   logger,
		answered: make(map[string]string),
	}
}

// Enqueue appends a clarification batch in arrival order and, if nothing is
// active, presents the head of the queue.
func (c *Coordinator) Enqueue(batch []protocol.ClarificationRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queue = append(c.queue, batch...)
	c.presentNextLocked()
}

// Answer records the human's answer for term. A term that was already
// answered is ignored: the call is a no-op and does not advance the queue.
// Returns true when the answer was recorded.
func (c *Coordinator) Answer(term, value string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, done := c.answered[term]; done {
		c.logger.Debug("duplicate answer ignored", "term", term)
		return false
	}

	c.answered[term] = value
	c.tlog.Append(transcript.Record{
		Kind: transcript.RecordAnswer,
		Text: value,
		Term: term,
	})

	if c.active != nil && c.active.Term == term {
		c.active = nil
	}

	// Continue the dialogue immediately: no gap between an answer and
	// the next queued question.
	c.presentNextLocked()
	return true
}

// DiscardPending drops every queued-but-unshown clarification. Called when
// the session makes progress (first insight or action): the agent has moved
// past the clarification phase and a stale prompt would desynchronize the
// conversation. The active prompt, already shown, stays. Returns the number
// discarded.
func (c *Coordinator) DiscardPending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.queue)
	c.queue = nil
	if n > 0 {
		c.logger.Info("discarding stale clarifications", "count", n)
	}
	return n
}

// Active returns the clarification currently awaiting an answer, or nil
func (c *Coordinator) Active() *protocol.ClarificationRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return nil
	}
	copied := *c.active
	return &copied
}

// Answered returns the recorded answer for term
func (c *Coordinator) Answered(term string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.answered[term]
	return v, ok
}

// Pending returns the number of queued, not-yet-shown clarifications
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Reset clears the queue, the active prompt, and all recorded answers
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queue = nil
	c.active = nil
	c.answered = make(map[string]string)
}

// presentNextLocked pops the queue head and presents it when no
// clarification is active. Must be called with the lock held.
func (c *Coordinator) presentNextLocked() {
	if c.active != nil || len(c.queue) == 0 {
		return
	}

	head := c.queue[0]
	c.queue = c.queue[1:]
	c.active = &head

	c.tlog.Append(transcript.Record{
		Kind:    transcript.RecordPrompt,
		Text:    head.Question,
		Term:    head.Term,
		Options: head.Options,
	})

	c.logger.Debug("clarification presented", "term", head.Term)
}
