// Package session owns the lifecycle of one agent session: it starts the
// event stream, dispatches decoded events to the clarification coordinator
// and the action translator, and wires each created block to the feedback
// relay. One controller serves one conversation surface; consecutive
// sessions reuse it after a reset.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"notebridge/internal/agentapi"
	"notebridge/internal/bus"
	"notebridge/internal/clarify"
	"notebridge/internal/eventlog"
	"notebridge/internal/fsutil"
	"notebridge/internal/idmap"
	"notebridge/internal/notebook"
	"notebridge/internal/protocol"
	"notebridge/internal/relay"
	"notebridge/internal/stream"
	"notebridge/internal/transcript"
	"notebridge/internal/translate"
)

// ErrNoSession is returned when an answer is submitted before the agent has
// acknowledged the session with its id.
var ErrNoSession = errors.New("no active session")

// Outcome is the durable record written when a session reaches a terminal
// state, for post-hoc inspection.
type Outcome struct {
	SessionID   string    `json:"sessionId"`
	Question    string    `json:"question"`
	Status      string    `json:"status"`
	Events      int       `json:"events"`
	Blocks      int       `json:"blocks"`
	CompletedAt time.Time `json:"completedAt"`
}

// Controller drives one session end to end. Event dispatch is single-file:
// one goroutine drains the stream log in arrival order, so ordering across
// clarifications and actions is preserved without further locking.
type Controller struct {
	api    *agentapi.Client
	doc    notebook.Document
	logger *slog.Logger

	stream     *stream.Client
	coord      *clarify.Coordinator
	translator *translate.Translator
	relay      *relay.Relay
	ids        *idmap.Map
	tlog       *transcript.Log
	bus        *bus.Bus

	elog       *eventlog.EventLog
	outcomeDir string

	mu        sync.Mutex
	question  string
	sessionID string
	progress  bool
	unsubs    []notebook.Unsubscribe
	done      chan struct{}
}

// NewController assembles a controller around the given agent client and
// document. The clarification coordinator, translator, relay, and transcript
// are created session-scoped and owned by the controller.
func NewController(api *agentapi.Client, doc notebook.Document, logger *slog.Logger) *Controller {
	tlog := transcript.NewLog()
	ids := idmap.New()
	b := bus.New()

	c := &Controller{
		api:        api,
		doc:        doc,
		logger:     logger,
		stream:     stream.NewClient(api, logger),
		coord:      clarify.NewCoordinator(tlog, logger),
		translator: translate.NewTranslator(doc, ids, b, logger),
		relay:      relay.NewRelay(doc, ids, api, logger),
		ids:        ids,
		tlog:       tlog,
		bus:        b,
	}
	return c
}

// Transcript returns the conversation log a renderer tails
func (c *Controller) Transcript() *transcript.Log { return c.tlog }

// Bus returns the session event bus
func (c *Controller) Bus() *bus.Bus { return c.bus }

// ActiveClarification returns the prompt currently awaiting an answer, or nil
func (c *Controller) ActiveClarification() *protocol.ClarificationRequest {
	return c.coord.Active()
}

// SessionID returns the agent-assigned session id, empty until acknowledged
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Status returns the stream's lifecycle state
func (c *Controller) Status() stream.Status { return c.stream.Status() }

// SetEventLog persists every dispatched event to an NDJSON audit log
func (c *Controller) SetEventLog(elog *eventlog.EventLog) { c.elog = elog }

// SetOutcomeDir enables durable per-session outcome records under dir
func (c *Controller) SetOutcomeDir(dir string) { c.outcomeDir = dir }

// SetRunReadyDelay adjusts the translator's run announcement delay
func (c *Controller) SetRunReadyDelay(d time.Duration) {
	c.translator.SetRunReadyDelay(d)
}

// SetFeedbackLimits adjusts the relay's truncation bounds
func (c *Controller) SetFeedbackLimits(outputMax, errorMax int) {
	c.relay.SetLimits(outputMax, errorMax)
}

// Start begins a session for question. It clears all state left by a prior
// session, opens the stream, and dispatches events until the stream reaches
// a terminal state. A second Start while one session streams returns
// stream.ErrAlreadyStreaming.
func (c *Controller) Start(ctx context.Context, question string, sctx map[string]any) error {
	c.mu.Lock()
	if c.done != nil {
		select {
		case <-c.done:
		default:
			c.mu.Unlock()
			return stream.ErrAlreadyStreaming
		}
	}
	c.resetLocked()
	c.question = question
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	req := protocol.StartSessionRequest{Question: question, Context: sctx}
	if err := c.stream.Start(ctx, req); err != nil {
		c.mu.Lock()
		close(done)
		c.mu.Unlock()
		return fmt.Errorf("failed to start session: %w", err)
	}

	c.tlog.Append(transcript.Record{
		Kind: transcript.RecordStatus,
		Text: "Working on it...",
	})

	go c.dispatchLoop(ctx, c.stream.Log(), done)
	return nil
}

// Done returns a channel closed when the current session's dispatch loop
// exits. Nil before the first Start.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// SubmitAnswer records the human's answer for term and forwards it to the
// agent. A term already answered is a no-op. Forwarding is best-effort: a
// transport failure is logged, the local record stands.
func (c *Controller) SubmitAnswer(ctx context.Context, term, value string) error {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()

	if sessionID == "" {
		return ErrNoSession
	}

	if !c.coord.Answer(term, value) {
		return nil
	}

	err := c.api.SubmitAnswer(ctx, protocol.AnswerRequest{
		SessionID: sessionID,
		Term:      term,
		Answer:    value,
	})
	if err != nil {
		c.logger.Warn("answer submission failed", "term", term, "error", err)
	}
	return nil
}

// Reset aborts any in-flight stream and clears all session-scoped state.
// Must be called when the conversation surface goes away: a later session
// inheriting a stale backend-id map would misattribute feedback.
func (c *Controller) Reset() {
	c.stream.Stop()

	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()

	c.tlog.Reset()
	c.logger.Info("session state reset")
}

// resetLocked clears derived session state. Must be called with mu held.
func (c *Controller) resetLocked() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
	c.sessionID = ""
	c.question = ""
	c.progress = false

	c.coord.Reset()
	c.ids.Reset()
	c.relay.Reset()
}

// dispatchLoop drains the stream log in arrival order until the stream
// reaches a terminal state and every appended event has been handled.
func (c *Controller) dispatchLoop(ctx context.Context, log *stream.Log, done chan struct{}) {
	defer close(done)

	var cursor stream.Cursor
	for {
		for _, evt := range cursor.Drain(log) {
			c.writeAudit(evt)
			c.dispatch(evt)
		}

		status := c.stream.Status()
		if status != stream.StatusLoading && cursor.Position() == log.Len() {
			c.finishSession(status, log)
			return
		}

		select {
		case <-log.Notify():
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) dispatch(evt *protocol.AgentEvent) {
	switch evt.Event {
	case protocol.EventSessionStarted:
		c.mu.Lock()
		c.sessionID = evt.SessionID
		c.mu.Unlock()
		c.relay.SetSessionID(evt.SessionID)
		c.bus.PublishSessionStarted(bus.SessionStarted{SessionID: evt.SessionID})
		if evt.Message != "" {
			c.tlog.Append(transcript.Record{Kind: transcript.RecordStatus, Text: evt.Message})
		}
		c.logger.Info("session acknowledged", "session_id", evt.SessionID)

	case protocol.EventClarification:
		if c.hasProgress() {
			// The agent moved on; a late prompt would desynchronize the
			// conversation.
			c.logger.Info("late clarification suppressed",
				"count", len(evt.Clarifications))
			return
		}
		c.coord.Enqueue(evt.Clarifications)

	case protocol.EventInsight:
		c.markProgress()
		text := evt.Summary
		if text == "" {
			text = evt.Message
		}
		c.tlog.Append(transcript.Record{Kind: transcript.RecordInsight, Text: text})

	case protocol.EventAction:
		c.markProgress()
		docID, err := c.translator.HandleAction(evt)
		if err != nil {
			c.logger.Error("action failed", "error", err)
			return
		}
		unsub, err := c.doc.ObserveBlock(docID, c.relay.HandleChange)
		if err != nil {
			c.logger.Error("failed to observe block", "block_id", docID, "error", err)
			return
		}
		c.mu.Lock()
		c.unsubs = append(c.unsubs, unsub)
		c.mu.Unlock()

	case protocol.EventExecutionResult:
		// Agent-side echo of an outcome; surface errors, stay quiet on ok.
		if evt.Status == protocol.FeedbackStatusError {
			c.tlog.Append(transcript.Record{
				Kind: transcript.RecordStatus,
				Text: "Execution failed: " + evt.Error,
			})
		}

	case protocol.EventSessionCompleted:
		text := evt.Message
		if text == "" {
			text = "Session complete."
		}
		c.tlog.Append(transcript.Record{Kind: transcript.RecordStatus, Text: text})
	}
}

// markProgress records that the agent produced its first insight or action
// and discards clarifications that were queued but never shown.
func (c *Controller) markProgress() {
	c.mu.Lock()
	first := !c.progress
	c.progress = true
	c.mu.Unlock()

	if first {
		c.coord.DiscardPending()
	}
}

func (c *Controller) hasProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

func (c *Controller) writeAudit(evt *protocol.AgentEvent) {
	if c.elog == nil {
		return
	}
	if err := c.elog.WriteEvent(evt); err != nil {
		c.logger.Warn("failed to write event audit record", "error", err)
	}
}

// finishSession surfaces terminal states and writes the outcome record
func (c *Controller) finishSession(status stream.Status, log *stream.Log) {
	if status == stream.StatusError {
		c.tlog.Append(transcript.Record{
			Kind: transcript.RecordStatus,
			Text: "Something went wrong talking to the agent. Try again.",
		})
	}

	c.writeOutcome(status, log)
}

func (c *Controller) writeOutcome(status stream.Status, log *stream.Log) {
	if c.outcomeDir == "" {
		return
	}

	c.mu.Lock()
	sessionID := c.sessionID
	question := c.question
	c.mu.Unlock()

	if sessionID == "" {
		return
	}

	outcome := Outcome{
		SessionID:   sessionID,
		Question:    question,
		Status:      string(status),
		Events:      log.Len(),
		Blocks:      len(c.doc.Blocks()),
		CompletedAt: time.Now().UTC(),
	}

	path := filepath.Join(c.outcomeDir, sessionID+".json")
	if err := fsutil.AtomicWriteJSON(path, outcome); err != nil {
		c.logger.Warn("failed to write session outcome", "path", path, "error", err)
		return
	}
	c.logger.Info("session outcome recorded", "path", path, "status", status)
}
