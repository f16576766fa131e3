package protocol

import (
	"encoding/json"
	"fmt"
)

// EventType discriminates records on the agent event stream
type EventType string

const (
	EventSessionStarted   EventType = "session_started"
	EventClarification    EventType = "clarification"
	EventInsight          EventType = "insight"
	EventExecutionResult  EventType = "execution_result"
	EventAction           EventType = "action"
	EventSessionCompleted EventType = "session_completed"
)

// Known reports whether the event type is part of the protocol.
// Unknown types are dropped by the stream client, never fatal.
func (t EventType) Known() bool {
	switch t {
	case EventSessionStarted, EventClarification, EventInsight,
		EventExecutionResult, EventAction, EventSessionCompleted:
		return true
	}
	return false
}

// ActionCreateBlock is the only action kind the agent currently issues
const ActionCreateBlock = "create_block"

// BlockType is the agent's label for the block an action should create
type BlockType string

const (
	BlockTypeCode          BlockType = "code"
	BlockTypeQuery         BlockType = "query"
	BlockTypeVisualization BlockType = "visualization"
	BlockTypeText          BlockType = "text"
)

// Option is one multiple-choice answer for a clarification question
type Option struct {
	Label   string `json:"label"`
	Value   string `json:"value,omitempty"`
	Tooltip string `json:"tooltip,omitempty"`
}

// AnswerValue returns the value to submit when this option is chosen.
// Agents frequently omit value and expect the label to be echoed back.
func (o Option) AnswerValue() string {
	if o.Value != "" {
		return o.Value
	}
	return o.Label
}

// ClarificationRequest is a question the agent asks the human.
// Term is the stable key used to correlate the answer with its prompt;
// it is unique within a session.
type ClarificationRequest struct {
	Term     string   `json:"term"`
	Question string   `json:"question"`
	Options  []Option `json:"options,omitempty"`
}

// FreeText reports whether the question expects a free-text answer
func (c ClarificationRequest) FreeText() bool {
	return len(c.Options) == 0
}

// AgentEvent is one record on the session event stream. The union is
// discriminated by Event; only the fields for the matching variant are set.
type AgentEvent struct {
	Event EventType `json:"event"`

	// session_started / session_completed
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message,omitempty"`

	// clarification
	Clarifications []ClarificationRequest `json:"clarifications,omitempty"`

	// insight
	Summary   string         `json:"summary,omitempty"`
	Reasoning string         `json:"reasoning,omitempty"`
	SQL       string         `json:"sql,omitempty"`
	Chart     map[string]any `json:"chart,omitempty"`

	// execution_result
	Status    string          `json:"status,omitempty"`
	Output    string          `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	RawResult json.RawMessage `json:"rawResult,omitempty"`

	// action
	Action    string         `json:"action,omitempty"`
	BlockType BlockType      `json:"blockType,omitempty"`
	Content   string         `json:"content,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	BlockID   string         `json:"blockId,omitempty"`
}

// ParseEvent decodes a single stream record. A record that is not valid
// JSON, carries no event discriminator, or names an event type outside the
// protocol yields an error; callers drop the record and continue.
func ParseEvent(data []byte) (*AgentEvent, error) {
	var evt AgentEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if evt.Event == "" {
		return nil, fmt.Errorf("missing 'event' field")
	}
	if !evt.Event.Known() {
		return nil, fmt.Errorf("unknown event type: %s", evt.Event)
	}
	return &evt, nil
}
