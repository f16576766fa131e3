package protocol

import "encoding/json"

// StartSessionRequest is the body of the streaming session-start request
type StartSessionRequest struct {
	Question string         `json:"question"`
	Context  map[string]any `json:"context"`
}

// AnswerRequest posts a clarification answer back to the agent, keyed by
// session id and term. It travels on its own HTTP call, independent of the
// event stream.
type AnswerRequest struct {
	SessionID string `json:"sessionId"`
	Term      string `json:"term"`
	Answer    string `json:"answer"`
}

// Feedback statuses
const (
	FeedbackStatusOK    = "ok"
	FeedbackStatusError = "error"
)

// FeedbackRequest reports a block execution outcome to the agent.
// BlockID is the agent's own identifier for the block, not the document's.
type FeedbackRequest struct {
	SessionID string          `json:"sessionId"`
	BlockID   string          `json:"blockId"`
	Status    string          `json:"status"`
	Output    string          `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	RawResult json.RawMessage `json:"rawResult,omitempty"`
}
