// Package testharness provides a scripted agent service for tests: an
// httptest server that streams a fixed sequence of NDJSON records and
// records the answers and feedback posted back to it.
package testharness

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"notebridge/internal/protocol"
)

// Record is one scripted stream record. Either Event or Raw is set; Raw lets
// scenarios inject malformed or unknown records to exercise drop paths.
type Record struct {
	Event   *protocol.AgentEvent
	Raw     string
	DelayMs int
}

// Event builds a Record from a typed event
func Event(evt protocol.AgentEvent) Record {
	return Record{Event: &evt}
}

// Raw builds a Record from a literal line
func Raw(line string) Record {
	return Record{Raw: line}
}

// ScriptedAgent is a fake agent service backed by httptest
type ScriptedAgent struct {
	server *httptest.Server

	mu       sync.Mutex
	records  []Record
	answers  []protocol.AnswerRequest
	feedback []protocol.FeedbackRequest
	streams  int
}

// NewScriptedAgent starts a fake agent that streams the given records for
// every /session/stream request
func NewScriptedAgent(records []Record) *ScriptedAgent {
	a := &ScriptedAgent{records: records}

	mux := http.NewServeMux()
	mux.HandleFunc("/session/stream", a.handleStream)
	mux.HandleFunc("/session/respond", a.handleRespond)
	mux.HandleFunc("/session/feedback", a.handleFeedback)

	a.server = httptest.NewServer(mux)
	return a
}

// URL returns the base URL of the fake service
func (a *ScriptedAgent) URL() string {
	return a.server.URL
}

// Close shuts the fake service down
func (a *ScriptedAgent) Close() {
	a.server.Close()
}

// Answers returns the answer submissions received so far
func (a *ScriptedAgent) Answers() []protocol.AnswerRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]protocol.AnswerRequest, len(a.answers))
	copy(out, a.answers)
	return out
}

// Feedback returns the feedback posts received so far
func (a *ScriptedAgent) Feedback() []protocol.FeedbackRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]protocol.FeedbackRequest, len(a.feedback))
	copy(out, a.feedback)
	return out
}

// Streams returns how many stream requests were opened
func (a *ScriptedAgent) Streams() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.streams
}

func (a *ScriptedAgent) handleStream(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.streams++
	records := a.records
	a.mu.Unlock()

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	for _, rec := range records {
		if rec.DelayMs > 0 {
			time.Sleep(time.Duration(rec.DelayMs) * time.Millisecond)
		}

		line := rec.Raw
		if rec.Event != nil {
			data, err := json.Marshal(rec.Event)
			if err != nil {
				continue
			}
			line = string(data)
		}

		if _, err := w.Write([]byte(line + "\n")); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (a *ScriptedAgent) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req protocol.AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	a.answers = append(a.answers, req)
	a.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func (a *ScriptedAgent) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req protocol.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	a.feedback = append(a.feedback, req)
	a.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}
