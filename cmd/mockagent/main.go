// mockagent is a fake agent service for developing and demoing notebridge
// without a real backend. It serves the streaming session endpoint from a
// YAML scenario file (or a built-in default) and logs whatever answers and
// feedback come back.
package main

import (
	"crypto/subtle"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"notebridge/internal/protocol"
)

func main() {
	addr := flag.String("addr", ":8787", "Address to listen on")
	scenarioFile := flag.String("scenario", "", "Path to a YAML scenario file (built-in demo scenario if omitted)")
	username := flag.String("username", "", "Require HTTP basic auth with this username")
	password := flag.String("password", "", "Password for basic auth")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	var (
		records []scenarioRecord
		err     error
	)
	if *scenarioFile != "" {
		records, err = loadScenario(*scenarioFile)
		if err != nil {
			logger.Error("failed to load scenario", "path", *scenarioFile, "error", err)
			os.Exit(1)
		}
		logger.Info("scenario loaded", "path", *scenarioFile, "records", len(records))
	} else {
		records = defaultScenario()
		logger.Info("using built-in demo scenario", "records", len(records))
	}

	agent := &mockAgent{
		records:  records,
		username: *username,
		password: *password,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/session/stream", agent.handleStream)
	mux.HandleFunc("/session/respond", agent.handleRespond)
	mux.HandleFunc("/session/feedback", agent.handleFeedback)

	logger.Info("mock agent listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// scenarioRecord is one line of the scripted stream. Event holds the wire
// payload with its JSON keys; Raw lets a scenario inject literal (including
// malformed) lines.
type scenarioRecord struct {
	DelayMs int            `yaml:"delay_ms"`
	Event   map[string]any `yaml:"event"`
	Raw     string         `yaml:"raw"`
}

type scenarioFileFormat struct {
	Records []scenarioRecord `yaml:"records"`
}

func loadScenario(path string) ([]scenarioRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s scenarioFileFormat
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file: %w", err)
	}
	if len(s.Records) == 0 {
		return nil, fmt.Errorf("scenario contains no records")
	}
	return s.Records, nil
}

func (r scenarioRecord) line() (string, error) {
	if r.Raw != "" {
		return r.Raw, nil
	}
	data, err := json.Marshal(r.Event)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type mockAgent struct {
	records  []scenarioRecord
	username string
	password string
	logger   *slog.Logger
}

func (a *mockAgent) authorized(r *http.Request) bool {
	if a.username == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(user), []byte(a.username)) == 1 &&
		subtle.ConstantTimeCompare([]byte(pass), []byte(a.password)) == 1
}

func (a *mockAgent) handleStream(w http.ResponseWriter, r *http.Request) {
	if !a.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req protocol.StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.logger.Info("session started", "question", req.Question, "context", req.Context)

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	for _, rec := range a.records {
		if rec.DelayMs > 0 {
			select {
			case <-time.After(time.Duration(rec.DelayMs) * time.Millisecond):
			case <-r.Context().Done():
				a.logger.Info("client went away, aborting stream")
				return
			}
		}

		line, err := rec.line()
		if err != nil {
			a.logger.Warn("skipping unencodable scenario record", "error", err)
			continue
		}

		if _, err := io.WriteString(w, line+"\n"); err != nil {
			a.logger.Info("stream write failed, client gone", "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	a.logger.Info("scenario exhausted, stream closed")
}

func (a *mockAgent) handleRespond(w http.ResponseWriter, r *http.Request) {
	if !a.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req protocol.AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.logger.Info("answer received",
		"session_id", req.SessionID, "term", req.Term, "answer", req.Answer)
	w.WriteHeader(http.StatusOK)
}

func (a *mockAgent) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if !a.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req protocol.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.logger.Info("feedback received",
		"session_id", req.SessionID,
		"block_id", req.BlockID,
		"status", req.Status,
		"output", req.Output,
		"error", req.Error)
	w.WriteHeader(http.StatusOK)
}

// defaultScenario walks one representative session: acknowledgement, a
// clarification, an insight, two actions, completion.
func defaultScenario() []scenarioRecord {
	sessionID := fmt.Sprintf("mock-%s", uuid.New().String()[:8])

	return []scenarioRecord{
		{Event: map[string]any{
			"event":     "session_started",
			"sessionId": sessionID,
			"message":   "Let me look into that.",
		}},
		{DelayMs: 300, Event: map[string]any{
			"event": "clarification",
			"clarifications": []any{
				map[string]any{
					"term":     "timeframe",
					"question": "Which timeframe should I use?",
					"options": []any{
						map[string]any{"label": "This semester", "value": "semester"},
						map[string]any{"label": "This academic year", "value": "year"},
					},
				},
			},
		}},
		{DelayMs: 500, Event: map[string]any{
			"event":   "insight",
			"summary": "Enrollment peaked in January and has declined since.",
		}},
		{DelayMs: 300, Event: map[string]any{
			"event":     "action",
			"action":    "create_block",
			"blockType": "query",
			"content":   "select month, count(*) as enrolled from enrollments group by month order by month",
			"blockId":   "be-1",
		}},
		{DelayMs: 300, Event: map[string]any{
			"event":     "action",
			"action":    "create_block",
			"blockType": "visualization",
			"input": map[string]any{
				"type":  "line",
				"x":     "month",
				"y":     "enrolled",
				"title": "Enrollment by month",
			},
		}},
		{DelayMs: 500, Event: map[string]any{
			"event":     "session_completed",
			"sessionId": sessionID,
			"message":   "Done. The notebook has the query and a chart.",
		}},
	}
}
