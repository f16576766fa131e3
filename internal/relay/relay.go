// Package relay reports block execution outcomes back to the agent. It
// observes result mutations on blocks the agent created, classifies the
// outcome, truncates it to bound payload size, and posts feedback
// best-effort. It also repairs placeholder visualizations with the most
// recently observed result rows.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"notebridge/internal/idempotency"
	"notebridge/internal/idmap"
	"notebridge/internal/notebook"
	"notebridge/internal/protocol"
)

// Default truncation bounds for feedback payloads
const (
	DefaultOutputMaxChars = 500
	DefaultErrorMaxChars  = 300
)

// ChartOutputPlaceholder is reported when a block's only output is a
// rendered artifact with no textual form.
const ChartOutputPlaceholder = "[rendered output produced]"

// Poster posts execution feedback to the agent service
type Poster interface {
	PostFeedback(ctx context.Context, req protocol.FeedbackRequest) error
}

// Relay observes result changes and reports them as feedback. Posts are
// fire-and-forget: a failed post is logged, never retried, and never
// surfaces to the caller.
type Relay struct {
	doc    notebook.Document
	ids    *idmap.Map
	api    Poster
	logger *slog.Logger

	outputMax int
	errorMax  int

	mu        sync.Mutex
	sessionID string
	posted    map[string]struct{}
	lastRows  []map[string]any
}

// NewRelay creates a relay observing doc and posting through api
func NewRelay(doc notebook.Document, ids *idmap.Map, api Poster, logger *slog.Logger) *Relay {
	return &Relay{
		doc:       doc,
		ids:       ids,
		api:       api,
		logger:    logger,
		outputMax: DefaultOutputMaxChars,
		errorMax:  DefaultErrorMaxChars,
		posted:    make(map[string]struct{}),
	}
}

// SetLimits overrides the truncation bounds. Non-positive values keep the
// defaults.
func (r *Relay) SetLimits(outputMax, errorMax int) {
	if outputMax > 0 {
		r.outputMax = outputMax
	}
	if errorMax > 0 {
		r.errorMax = errorMax
	}
}

// SetSessionID binds the relay to the active session. Feedback observed
// before a session id is known is dropped with a diagnostic.
func (r *Relay) SetSessionID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = id
}

// Reset clears all session-scoped state: the session binding, the
// outcome-hash dedupe set, and the remembered result rows.
func (r *Relay) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = ""
	r.posted = make(map[string]struct{})
	r.lastRows = nil
}

// HandleChange is the document observer. It runs synchronously within the
// mutation that triggered it; the backfill it issues is tagged so the
// observer skips its own repair instead of looping.
func (r *Relay) HandleChange(ch notebook.Change) {
	if ch.Provenance == notebook.ProvenanceBackfill {
		return
	}
	if ch.Attr != notebook.AttrResult {
		return
	}

	backendID, ok := r.ids.BackendID(ch.BlockID)
	if !ok {
		// Not an agent-created block, or the mapping was cleared by a
		// session reset. Either way this outcome is not ours to report.
		r.logger.Debug("result change on unmapped block ignored", "block_id", ch.BlockID)
		return
	}

	r.rememberRows(ch.Items)

	r.mu.Lock()
	sessionID := r.sessionID
	r.mu.Unlock()

	if sessionID == "" {
		r.logger.Warn("execution result observed before session id known, dropping feedback",
			"block_id", ch.BlockID)
		return
	}

	fb := r.classify(sessionID, backendID, ch.Items)

	hash := idempotency.OutcomeHash(fb)
	r.mu.Lock()
	_, dup := r.posted[hash]
	if !dup {
		r.posted[hash] = struct{}{}
	}
	r.mu.Unlock()

	if dup {
		r.logger.Debug("duplicate outcome, feedback skipped",
			"block_id", ch.BlockID, "outcome_hash", hash)
	} else if err := r.api.PostFeedback(context.Background(), fb); err != nil {
		r.logger.Warn("feedback post failed",
			"block_id", ch.BlockID, "status", fb.Status, "error", err)
	} else {
		r.logger.Info("feedback posted",
			"block_id", ch.BlockID, "backend_id", backendID, "status", fb.Status)
	}

	r.backfillVisualizations()
}

// classify maps a heterogeneous result-item list to one feedback payload.
// An error item wins; otherwise the first text item's content is the
// output; artifacts with no textual form report a fixed placeholder.
func (r *Relay) classify(sessionID, backendID string, items []notebook.ResultItem) protocol.FeedbackRequest {
	fb := protocol.FeedbackRequest{
		SessionID: sessionID,
		BlockID:   backendID,
	}

	if raw, err := json.Marshal(items); err == nil {
		fb.RawResult = raw
	}

	var textOutput string
	var artifactOnly bool
	for _, item := range items {
		switch item.Kind {
		case notebook.ResultError:
			fb.Status = protocol.FeedbackStatusError
			// Keep the tail: the end of a trace names the actual failure.
			fb.Error = truncateTail(item.Content, r.errorMax)
			return fb
		case notebook.ResultText, notebook.ResultTable:
			if textOutput == "" && item.Content != "" {
				textOutput = item.Content
			}
		case notebook.ResultChart, notebook.ResultImage, notebook.ResultMarkup:
			artifactOnly = true
		}
	}

	fb.Status = protocol.FeedbackStatusOK
	switch {
	case textOutput != "":
		fb.Output = truncateHead(textOutput, r.outputMax)
	case artifactOnly:
		fb.Output = ChartOutputPlaceholder
	}
	return fb
}

// rememberRows keeps the most recent tabular rows seen in any result, for
// backfilling placeholder charts.
func (r *Relay) rememberRows(items []notebook.ResultItem) {
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Kind == notebook.ResultTable && len(items[i].Rows) > 0 {
			r.mu.Lock()
			r.lastRows = items[i].Rows
			r.mu.Unlock()
			return
		}
	}
}

// backfillVisualizations fills any visualization block still holding a
// placeholder empty dataset with the last observed rows. The mutation is
// tagged backfill so HandleChange ignores it.
func (r *Relay) backfillVisualizations() {
	r.mu.Lock()
	rows := r.lastRows
	r.mu.Unlock()

	if len(rows) == 0 {
		return
	}

	for _, blk := range r.doc.Blocks() {
		if blk.Kind != notebook.BlockKindVisualization {
			continue
		}
		if !blk.Payload.Chart.Placeholder() {
			continue
		}
		if err := r.doc.SetChartData(blk.ID, rows, notebook.ProvenanceBackfill); err != nil {
			r.logger.Warn("visualization backfill failed", "block_id", blk.ID, "error", err)
			continue
		}
		r.logger.Info("placeholder visualization backfilled",
			"block_id", blk.ID, "rows", len(rows))
	}
}

func truncateTail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}

func truncateHead(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
