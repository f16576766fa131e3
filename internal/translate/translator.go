// Package translate maps agent-issued abstract actions onto concrete
// document mutations: one action, one new block at the end of the notebook.
package translate

import (
	"fmt"
	"log/slog"
	"time"

	"notebridge/internal/bus"
	"notebridge/internal/idmap"
	"notebridge/internal/notebook"
	"notebridge/internal/protocol"
)

// DefaultRunReadyDelay is how long the translator waits after enqueueing an
// executable block before announcing it ready to run. Execution must not be
// requested before the block's observers are attached; the delay is an
// accepted heuristic, not a hard guarantee.
const DefaultRunReadyDelay = 150 * time.Millisecond

// Translator converts action events into block mutations. Failure semantics
// are deliberately soft: an unknown or malformed action materializes a text
// block instead of aborting the session.
type Translator struct {
	doc    notebook.Document
	ids    *idmap.Map
	bus    *bus.Bus
	logger *slog.Logger

	runReadyDelay time.Duration
}

// NewTranslator creates a translator writing to doc and recording backend
// block-id correlations in ids
func NewTranslator(doc notebook.Document, ids *idmap.Map, b *bus.Bus, logger *slog.Logger) *Translator {
	return &Translator{
		doc:           doc,
		ids:           ids,
		bus:           b,
		logger:        logger,
		runReadyDelay: DefaultRunReadyDelay,
	}
}

// SetRunReadyDelay overrides the run-ready delay. Zero or negative announces
// immediately; tests use that for determinism.
func (t *Translator) SetRunReadyDelay(d time.Duration) {
	t.runReadyDelay = d
}

// HandleAction materializes exactly one new block at the end of the document
// for one action event and returns its document id. Executable blocks are
// enqueued for execution and announced ready-to-run after the delay.
func (t *Translator) HandleAction(evt *protocol.AgentEvent) (string, error) {
	if evt.Action != protocol.ActionCreateBlock {
		t.logger.Warn("unknown action kind, defaulting to create_block",
			"action", evt.Action)
	}

	kind, payload := t.classify(evt)

	docID, err := t.doc.CreateBlock(kind, payload, evt.BlockID)
	if err != nil {
		return "", fmt.Errorf("failed to create block: %w", err)
	}

	if evt.BlockID != "" {
		t.ids.Put(evt.BlockID, docID)
	}

	t.logger.Info("block created from action",
		"kind", kind,
		"block_id", docID,
		"backend_id", evt.BlockID)

	t.bus.PublishBlockCreated(bus.BlockCreated{BlockType: kind, BlockID: docID})

	if kind.Executable() {
		if err := t.doc.EnqueueExecution(docID); err != nil {
			return docID, fmt.Errorf("failed to enqueue execution: %w", err)
		}
		t.announceRunReady(docID)
	}

	return docID, nil
}

// classify maps the action's block type and content to a concrete block.
// Unknown block types fall back to text so a forward-incompatible action
// never aborts the session.
func (t *Translator) classify(evt *protocol.AgentEvent) (notebook.BlockKind, notebook.BlockPayload) {
	switch evt.BlockType {
	case protocol.BlockTypeCode:
		return notebook.BlockKindCode, notebook.BlockPayload{Source: evt.Content}

	case protocol.BlockTypeQuery:
		return notebook.BlockKindQuery, notebook.BlockPayload{Source: evt.Content}

	case protocol.BlockTypeVisualization:
		return t.classifyVisualization(evt)

	case protocol.BlockTypeText:
		return notebook.BlockKindText, notebook.BlockPayload{Source: evt.Content}

	default:
		t.logger.Warn("unknown block type, falling back to text",
			"block_type", evt.BlockType)
		return notebook.BlockKindText, notebook.BlockPayload{Source: evt.Content}
	}
}

// classifyVisualization applies the fallback chain for visualization
// actions: structured input, then declarative spec parse (strict, then
// permissive), then the code heuristic, then default text.
func (t *Translator) classifyVisualization(evt *protocol.AgentEvent) (notebook.BlockKind, notebook.BlockPayload) {
	if len(evt.Input) > 0 {
		spec := specFromMap(evt.Input)
		t.resolveDataSource(spec)
		return notebook.BlockKindVisualization, notebook.BlockPayload{Chart: spec}
	}

	if spec, ok := parseChartSpec(evt.Content); ok {
		t.resolveDataSource(spec)
		return notebook.BlockKindVisualization, notebook.BlockPayload{Chart: spec}
	}

	if looksLikeCode(evt.Content) {
		t.logger.Info("visualization content resembles code, materializing code block")
		return notebook.BlockKindCode, notebook.BlockPayload{Source: evt.Content}
	}

	t.logger.Warn("unparseable visualization content, falling back to text")
	return notebook.BlockKindText, notebook.BlockPayload{Source: evt.Content}
}

// resolveDataSource picks the nearest preceding tabular block as the chart's
// input when the chart spec names no data source and carries no inline rows
func (t *Translator) resolveDataSource(spec *notebook.ChartSpec) {
	if spec.SourceBlockID != "" || len(spec.Data) > 0 {
		return
	}

	blocks := t.doc.Blocks()
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].Kind.Tabular() {
			spec.SourceBlockID = blocks[i].ID
			t.logger.Debug("visualization data source inferred",
				"source_block", blocks[i].ID)
			return
		}
	}
}

func (t *Translator) announceRunReady(blockID string) {
	if t.runReadyDelay <= 0 {
		t.bus.PublishRunRequested(bus.RunRequested{BlockID: blockID})
		return
	}

	time.AfterFunc(t.runReadyDelay, func() {
		t.bus.PublishRunRequested(bus.RunRequested{BlockID: blockID})
	})
}
