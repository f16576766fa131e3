package translate

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notebridge/internal/bus"
	"notebridge/internal/idmap"
	"notebridge/internal/notebook"
	"notebridge/internal/protocol"
)

func newTestTranslator() (*Translator, *notebook.MemoryDocument, *idmap.Map, *bus.Bus) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	doc := notebook.NewMemoryDocument(logger)
	ids := idmap.New()
	b := bus.New()

	tr := NewTranslator(doc, ids, b, logger)
	tr.SetRunReadyDelay(0)
	return tr, doc, ids, b
}

func TestExactlyOneBlockPerAction(t *testing.T) {
	tr, doc, ids, b := newTestTranslator()

	var runs []string
	b.OnRunRequested(func(e bus.RunRequested) { runs = append(runs, e.BlockID) })

	docID, err := tr.HandleAction(&protocol.AgentEvent{
		Event:     protocol.EventAction,
		Action:    protocol.ActionCreateBlock,
		BlockType: protocol.BlockTypeQuery,
		Content:   "select 1",
		BlockID:   "be-1",
	})
	require.NoError(t, err)

	blocks := doc.Blocks()
	require.Len(t, blocks, 1, "exactly one new block")
	assert.Equal(t, notebook.BlockKindQuery, blocks[0].Kind)
	assert.Equal(t, "select 1", blocks[0].Payload.Source)

	mapped, ok := ids.DocumentID("be-1")
	require.True(t, ok)
	assert.Equal(t, docID, mapped)

	back, ok := ids.BackendID(docID)
	require.True(t, ok)
	assert.Equal(t, "be-1", back)

	assert.Equal(t, []string{docID}, doc.ExecutionQueue(), "exactly one execution enqueue")
	assert.Equal(t, []string{docID}, runs, "run announced once")
}

func TestAgentAssignedIDIsPreserved(t *testing.T) {
	tr, doc, _, _ := newTestTranslator()

	docID, err := tr.HandleAction(&protocol.AgentEvent{
		Event:     protocol.EventAction,
		Action:    protocol.ActionCreateBlock,
		BlockType: protocol.BlockTypeCode,
		Content:   "x = 1",
		BlockID:   "be-7",
	})
	require.NoError(t, err)
	assert.Equal(t, "be-7", docID)
	assert.Equal(t, "be-7", doc.Blocks()[0].ID)
}

func TestTextBlockIsNotEnqueued(t *testing.T) {
	tr, doc, _, _ := newTestTranslator()

	_, err := tr.HandleAction(&protocol.AgentEvent{
		Event:     protocol.EventAction,
		Action:    protocol.ActionCreateBlock,
		BlockType: protocol.BlockTypeText,
		Content:   "## Findings",
	})
	require.NoError(t, err)

	assert.Empty(t, doc.ExecutionQueue())
	assert.Equal(t, notebook.BlockKindText, doc.Blocks()[0].Kind)
}

func TestUnknownBlockTypeFallsBackToText(t *testing.T) {
	tr, doc, _, _ := newTestTranslator()

	_, err := tr.HandleAction(&protocol.AgentEvent{
		Event:     protocol.EventAction,
		Action:    protocol.ActionCreateBlock,
		BlockType: "hologram",
		Content:   "unsupported content",
	})
	require.NoError(t, err, "forward-incompatible action must not abort the session")

	blocks := doc.Blocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, notebook.BlockKindText, blocks[0].Kind)
	assert.Equal(t, "unsupported content", blocks[0].Payload.Source)
}

func TestActionsApplyInArrivalOrder(t *testing.T) {
	tr, doc, _, _ := newTestTranslator()

	for _, content := range []string{"first", "second", "third"} {
		_, err := tr.HandleAction(&protocol.AgentEvent{
			Event:     protocol.EventAction,
			Action:    protocol.ActionCreateBlock,
			BlockType: protocol.BlockTypeText,
			Content:   content,
		})
		require.NoError(t, err)
	}

	blocks := doc.Blocks()
	require.Len(t, blocks, 3)
	assert.Equal(t, "first", blocks[0].Payload.Source)
	assert.Equal(t, "second", blocks[1].Payload.Source)
	assert.Equal(t, "third", blocks[2].Payload.Source)
}

func TestVisualizationFromStructuredInput(t *testing.T) {
	tr, doc, _, _ := newTestTranslator()

	_, err := tr.HandleAction(&protocol.AgentEvent{
		Event:     protocol.EventAction,
		Action:    protocol.ActionCreateBlock,
		BlockType: protocol.BlockTypeVisualization,
		Input: map[string]any{
			"type":  "bar",
			"x":     "month",
			"y":     "enrollment",
			"title": "Enrollment by month",
		},
	})
	require.NoError(t, err)

	blk := doc.Blocks()[0]
	require.Equal(t, notebook.BlockKindVisualization, blk.Kind)
	require.NotNil(t, blk.Payload.Chart)
	assert.Equal(t, "bar", blk.Payload.Chart.Type)
	assert.True(t, blk.Payload.Chart.Placeholder(), "no inline data means placeholder dataset")
}

func TestVisualizationLegacyJSONContent(t *testing.T) {
	tr, doc, _, _ := newTestTranslator()

	_, err := tr.HandleAction(&protocol.AgentEvent{
		Event:     protocol.EventAction,
		Action:    protocol.ActionCreateBlock,
		BlockType: protocol.BlockTypeVisualization,
		Content:   `{"type":"line","x":"week","y":"signups"}`,
	})
	require.NoError(t, err)

	blk := doc.Blocks()[0]
	require.Equal(t, notebook.BlockKindVisualization, blk.Kind)
	assert.Equal(t, "line", blk.Payload.Chart.Type)
}

func TestVisualizationPermissiveContent(t *testing.T) {
	tr, doc, _, _ := newTestTranslator()

	_, err := tr.HandleAction(&protocol.AgentEvent{
		Event:     protocol.EventAction,
		Action:    protocol.ActionCreateBlock,
		BlockType: protocol.BlockTypeVisualization,
		Content:   `{type: 'pie', x: 'category', y: 'count',}`,
	})
	require.NoError(t, err)

	blk := doc.Blocks()[0]
	require.Equal(t, notebook.BlockKindVisualization, blk.Kind)
	assert.Equal(t, "pie", blk.Payload.Chart.Type)
}

func TestMistaggedCodeBecomesCodeBlock(t *testing.T) {
	tr, doc, _, _ := newTestTranslator()

	content := "import matplotlib.pyplot as plt\nplt.plot(df['x'], df['y'])"
	_, err := tr.HandleAction(&protocol.AgentEvent{
		Event:     protocol.EventAction,
		Action:    protocol.ActionCreateBlock,
		BlockType: protocol.BlockTypeVisualization,
		Content:   content,
	})
	require.NoError(t, err)

	blk := doc.Blocks()[0]
	assert.Equal(t, notebook.BlockKindCode, blk.Kind, "code mislabeled as visualization is recovered")
	assert.Equal(t, content, blk.Payload.Source)
	assert.Equal(t, []string{blk.ID}, doc.ExecutionQueue(), "recovered code block executes")
}

func TestUnparseableVisualizationFallsBackToText(t *testing.T) {
	tr, doc, _, _ := newTestTranslator()

	_, err := tr.HandleAction(&protocol.AgentEvent{
		Event:     protocol.EventAction,
		Action:    protocol.ActionCreateBlock,
		BlockType: protocol.BlockTypeVisualization,
		Content:   "a chart of enrollment over time",
	})
	require.NoError(t, err)

	assert.Equal(t, notebook.BlockKindText, doc.Blocks()[0].Kind)
}

func TestVisualizationInheritsNearestTabularSource(t *testing.T) {
	tr, doc, _, _ := newTestTranslator()

	_, err := tr.HandleAction(&protocol.AgentEvent{
		Event: protocol.EventAction, Action: protocol.ActionCreateBlock,
		BlockType: protocol.BlockTypeQuery, Content: "select * from students", BlockID: "be-1",
	})
	require.NoError(t, err)

	_, err = tr.HandleAction(&protocol.AgentEvent{
		Event: protocol.EventAction, Action: protocol.ActionCreateBlock,
		BlockType: protocol.BlockTypeText, Content: "notes",
	})
	require.NoError(t, err)

	_, err = tr.HandleAction(&protocol.AgentEvent{
		Event: protocol.EventAction, Action: protocol.ActionCreateBlock,
		BlockType: protocol.BlockTypeVisualization,
		Input:     map[string]any{"type": "bar"},
	})
	require.NoError(t, err)

	blocks := doc.Blocks()
	viz := blocks[2]
	assert.Equal(t, "be-1", viz.Payload.Chart.SourceBlockID,
		"nearest preceding tabular block feeds the chart")
}

func TestExplicitDataSourceIsKept(t *testing.T) {
	tr, doc, _, _ := newTestTranslator()

	_, err := tr.HandleAction(&protocol.AgentEvent{
		Event: protocol.EventAction, Action: protocol.ActionCreateBlock,
		BlockType: protocol.BlockTypeQuery, Content: "select 1", BlockID: "be-1",
	})
	require.NoError(t, err)

	_, err = tr.HandleAction(&protocol.AgentEvent{
		Event: protocol.EventAction, Action: protocol.ActionCreateBlock,
		BlockType: protocol.BlockTypeVisualization,
		Input:     map[string]any{"type": "bar", "sourceBlockId": "be-other"},
	})
	require.NoError(t, err)

	assert.Equal(t, "be-other", doc.Blocks()[1].Payload.Chart.SourceBlockID)
}
