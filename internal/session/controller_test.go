package session

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notebridge/internal/agentapi"
	"notebridge/internal/bus"
	"notebridge/internal/notebook"
	"notebridge/internal/protocol"
	"notebridge/internal/stream"
	"notebridge/internal/transcript"
	"notebridge/pkg/testharness"
)

type harness struct {
	agent *testharness.ScriptedAgent
	ctrl  *Controller
	doc   *notebook.MemoryDocument
}

func newHarness(t *testing.T, records []testharness.Record) *harness {
	t.Helper()
	agent := testharness.NewScriptedAgent(records)
	t.Cleanup(agent.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := agentapi.NewClient(agentapi.Config{BaseURL: agent.URL()}, logger)
	doc := notebook.NewMemoryDocument(logger)

	ctrl := NewController(api, doc, logger)
	ctrl.SetRunReadyDelay(0)
	return &harness{agent: agent, ctrl: ctrl, doc: doc}
}

func (h *harness) startAndWait(t *testing.T, question string) {
	t.Helper()
	require.NoError(t, h.ctrl.Start(context.Background(), question, nil))
	select {
	case <-h.ctrl.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish in time")
	}
}

func started(id, msg string) testharness.Record {
	return testharness.Event(protocol.AgentEvent{
		Event: protocol.EventSessionStarted, SessionID: id, Message: msg,
	})
}

func clarBatch(terms ...string) testharness.Record {
	var reqs []protocol.ClarificationRequest
	for _, term := range terms {
		reqs = append(reqs, protocol.ClarificationRequest{
			Term: term, Question: "clarify " + term + "?",
		})
	}
	return testharness.Event(protocol.AgentEvent{
		Event: protocol.EventClarification, Clarifications: reqs,
	})
}

func insightEvt(summary string) testharness.Record {
	return testharness.Event(protocol.AgentEvent{
		Event: protocol.EventInsight, Summary: summary,
	})
}

func actionEvt(blockType protocol.BlockType, content, blockID string) testharness.Record {
	return testharness.Event(protocol.AgentEvent{
		Event: protocol.EventAction, Action: protocol.ActionCreateBlock,
		BlockType: blockType, Content: content, BlockID: blockID,
	})
}

func completed(msg string) testharness.Record {
	return testharness.Event(protocol.AgentEvent{
		Event: protocol.EventSessionCompleted, Message: msg,
	})
}

func TestClarificationDialogueEndToEnd(t *testing.T) {
	h := newHarness(t, []testharness.Record{
		started("sess-1", "On it."),
		clarBatch("t1", "t2"),
	})
	h.startAndWait(t, "how many students are at risk?")

	ctx := context.Background()

	active := h.ctrl.ActiveClarification()
	require.NotNil(t, active)
	assert.Equal(t, "t1", active.Term)

	require.NoError(t, h.ctrl.SubmitAnswer(ctx, "t1", "GPA below 2.0"))
	answers := h.agent.Answers()
	require.Len(t, answers, 1)
	assert.Equal(t, "sess-1", answers[0].SessionID)
	assert.Equal(t, "t1", answers[0].Term)
	assert.Equal(t, "GPA below 2.0", answers[0].Answer)

	active = h.ctrl.ActiveClarification()
	require.NotNil(t, active)
	assert.Equal(t, "t2", active.Term)

	require.NoError(t, h.ctrl.SubmitAnswer(ctx, "t2", "this semester"))
	assert.Len(t, h.agent.Answers(), 2)
	assert.Nil(t, h.ctrl.ActiveClarification())

	// Re-answering an already answered term is a no-op, not a re-post.
	require.NoError(t, h.ctrl.SubmitAnswer(ctx, "t1", "changed my mind"))
	assert.Len(t, h.agent.Answers(), 2)
}

func TestAnswerBeforeSessionAcknowledged(t *testing.T) {
	h := newHarness(t, nil)

	err := h.ctrl.SubmitAnswer(context.Background(), "t1", "answer")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Empty(t, h.agent.Answers())
}

func TestProgressSuppressesStaleClarifications(t *testing.T) {
	h := newHarness(t, []testharness.Record{
		started("sess-1", ""),
		clarBatch("t1", "t2", "t3"),
		insightEvt("enrollment is trending down"),
		clarBatch("t4"),
		completed(""),
	})
	h.startAndWait(t, "question")

	// t1 was shown before progress and stays answerable; t2 and t3 were
	// queued and are discarded; t4 arrived after progress and is suppressed.
	active := h.ctrl.ActiveClarification()
	require.NotNil(t, active)
	assert.Equal(t, "t1", active.Term)

	var prompts []string
	for _, r := range h.ctrl.Transcript().Slice(0) {
		if r.Kind == transcript.RecordPrompt {
			prompts = append(prompts, r.Term)
		}
	}
	assert.Equal(t, []string{"t1"}, prompts)

	require.NoError(t, h.ctrl.SubmitAnswer(context.Background(), "t1", "a1"))
	assert.Nil(t, h.ctrl.ActiveClarification(), "discarded prompts are never presented")
}

type tableRunner struct{}

func (tableRunner) Run(blockID string, kind notebook.BlockKind, payload notebook.BlockPayload) ([]notebook.ResultItem, error) {
	return []notebook.ResultItem{
		{Kind: notebook.ResultTable, Content: "2 rows", Rows: []map[string]any{
			{"month": "Jan"}, {"month": "Feb"},
		}},
	}, nil
}

func TestActionToFeedbackLoop(t *testing.T) {
	h := newHarness(t, []testharness.Record{
		started("sess-1", ""),
		actionEvt(protocol.BlockTypeQuery, "select month, count(*) from enrollments", "be-1"),
		completed("done"),
	})
	h.doc.SetRunner(tableRunner{})

	var runs []string
	h.ctrl.Bus().OnRunRequested(func(e bus.RunRequested) { runs = append(runs, e.BlockID) })

	h.startAndWait(t, "enrollment by month")

	blocks := h.doc.Blocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, "be-1", blocks[0].ID)
	require.Equal(t, []string{"be-1"}, runs)

	// The execution engine picks up the run request once the relay is
	// already observing the block.
	require.NoError(t, h.doc.RunBlock("be-1"))

	feedback := h.agent.Feedback()
	require.Len(t, feedback, 1)
	assert.Equal(t, "sess-1", feedback[0].SessionID)
	assert.Equal(t, "be-1", feedback[0].BlockID)
	assert.Equal(t, protocol.FeedbackStatusOK, feedback[0].Status)
	assert.Equal(t, "2 rows", feedback[0].Output)
}

func TestResetIsolatesSessionState(t *testing.T) {
	h := newHarness(t, []testharness.Record{
		started("sess-a", ""),
		actionEvt(protocol.BlockTypeQuery, "select 1", "be-1"),
		completed(""),
	})
	h.doc.SetRunner(tableRunner{})
	h.startAndWait(t, "question")

	h.ctrl.Reset()

	// An execution result for be-1 lands after the reset: the mapping is
	// gone, so no feedback may be attributed to it.
	require.NoError(t, h.doc.RunBlock("be-1"))
	assert.Empty(t, h.agent.Feedback())

	assert.Empty(t, h.ctrl.SessionID())
	assert.Nil(t, h.ctrl.ActiveClarification())
	assert.Equal(t, 0, h.ctrl.Transcript().Len())
}

func TestSecondStartWhileStreamingIsRejected(t *testing.T) {
	h := newHarness(t, []testharness.Record{
		started("sess-1", ""),
		{Event: &protocol.AgentEvent{Event: protocol.EventSessionCompleted}, DelayMs: 300},
	})

	require.NoError(t, h.ctrl.Start(context.Background(), "first", nil))
	err := h.ctrl.Start(context.Background(), "second", nil)
	assert.ErrorIs(t, err, stream.ErrAlreadyStreaming)

	select {
	case <-h.ctrl.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish in time")
	}
	assert.Equal(t, 1, h.agent.Streams(), "only one stream was opened")
}

func TestTransportFailureSurfacesToTranscript(t *testing.T) {
	h := newHarness(t, nil)
	h.agent.Close()

	h.startAndWait(t, "question")

	assert.Equal(t, stream.StatusError, h.ctrl.Status())

	records := h.ctrl.Transcript().Slice(0)
	require.NotEmpty(t, records)
	last := records[len(records)-1]
	assert.Equal(t, transcript.RecordStatus, last.Kind)
	assert.Contains(t, last.Text, "went wrong")
}

func TestOutcomeRecordWritten(t *testing.T) {
	h := newHarness(t, []testharness.Record{
		started("sess-1", ""),
		completed("all done"),
	})
	dir := t.TempDir()
	h.ctrl.SetOutcomeDir(dir)

	h.startAndWait(t, "question")

	data, err := os.ReadFile(filepath.Join(dir, "sess-1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sessionId": "sess-1"`)
	assert.Contains(t, string(data), `"status": "done"`)
}
