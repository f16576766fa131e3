package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"notebridge/internal/notebook"
)

func TestPublishDeliversToAllSubscribersInOrder(t *testing.T) {
	b := New()

	var order []string
	b.OnBlockCreated(func(e BlockCreated) { order = append(order, "first:"+e.BlockID) })
	b.OnBlockCreated(func(e BlockCreated) { order = append(order, "second:"+e.BlockID) })

	b.PublishBlockCreated(BlockCreated{BlockType: notebook.BlockKindQuery, BlockID: "blk-1"})

	assert.Equal(t, []string{"first:blk-1", "second:blk-1"}, order)
}

func TestPublishWithoutSubscribersIsHarmless(t *testing.T) {
	b := New()
	b.PublishSessionStarted(SessionStarted{SessionID: "sess-1"})
	b.PublishRunRequested(RunRequested{BlockID: "blk-1"})
}

func TestTopicsAreIndependent(t *testing.T) {
	b := New()

	var started, runs int
	b.OnSessionStarted(func(SessionStarted) { started++ })
	b.OnRunRequested(func(RunRequested) { runs++ })

	b.PublishSessionStarted(SessionStarted{SessionID: "sess-1"})
	b.PublishSessionStarted(SessionStarted{SessionID: "sess-2"})
	b.PublishRunRequested(RunRequested{BlockID: "blk-1"})

	assert.Equal(t, 2, started)
	assert.Equal(t, 1, runs)
}
