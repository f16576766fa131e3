package idmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPutAndLookupBothDirections(t *testing.T) {
	m := New()
	m.Put("be-1", "blk-a")

	doc, ok := m.DocumentID("be-1")
	assert.True(t, ok)
	assert.Equal(t, "blk-a", doc)

	backend, ok := m.BackendID("blk-a")
	assert.True(t, ok)
	assert.Equal(t, "be-1", backend)

	_, ok = m.BackendID("blk-unknown")
	assert.False(t, ok)
}

func TestResetDiscardsCorrelations(t *testing.T) {
	m := New()
	m.Put("be-1", "blk-a")
	m.Put("be-2", "blk-b")
	assert.Equal(t, 2, m.Len())

	m.Reset()
	assert.Equal(t, 0, m.Len())

	_, ok := m.DocumentID("be-1")
	assert.False(t, ok)
}
