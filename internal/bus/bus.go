// Package bus is a typed, session-scoped publish/subscribe channel. One Bus
// is created per session and injected into the components that need it, so
// topics are enumerable and nothing leaks across sessions.
package bus

import (
	"sync"

	"notebridge/internal/notebook"
)

// SessionStarted announces that the agent acknowledged the session
type SessionStarted struct {
	SessionID string
}

// BlockCreated announces that an agent action materialized a block
type BlockCreated struct {
	BlockType notebook.BlockKind
	BlockID   string
}

// RunRequested announces that a created block is ready to execute
type RunRequested struct {
	BlockID string
}

// Bus fans events out to subscribers synchronously, in subscription order
type Bus struct {
	mu             sync.Mutex
	sessionStarted []func(SessionStarted)
	blockCreated   []func(BlockCreated)
	runRequested   []func(RunRequested)
}

// New creates an empty bus
func New() *Bus {
	return &Bus{}
}

// OnSessionStarted subscribes to session-start announcements
func (b *Bus) OnSessionStarted(fn func(SessionStarted)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessionStarted = append(b.sessionStarted, fn)
}

// OnBlockCreated subscribes to block-creation announcements
func (b *Bus) OnBlockCreated(fn func(BlockCreated)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blockCreated = append(b.blockCreated, fn)
}

// OnRunRequested subscribes to run-request announcements
func (b *Bus) OnRunRequested(fn func(RunRequested)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runRequested = append(b.runRequested, fn)
}

// PublishSessionStarted delivers e to all subscribers
func (b *Bus) PublishSessionStarted(e SessionStarted) {
	for _, fn := range b.sessionStartedSubs() {
		fn(e)
	}
}

// PublishBlockCreated delivers e to all subscribers
func (b *Bus) PublishBlockCreated(e BlockCreated) {
	for _, fn := range b.blockCreatedSubs() {
		fn(e)
	}
}

// PublishRunRequested delivers e to all subscribers
func (b *Bus) PublishRunRequested(e RunRequested) {
	for _, fn := range b.runRequestedSubs() {
		fn(e)
	}
}

func (b *Bus) sessionStartedSubs() []func(SessionStarted) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]func(SessionStarted){}, b.sessionStarted...)
}

func (b *Bus) blockCreatedSubs() []func(BlockCreated) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]func(BlockCreated){}, b.blockCreated...)
}

func (b *Bus) runRequestedSubs() []func(RunRequested) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]func(RunRequested){}, b.runRequested...)
}
