// Package transcript is the session's conversation log: the ordered record
// of what was said to the human and what they answered.
package transcript

import (
	"sync"
	"time"

	"notebridge/internal/protocol"
)

// RecordKind classifies conversation records
type RecordKind string

const (
	// RecordGreeting is the initial idle-state message
	RecordGreeting RecordKind = "greeting"
	// RecordStatus is a session lifecycle note (started, completed, failed)
	RecordStatus RecordKind = "status"
	// RecordPrompt is a clarification question presented to the human
	RecordPrompt RecordKind = "prompt"
	// RecordAnswer is the human's answer to a clarification
	RecordAnswer RecordKind = "answer"
	// RecordInsight is an agent finding surfaced to the human
	RecordInsight RecordKind = "insight"
)

// Record is one entry in the conversation log
type Record struct {
	Kind    RecordKind        `json:"kind"`
	Text    string            `json:"text"`
	Term    string            `json:"term,omitempty"`
	Options []protocol.Option `json:"options,omitempty"`
	At      time.Time         `json:"at"`
}

// Log is an append-only conversation log with a coalesced change signal,
// mirroring the event log's consumption model so a renderer can tail it.
type Log struct {
	mu      sync.Mutex
	records []Record
	notify  chan struct{}
}

// NewLog creates an empty conversation log
func NewLog() *Log {
	return &Log{notify: make(chan struct{}, 1)}
}

// Append adds a record, stamping it if unstamped
func (l *Log) Append(r Record) {
	if r.At.IsZero() {
		r.At = time.Now().UTC()
	}

	l.mu.Lock()
	l.records = append(l.records, r)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of records
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Slice returns records [from, len) in order
func (l *Log) Slice(from int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	if from < 0 || from >= len(l.records) {
		return nil
	}
	out := make([]Record, len(l.records)-from)
	copy(out, l.records[from:])
	return out
}

// Notify returns the channel signaled on append
func (l *Log) Notify() <-chan struct{} {
	return l.notify
}

// Reset clears the log, returning the conversation to its initial state
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
}
