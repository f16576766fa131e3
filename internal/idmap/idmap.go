// Package idmap correlates the agent's block identifiers with the document's.
// The map lives for one session and is discarded on reset, so a stale
// execution result arriving after reset finds no mapping and is ignored.
package idmap

import "sync"

// Map is a bidirectional backendBlockId ↔ documentBlockId mapping
type Map struct {
	mu         sync.Mutex
	byBackend  map[string]string
	byDocument map[string]string
}

// New creates an empty map
func New() *Map {
	return &Map{
		byBackend:  make(map[string]string),
		byDocument: make(map[string]string),
	}
}

// Put records the correlation between a backend id and a document id
func (m *Map) Put(backendID, documentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byBackend[backendID] = documentID
	m.byDocument[documentID] = backendID
}

// DocumentID resolves a backend id to the document's block id
func (m *Map) DocumentID(backendID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byBackend[backendID]
	return id, ok
}

// BackendID resolves a document block id to the agent's identifier
func (m *Map) BackendID(documentID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byDocument[documentID]
	return id, ok
}

// Len returns the number of correlated pairs
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byBackend)
}

// Reset discards all correlations
func (m *Map) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byBackend = make(map[string]string)
	m.byDocument = make(map[string]string)
}
