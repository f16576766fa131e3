package eventlog

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"notebridge/internal/ndjson"
	"notebridge/internal/protocol"
)

func TestEventLogWriteRead(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "sessions", "sess-1.ndjson")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	eventLog, err := NewEventLog(logPath, logger)
	if err != nil {
		t.Fatalf("failed to create event log: %v", err)
	}
	defer eventLog.Close()

	events := []*protocol.AgentEvent{
		{Event: protocol.EventSessionStarted, SessionID: "sess-1"},
		{Event: protocol.EventAction, Action: protocol.ActionCreateBlock, BlockType: protocol.BlockTypeQuery, Content: "select 1", BlockID: "be-1"},
		{Event: protocol.EventSessionCompleted},
	}

	for _, evt := range events {
		if err := eventLog.WriteEvent(evt); err != nil {
			t.Fatalf("failed to write event: %v", err)
		}
	}

	if err := eventLog.Close(); err != nil {
		t.Fatalf("failed to close event log: %v", err)
	}

	file, err := os.Open(logPath)
	if err != nil {
		t.Fatalf("failed to open log file for reading: %v", err)
	}
	defer file.Close()

	decoder := ndjson.NewDecoder(file)

	for i, want := range events {
		var got protocol.AgentEvent
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("failed to decode event %d: %v", i, err)
		}
		if got.Event != want.Event {
			t.Errorf("event %d: expected %s, got %s", i, want.Event, got.Event)
		}
	}

	if _, err := decoder.Next(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestEventLogDirectoryCreation(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "nested", "dirs", "sessions", "sess.ndjson")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	eventLog, err := NewEventLog(logPath, logger)
	if err != nil {
		t.Fatalf("failed to create event log: %v", err)
	}
	defer eventLog.Close()

	if _, err := os.Stat(filepath.Dir(logPath)); os.IsNotExist(err) {
		t.Error("log directory was not created")
	}
}
