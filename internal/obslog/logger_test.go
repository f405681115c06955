package obslog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T, level Level) (*Logger, *bytes.Buffer) {
	t.Helper()
	logger, err := New("test", level, "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	var buf bytes.Buffer
	logger.output = &buf
	return logger, &buf
}

func TestLoggerWritesJSONLines(t *testing.T) {
	logger, buf := newTestLogger(t, INFO)
	logger.Info("tunnel up", Fields{"peer": "alice"})

	line := strings.TrimSpace(buf.String())
	var entry Entry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if entry.Message != "tunnel up" {
		t.Errorf("Message = %q, want %q", entry.Message, "tunnel up")
	}
	if entry.Level != "INFO" {
		t.Errorf("Level = %q, want INFO", entry.Level)
	}
	if entry.Fields["peer"] != "alice" {
		t.Errorf("Fields[peer] = %v, want alice", entry.Fields["peer"])
	}
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	logger, buf := newTestLogger(t, WARN)
	logger.Debug("should not appear")
	logger.Info("also should not appear")

	if buf.Len() != 0 {
		t.Errorf("expected no output below configured level, got %q", buf.String())
	}

	logger.Warn("should appear")
	if buf.Len() == 0 {
		t.Error("expected output at configured level")
	}
}

func TestWithFieldsAppliesGlobally(t *testing.T) {
	logger, buf := newTestLogger(t, INFO)
	logger.WithField("node", "relay-1")
	logger.Info("hello")

	var entry Entry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry.Fields["node"] != "relay-1" {
		t.Errorf("Fields[node] = %v, want relay-1", entry.Fields["node"])
	}
}
