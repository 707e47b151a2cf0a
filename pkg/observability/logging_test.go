package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewAuditLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewAuditLogger(AuditLoggerConfig{
		Output:    buf,
		SessionID: "sess-123",
	})

	if logger == nil {
		t.Fatal("NewAuditLogger returned nil")
	}
	if logger.sessionID != "sess-123" {
		t.Errorf("sessionID = %q, want sess-123", logger.sessionID)
	}
	if logger.minLevel != LogInfo {
		t.Errorf("minLevel = %q, want info", logger.minLevel)
	}
}

func TestAuditLogger_DefaultOutput(t *testing.T) {
	logger := NewAuditLogger(AuditLoggerConfig{})
	if logger.output == nil {
		t.Error("output should default to stderr")
	}
}

func TestAuditLogger_WithSession(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewAuditLogger(AuditLoggerConfig{Output: buf})

	newLogger := logger.WithSession("new-session")
	if newLogger.sessionID != "new-session" {
		t.Errorf("sessionID = %q, want new-session", newLogger.sessionID)
	}
	if newLogger.output != buf {
		t.Error("output should be preserved")
	}
}

func decodeEntry(t *testing.T, line string) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("invalid JSON log line %q: %v", line, err)
	}
	return entry
}

func TestAuditLogger_EntryFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewAuditLogger(AuditLoggerConfig{Output: buf, SessionID: "sess-1"})

	logger.Info(context.Background(), "hello", map[string]any{"answer": 42})

	entry := decodeEntry(t, strings.TrimSpace(buf.String()))
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["msg"] != "hello" {
		t.Errorf("msg = %v, want hello", entry["msg"])
	}
	if entry["session_id"] != "sess-1" {
		t.Errorf("session_id = %v, want sess-1", entry["session_id"])
	}
	if entry["answer"] != float64(42) {
		t.Errorf("answer = %v, want 42", entry["answer"])
	}
	if _, err := time.Parse(time.RFC3339Nano, entry["ts"].(string)); err != nil {
		t.Errorf("ts is not RFC 3339: %v", err)
	}
}

func TestAuditLogger_MinLevelFilters(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewAuditLogger(AuditLoggerConfig{Output: buf, MinLevel: LogWarn})

	ctx := context.Background()
	logger.Debug(ctx, "d", nil)
	logger.Info(ctx, "i", nil)
	logger.Warn(ctx, "w", nil)
	logger.Error(ctx, "e", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}
	if entry := decodeEntry(t, lines[0]); entry["level"] != "warn" {
		t.Errorf("first line level = %v, want warn", entry["level"])
	}
}

func TestAuditLogger_LogEscalationDecision(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewAuditLogger(AuditLoggerConfig{Output: buf})

	logger.LogEscalationDecision(context.Background(), "/usr/bin/git", []string{"git", "push"}, "deny", 1500*time.Microsecond)

	entry := decodeEntry(t, strings.TrimSpace(buf.String()))
	if entry["msg"] != "escalation_decision" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["file"] != "/usr/bin/git" {
		t.Errorf("file = %v", entry["file"])
	}
	if entry["action"] != "deny" {
		t.Errorf("action = %v", entry["action"])
	}
	if entry["latency_us"] != float64(1500) {
		t.Errorf("latency_us = %v, want 1500", entry["latency_us"])
	}
}

func TestAuditLogger_LogSandboxEvent(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewAuditLogger(AuditLoggerConfig{Output: buf})

	logger.LogSandboxEvent(context.Background(), "linux-sandbox", "start", nil)

	entry := decodeEntry(t, strings.TrimSpace(buf.String()))
	if entry["mechanism"] != "linux-sandbox" {
		t.Errorf("mechanism = %v", entry["mechanism"])
	}
	if entry["phase"] != "start" {
		t.Errorf("phase = %v", entry["phase"])
	}
}
