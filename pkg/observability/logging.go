// Package observability provides the structured audit logger and tracing
// helpers shared by the escalation server and sandbox backends.
package observability

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log entry.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// AuditLogger writes JSON log lines with session context. It backs both the
// runtime log stream and the append-only sandbox.log.
type AuditLogger struct {
	output    io.Writer
	mu        sync.Mutex
	sessionID string
	minLevel  LogLevel
}

// AuditLoggerConfig configures the audit logger.
type AuditLoggerConfig struct {
	Output    io.Writer
	SessionID string
	MinLevel  LogLevel
}

// NewAuditLogger creates a new structured audit logger.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	minLevel := cfg.MinLevel
	if minLevel == "" {
		minLevel = LogInfo
	}
	return &AuditLogger{
		output:    output,
		sessionID: cfg.SessionID,
		minLevel:  minLevel,
	}
}

// WithSession returns a new logger bound to a session id.
func (l *AuditLogger) WithSession(sessionID string) *AuditLogger {
	return &AuditLogger{
		output:    l.output,
		sessionID: sessionID,
		minLevel:  l.minLevel,
	}
}

func (l *AuditLogger) shouldLog(level LogLevel) bool {
	levels := map[LogLevel]int{
		LogDebug: 0,
		LogInfo:  1,
		LogWarn:  2,
		LogError: 3,
	}
	return levels[level] >= levels[l.minLevel]
}

func (l *AuditLogger) log(ctx context.Context, level LogLevel, msg string, fields map[string]any) {
	if !l.shouldLog(level) {
		return
	}

	entry := make(map[string]any, len(fields)+6)
	entry["level"] = string(level)
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["msg"] = msg
	if l.sessionID != "" {
		entry["session_id"] = l.sessionID
	}
	if traceID := ExtractTraceID(ctx); traceID != "" {
		entry["trace_id"] = traceID
	}
	if spanID := ExtractSpanID(ctx); spanID != "" {
		entry["span_id"] = spanID
	}
	for k, v := range fields {
		entry[k] = v
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write(data)
	l.output.Write([]byte("\n"))
}

// Debug logs a debug-level message.
func (l *AuditLogger) Debug(ctx context.Context, msg string, fields map[string]any) {
	l.log(ctx, LogDebug, msg, fields)
}

// Info logs an info-level message.
func (l *AuditLogger) Info(ctx context.Context, msg string, fields map[string]any) {
	l.log(ctx, LogInfo, msg, fields)
}

// Warn logs a warning-level message.
func (l *AuditLogger) Warn(ctx context.Context, msg string, fields map[string]any) {
	l.log(ctx, LogWarn, msg, fields)
}

// Error logs an error-level message.
func (l *AuditLogger) Error(ctx context.Context, msg string, fields map[string]any) {
	l.log(ctx, LogError, msg, fields)
}

// LogEscalationDecision records one escalation decision with latency.
func (l *AuditLogger) LogEscalationDecision(ctx context.Context, file string, argv []string, action string, latency time.Duration) {
	l.Info(ctx, "escalation_decision", map[string]any{
		"file":       file,
		"argv":       argv,
		"action":     action,
		"latency_us": latency.Microseconds(),
	})
}

// LogSandboxEvent records a sandbox lifecycle event (start/success/failure).
func (l *AuditLogger) LogSandboxEvent(ctx context.Context, mechanism string, phase string, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["mechanism"] = mechanism
	fields["phase"] = phase
	l.Info(ctx, "sandbox", fields)
}
