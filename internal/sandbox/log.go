package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogFileName is the append-only text log of sandboxed exec attempts kept
// under codex home.
const LogFileName = "sandbox.log"

// Logger appends start/success/failure lines to sandbox.log. It is safe for
// concurrent use; each line carries an RFC 3339 timestamp.
type Logger struct {
	mu sync.Mutex
	f  *os.File
}

// OpenLogger opens (creating if needed) the sandbox log under dir.
func OpenLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("sandbox: create log dir: %w", err)
	}
	path := filepath.Join(dir, LogFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("sandbox: open %s: %w", path, err)
	}
	return &Logger{f: f}, nil
}

// Start records that a command is about to run under the sandbox.
func (l *Logger) Start(mechanism string, command []string) {
	l.line("start", mechanism, command, "")
}

// Success records a completed sandboxed command.
func (l *Logger) Success(mechanism string, command []string, elapsed time.Duration) {
	l.line("success", mechanism, command, elapsed.Round(time.Millisecond).String())
}

// Failure records a sandboxed command that failed to start or was rejected.
func (l *Logger) Failure(mechanism string, command []string, cause error) {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	l.line("failure", mechanism, command, detail)
}

func (l *Logger) line(event, mechanism string, command []string, detail string) {
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString(time.Now().UTC().Format(time.RFC3339))
	b.WriteByte(' ')
	b.WriteString(event)
	if mechanism != "" {
		b.WriteString(" sandbox=")
		b.WriteString(mechanism)
	}
	b.WriteString(" command=")
	b.WriteString(fmt.Sprintf("%q", strings.Join(command, " ")))
	if detail != "" {
		b.WriteString(" detail=")
		b.WriteString(fmt.Sprintf("%q", detail))
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.f.WriteString(b.String())
}

// Close releases the underlying file.
func (l *Logger) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	return l.f.Close()
}
