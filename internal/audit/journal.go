// Package audit persists escalation decisions to a per-home sqlite journal.
// Every intercepted exec attempt leaves one row, so a session's approval
// history can be reviewed after the fact.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/opencodex/codex/internal/escalation"
)

// JournalFileName is the database file under codex home.
const JournalFileName = "decisions.sqlite"

// Journal is a sqlite-backed escalation.Recorder. Safe for concurrent use;
// writes are serialized on a single connection.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal under codexHome.
func Open(codexHome string) (*Journal, error) {
	if codexHome == "" {
		return nil, fmt.Errorf("audit: codex home is empty")
	}
	if err := os.MkdirAll(codexHome, 0o700); err != nil {
		return nil, fmt.Errorf("audit: create home dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(codexHome, JournalFileName))
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if err := j.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Close releases the database handle.
func (j *Journal) Close() error { return j.db.Close() }

func (j *Journal) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS decisions (
			decision_id TEXT PRIMARY KEY,
			ts_unix_ns INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			file TEXT NOT NULL,
			argv_json TEXT NOT NULL,
			workdir TEXT,
			action TEXT NOT NULL,
			reason TEXT,
			latency_ns INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_session_ts ON decisions(session_id, ts_unix_ns);`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_action_ts ON decisions(action, ts_unix_ns);`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("audit: migrate: %w", err)
		}
	}
	return nil
}

// Record implements escalation.Recorder.
func (j *Journal) Record(ctx context.Context, rec escalation.DecisionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("audit: decision record missing id")
	}
	at := rec.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	argv, err := json.Marshal(rec.Argv)
	if err != nil {
		return fmt.Errorf("audit: marshal argv: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO decisions(
			decision_id, ts_unix_ns, session_id, file, argv_json,
			workdir, action, reason, latency_ns
		) VALUES(?,?,?,?,?,?,?,?,?);`,
		rec.ID,
		at.UTC().UnixNano(),
		rec.SessionID,
		rec.File,
		string(argv),
		nullable(rec.Workdir),
		rec.Action,
		nullable(rec.Reason),
		rec.Latency.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("audit: insert decision: %w", err)
	}
	return nil
}

// Query filters the journal. Zero-valued fields match everything.
type Query struct {
	SessionID string
	Action    string
	Since     *time.Time
	Limit     int
	Asc       bool
}

// Decisions returns matching records, newest first unless Asc is set.
func (j *Journal) Decisions(ctx context.Context, q Query) ([]escalation.DecisionRecord, error) {
	where := []string{"1=1"}
	var args []any
	if q.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if q.Action != "" {
		where = append(where, "action = ?")
		args = append(args, q.Action)
	}
	if q.Since != nil {
		where = append(where, "ts_unix_ns >= ?")
		args = append(args, q.Since.UTC().UnixNano())
	}

	order := "DESC"
	if q.Asc {
		order = "ASC"
	}
	limit := q.Limit
	if limit <= 0 || limit > 5000 {
		limit = 200
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT decision_id, ts_unix_ns, session_id, file, argv_json, workdir, action, reason, latency_ns
		 FROM decisions WHERE `+strings.Join(where, " AND ")+` ORDER BY ts_unix_ns `+order+` LIMIT ?`,
		append(args, limit)...,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: query decisions: %w", err)
	}
	defer rows.Close()

	var out []escalation.DecisionRecord
	for rows.Next() {
		var rec escalation.DecisionRecord
		var ts, latency int64
		var argvJSON string
		var workdir, reason sql.NullString
		if err := rows.Scan(&rec.ID, &ts, &rec.SessionID, &rec.File, &argvJSON, &workdir, &rec.Action, &reason, &latency); err != nil {
			return nil, fmt.Errorf("audit: scan decision: %w", err)
		}
		if err := json.Unmarshal([]byte(argvJSON), &rec.Argv); err != nil {
			return nil, fmt.Errorf("audit: unmarshal argv: %w", err)
		}
		rec.At = time.Unix(0, ts).UTC()
		rec.Workdir = workdir.String
		rec.Reason = reason.String
		rec.Latency = time.Duration(latency)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: decision rows: %w", err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
