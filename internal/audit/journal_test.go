package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencodex/codex/internal/escalation"
)

func TestJournal_RecordAndQuery(t *testing.T) {
	journal, err := Open(t.TempDir())
	require.NoError(t, err)
	defer journal.Close()
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	records := []escalation.DecisionRecord{
		{ID: "d1", SessionID: "s1", File: "/bin/ls", Argv: []string{"ls", "-la"}, Workdir: "/work", Action: "run", Latency: 3 * time.Millisecond, At: base},
		{ID: "d2", SessionID: "s1", File: "/bin/rm", Argv: []string{"rm", "-rf", "x"}, Action: "deny", Reason: "denied by user", At: base.Add(time.Minute)},
		{ID: "d3", SessionID: "s2", File: "/usr/bin/make", Argv: []string{"make"}, Action: "escalate", At: base.Add(2 * time.Minute)},
	}
	for _, rec := range records {
		require.NoError(t, journal.Record(ctx, rec))
	}

	got, err := journal.Decisions(ctx, Query{SessionID: "s1", Asc: true})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d1", got[0].ID)
	assert.Equal(t, []string{"ls", "-la"}, got[0].Argv)
	assert.Equal(t, "/work", got[0].Workdir)
	assert.Equal(t, 3*time.Millisecond, got[0].Latency)
	assert.Equal(t, base, got[0].At)
	assert.Equal(t, "denied by user", got[1].Reason)

	denied, err := journal.Decisions(ctx, Query{Action: "deny"})
	require.NoError(t, err)
	require.Len(t, denied, 1)
	assert.Equal(t, "d2", denied[0].ID)

	since := base.Add(90 * time.Second)
	recent, err := journal.Decisions(ctx, Query{Since: &since})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "d3", recent[0].ID)
}

func TestJournal_RejectsRecordWithoutID(t *testing.T) {
	journal, err := Open(t.TempDir())
	require.NoError(t, err)
	defer journal.Close()

	err = journal.Record(context.Background(), escalation.DecisionRecord{Action: "run"})
	assert.ErrorContains(t, err, "missing id")
}

func TestJournal_ReopenKeepsRecords(t *testing.T) {
	home := t.TempDir()
	ctx := context.Background()

	journal, err := Open(home)
	require.NoError(t, err)
	require.NoError(t, journal.Record(ctx, escalation.DecisionRecord{
		ID: "d1", SessionID: "s1", File: "/bin/true", Argv: []string{"true"}, Action: "run",
	}))
	require.NoError(t, journal.Close())

	journal, err = Open(home)
	require.NoError(t, err)
	defer journal.Close()
	got, err := journal.Decisions(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
