//go:build !windows

package spawn

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestStartWait_ExitCode(t *testing.T) {
	h, err := Start(context.Background(), CommandSpec{
		Program: "sh",
		Args:    []string{"-c", "exit 7"},
	}, Stdio{})
	require.NoError(t, err)

	result, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, result.ExitCode)
	assert.False(t, result.TimedOut)
}

func TestStart_EmptyProgram(t *testing.T) {
	_, err := Start(context.Background(), CommandSpec{}, Stdio{})
	require.Error(t, err)
}

func TestStart_ChildLeadsOwnProcessGroup(t *testing.T) {
	h, err := Start(context.Background(), CommandSpec{
		Program: "sleep",
		Args:    []string{"30"},
	}, Stdio{})
	require.NoError(t, err)
	defer h.Close()

	pgid, err := unix.Getpgid(h.PID())
	require.NoError(t, err)
	assert.Equal(t, h.PID(), pgid)
	assert.NotEqual(t, unix.Getpgrp(), pgid)
}

func TestWait_CancelKillsWholeGroup(t *testing.T) {
	// The shell backgrounds a grandchild; killing only the direct child
	// would leave it running.
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	h, err := Start(context.Background(), CommandSpec{
		Program: "sh",
		Args:    []string{"-c", "sleep 300 & echo $!; wait"},
	}, Stdio{Stdout: w})
	require.NoError(t, err)
	w.Close()

	line := make([]byte, 64)
	n, err := r.Read(line)
	require.NoError(t, err)
	grandchild, err := strconv.Atoi(strings.TrimSpace(string(line[:n])))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, result.TimedOut)

	require.Eventually(t, func() bool {
		return unix.Kill(grandchild, 0) != nil
	}, 5*time.Second, 10*time.Millisecond, "backgrounded grandchild still alive")
}

func TestWait_ExpirationKillsGroup(t *testing.T) {
	h, err := Start(context.Background(), CommandSpec{
		Program:    "sleep",
		Args:       []string{"300"},
		Expiration: 100 * time.Millisecond,
	}, Stdio{})
	require.NoError(t, err)

	started := time.Now()
	result, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
	assert.Less(t, time.Since(started), 10*time.Second, "expiration did not bound the wait")
	assert.Error(t, unix.Kill(h.PID(), 0), "child still alive after expiration")
}

func TestClose_KillOnDrop(t *testing.T) {
	// Discarding the handle without Wait must still take down the whole
	// group, including a backgrounded grandchild.
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	h, err := Start(context.Background(), CommandSpec{
		Program: "sh",
		Args:    []string{"-c", "sleep 300 & echo $!; wait"},
	}, Stdio{Stdout: w})
	require.NoError(t, err)
	w.Close()

	line := make([]byte, 64)
	n, err := r.Read(line)
	require.NoError(t, err)
	grandchild, err := strconv.Atoi(strings.TrimSpace(string(line[:n])))
	require.NoError(t, err)

	pid := h.PID()
	require.NoError(t, h.Close())
	assert.Error(t, unix.Kill(pid, 0), "child still alive after Close")
	require.Eventually(t, func() bool {
		return unix.Kill(grandchild, 0) != nil
	}, 5*time.Second, 10*time.Millisecond, "backgrounded grandchild still alive")

	// Close after Wait-or-Close is a no-op.
	require.NoError(t, h.Close())
}

func TestKillProcessGroupByPID_GoneGroupIsSuccess(t *testing.T) {
	h, err := Start(context.Background(), CommandSpec{
		Program: "true",
	}, Stdio{})
	require.NoError(t, err)
	_, err = h.Wait(context.Background())
	require.NoError(t, err)

	assert.NoError(t, KillProcessGroupByPID(h.PID()))
}

func TestStart_EnvAndArgv0(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	h, err := Start(context.Background(), CommandSpec{
		Program: "sh",
		Args:    []string{"-c", "echo \"$0 $CODEX_TEST_MARKER\""},
		Argv0:   "wrapped-shell",
		Env:     map[string]string{"CODEX_TEST_MARKER": "on"},
	}, Stdio{Stdout: w})
	require.NoError(t, err)
	w.Close()

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	result, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "wrapped-shell on", strings.TrimSpace(string(out)))
}

func TestExitCode_SignalEncoding(t *testing.T) {
	h, err := Start(context.Background(), CommandSpec{
		Program: "sleep",
		Args:    []string{"300"},
	}, Stdio{})
	require.NoError(t, err)
	require.NoError(t, h.Kill())

	result, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 128+int(unix.SIGKILL), result.ExitCode)
}
