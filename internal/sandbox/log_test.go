package sandbox

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerAppendsLines(t *testing.T) {
	dir := t.TempDir()
	logger, err := OpenLogger(dir)
	require.NoError(t, err)

	cmd := []string{"cargo", "test"}
	logger.Start("linux-sandbox", cmd)
	logger.Success("linux-sandbox", cmd, 1500*time.Millisecond)
	logger.Failure("linux-sandbox", cmd, os.ErrPermission)
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, " start sandbox=linux-sandbox command=\"cargo test\"")
	assert.Contains(t, out, " success ")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, " failure ")
	assert.Contains(t, out, "permission denied")

	// Reopening appends instead of truncating.
	logger, err = OpenLogger(dir)
	require.NoError(t, err)
	logger.Start("seatbelt", []string{"ls"})
	require.NoError(t, logger.Close())

	again, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Greater(t, len(again), len(data))
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Start("none", []string{"ls"})
	assert.NoError(t, logger.Close())
}
