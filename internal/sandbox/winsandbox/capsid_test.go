package winsandbox

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateCapSids_CreatesAndPersists(t *testing.T) {
	home := t.TempDir()

	caps, err := LoadOrCreateCapSids(home)
	require.NoError(t, err)
	assert.Regexp(t, `^S-1-15-3-\d+-\d+-\d+-\d+$`, caps.Workspace)
	assert.Regexp(t, `^S-1-15-3-\d+-\d+-\d+-\d+$`, caps.Readonly)
	assert.NotEqual(t, caps.Workspace, caps.Readonly)

	// The file is JSON with both capabilities.
	data, err := os.ReadFile(CapSidFile(home))
	require.NoError(t, err)
	var onDisk CapSids
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, caps, onDisk)

	// A second load reuses the persisted SIDs.
	again, err := LoadOrCreateCapSids(home)
	require.NoError(t, err)
	assert.Equal(t, caps, again)
}

func TestLoadOrCreateCapSids_MigratesLegacyBareString(t *testing.T) {
	home := t.TempDir()
	legacy := "S-1-15-3-1111-2222-3333-4444"
	require.NoError(t, os.WriteFile(CapSidFile(home), []byte(legacy+"\n"), 0o600))

	caps, err := LoadOrCreateCapSids(home)
	require.NoError(t, err)
	assert.Equal(t, legacy, caps.Workspace)
	assert.NotEmpty(t, caps.Readonly)
	assert.NotEqual(t, legacy, caps.Readonly)

	// Migration rewrote the file as JSON.
	data, err := os.ReadFile(CapSidFile(home))
	require.NoError(t, err)
	var onDisk CapSids
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, caps, onDisk)
}

func TestLoadOrCreateCapSids_RejectsGarbage(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.WriteFile(CapSidFile(home), []byte("not a sid"), 0o600))

	_, err := LoadOrCreateCapSids(home)
	assert.ErrorContains(t, err, "unrecognized cap_sid content")
}

func TestCapSidFile(t *testing.T) {
	assert.Equal(t, filepath.Join("home", CapSidFileName), CapSidFile("home"))
}
