package sandbox

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	t.Run("read-only preset round trips", func(t *testing.T) {
		p, err := ParsePolicy("read-only")
		require.NoError(t, err)
		assert.Equal(t, NewReadOnlyPolicy(), p)
	})

	t.Run("workspace-write preset", func(t *testing.T) {
		p, err := ParsePolicy("workspace-write")
		require.NoError(t, err)
		assert.True(t, p.IsWorkspaceWrite())
		assert.False(t, p.HasFullNetworkAccess())
	})

	t.Run("workspace-write json", func(t *testing.T) {
		p, err := ParsePolicy(`{"type":"workspace-write","writable_roots":["/srv/data"],"network_access":true}`)
		require.NoError(t, err)
		assert.True(t, p.IsWorkspaceWrite())
		assert.True(t, p.HasFullNetworkAccess())
		assert.Equal(t, []string{"/srv/data"}, p.WritableRoots())
	})

	t.Run("do-not-sandbox policies are rejected", func(t *testing.T) {
		for _, input := range []string{
			"danger-full-access",
			"external-sandbox",
			`{"type":"danger-full-access"}`,
			`{"type":"external-sandbox","network_access":"enabled"}`,
		} {
			_, err := ParsePolicy(input)
			assert.ErrorContains(t, err, "cannot be enforced", "input %q", input)
		}
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := ParsePolicy("full-send")
		assert.Error(t, err)
	})
}

func TestPolicyJSONRoundTrip(t *testing.T) {
	orig := NewWorkspaceWritePolicyWith(WorkspaceWriteOptions{
		WritableRoots:   []string{"/srv/data"},
		NetworkAccess:   true,
		ExcludeSlashTmp: true,
	})
	data, err := json.Marshal(orig)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"workspace-write","writable_roots":["/srv/data"],"network_access":true,"exclude_slash_tmp":true}`, string(data))

	var decoded Policy
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, orig, decoded)
}

func TestPolicyPredicates(t *testing.T) {
	assert.True(t, NewReadOnlyPolicy().HasFullDiskReadAccess())
	assert.False(t, NewReadOnlyPolicy().HasFullDiskWriteAccess())
	assert.False(t, NewReadOnlyPolicy().HasFullNetworkAccess())

	assert.True(t, NewDangerFullAccessPolicy().HasFullDiskWriteAccess())
	assert.True(t, NewDangerFullAccessPolicy().HasFullNetworkAccess())

	assert.True(t, NewExternalSandboxPolicy(NetworkEnabled).HasFullNetworkAccess())
	assert.False(t, NewExternalSandboxPolicy(NetworkRestricted).HasFullNetworkAccess())
	assert.True(t, NewExternalSandboxPolicy("").HasFullDiskWriteAccess())
}

func TestExternalSandboxJSON(t *testing.T) {
	var p Policy
	require.NoError(t, json.Unmarshal([]byte(`{"type":"external-sandbox","network_access":"enabled"}`), &p))
	assert.True(t, p.IsExternalSandbox())
	assert.True(t, p.HasFullNetworkAccess())

	require.NoError(t, json.Unmarshal([]byte(`{"type":"external-sandbox"}`), &p))
	assert.False(t, p.HasFullNetworkAccess())

	assert.Error(t, json.Unmarshal([]byte(`{"type":"external-sandbox","network_access":"sometimes"}`), &p))
	assert.Error(t, json.Unmarshal([]byte(`{"type":"chroot"}`), &p))
}
