package linuxsandbox

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/opencodex/codex/internal/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBwrapCommandArgs_ReadOnly(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bwrap mounts use unix paths")
	}
	cwd := t.TempDir()

	args, err := CreateBwrapCommandArgs([]string{"ls", "-la"}, sandbox.NewReadOnlyPolicy(), cwd, DefaultBwrapOptions())
	require.NoError(t, err)

	// Read-only by default, no writable binds, fresh /proc, command after --.
	assert.Equal(t, []string{"--new-session", "--die-with-parent"}, args[:2])
	assert.Contains(t, args, "--ro-bind")
	assert.Contains(t, args, "--unshare-pid")
	assert.NotContains(t, args, "--bind")
	assert.NotContains(t, args, "--unshare-net")
	sep := indexOf(args, "--")
	require.GreaterOrEqual(t, sep, 0)
	assert.Equal(t, []string{"ls", "-la"}, args[sep+1:])
}

func TestCreateBwrapCommandArgs_WorkspaceWrite(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bwrap mounts use unix paths")
	}
	cwd := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(cwd, ".git"), 0o755))
	t.Setenv("TMPDIR", "")

	policy := sandbox.NewWorkspaceWritePolicyWith(sandbox.WorkspaceWriteOptions{ExcludeSlashTmp: true})
	opts := DefaultBwrapOptions()
	opts.Network = NetworkIsolated

	args, err := CreateBwrapCommandArgs([]string{"make"}, policy, cwd, opts)
	require.NoError(t, err)

	joined := " " + join(args) + " "
	// Mount order: ro-bind / first, then the writable cwd, then the
	// protected .git re-applied read-only.
	assert.Contains(t, joined, " --ro-bind / / ")
	assert.Contains(t, joined, " --bind "+cwd+" "+cwd+" ")
	gitDir := filepath.Join(cwd, ".git")
	assert.Contains(t, joined, " --ro-bind "+gitDir+" "+gitDir+" ")
	assert.Contains(t, joined, " --unshare-net ")
	assert.Contains(t, joined, " --dev-bind /dev/null /dev/null ")
	roRoot := indexOf(args, "--ro-bind")
	bind := indexOf(args, "--bind")
	assert.Less(t, roRoot, bind)
}

func TestCreateBwrapCommandArgs_MissingWritableRoot(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bwrap mounts use unix paths")
	}
	policy := sandbox.NewWorkspaceWritePolicyWith(sandbox.WorkspaceWriteOptions{
		WritableRoots:   []string{"/definitely/not/here"},
		ExcludeSlashTmp: true,
	})
	t.Setenv("TMPDIR", "")

	_, err := CreateBwrapCommandArgs([]string{"make"}, policy, t.TempDir(), DefaultBwrapOptions())
	assert.ErrorContains(t, err, "does not exist")
}

func TestHelperCommandArgs(t *testing.T) {
	args, err := HelperCommandArgs("/usr/lib/codex/codex-linux-sandbox",
		sandbox.NewReadOnlyPolicy(), "/work", HelperOptions{UseBwrap: true, NoProc: true},
		[]string{"cargo", "check"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/usr/lib/codex/codex-linux-sandbox",
		"--sandbox-policy-cwd", "/work",
		"--sandbox-policy", `{"type":"read-only"}`,
		"--use-bwrap-sandbox",
		"--no-proc",
		"--",
		"cargo", "check",
	}, args)

	_, err = HelperCommandArgs("", sandbox.NewReadOnlyPolicy(), "/work", HelperOptions{}, []string{"ls"})
	assert.ErrorContains(t, err, "missing codex-linux-sandbox executable")

	_, err = HelperCommandArgs("/bin/helper", sandbox.NewReadOnlyPolicy(), "/work", HelperOptions{}, nil)
	assert.ErrorContains(t, err, "no command")
}

func indexOf(items []string, want string) int {
	for i, item := range items {
		if item == want {
			return i
		}
	}
	return -1
}

func join(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += " "
		}
		out += item
	}
	return out
}
