package sandbox

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritableRootsWithCwd(t *testing.T) {
	cwd := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(cwd, ".git"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(cwd, ".codex"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(cwd, "src"), 0o755))

	t.Setenv("TMPDIR", "")

	policy := NewWorkspaceWritePolicy()
	roots := policy.WritableRootsWithCwd(cwd)
	require.NotEmpty(t, roots)
	assert.Equal(t, cwd, roots[0].Root)
	assert.ElementsMatch(t,
		[]string{filepath.Join(cwd, ".git"), filepath.Join(cwd, ".codex")},
		roots[0].ReadOnlySubpaths)

	if runtime.GOOS != "windows" {
		// /tmp is included by default and excluded on request.
		last := roots[len(roots)-1]
		assert.Equal(t, "/tmp", last.Root)

		excluded := NewWorkspaceWritePolicyWith(WorkspaceWriteOptions{ExcludeSlashTmp: true})
		for _, root := range excluded.WritableRootsWithCwd(cwd) {
			assert.NotEqual(t, "/tmp", root.Root)
		}
	}
}

func TestWritableRootsWithCwd_GitPointerFile(t *testing.T) {
	cwd := t.TempDir()
	gitdir := filepath.Join(cwd, "repos", "main.git")
	require.NoError(t, os.MkdirAll(gitdir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cwd, ".git"), []byte("gitdir: repos/main.git\n"), 0o644))
	t.Setenv("TMPDIR", "")

	roots := NewWorkspaceWritePolicy().WritableRootsWithCwd(cwd)
	require.NotEmpty(t, roots)
	assert.Contains(t, roots[0].ReadOnlySubpaths, gitdir)
	assert.Contains(t, roots[0].ReadOnlySubpaths, filepath.Join(cwd, ".git"))
}

func TestWritableRootsWithCwd_OnlyWorkspaceWrite(t *testing.T) {
	cwd := t.TempDir()
	assert.Nil(t, NewReadOnlyPolicy().WritableRootsWithCwd(cwd))
	assert.Nil(t, NewDangerFullAccessPolicy().WritableRootsWithCwd(cwd))
}

func TestWritableRootIsPathWritable(t *testing.T) {
	root := WritableRoot{
		Root:             filepath.Join("/work", "repo"),
		ReadOnlySubpaths: []string{filepath.Join("/work", "repo", ".git")},
	}
	assert.True(t, root.IsPathWritable(filepath.Join("/work", "repo", "src", "main.go")))
	assert.True(t, root.IsPathWritable(filepath.Join("/work", "repo")))
	assert.False(t, root.IsPathWritable(filepath.Join("/work", "repo", ".git", "hooks", "pre-commit")))
	assert.False(t, root.IsPathWritable(filepath.Join("/work", "other")))
}
