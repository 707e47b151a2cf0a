package sandbox

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gobwas/glob"
)

// WritableRoot is a writable path plus the subpaths beneath it that stay
// read-only even though the root is writable. The protected subpaths hold
// files that could escalate the agent's privileges if modified (.git hooks,
// .codex config, .agents skills).
type WritableRoot struct {
	Root             string
	ReadOnlySubpaths []string
}

// IsPathWritable reports whether path falls under the root without touching
// a protected subpath.
func (w WritableRoot) IsPathWritable(path string) bool {
	if !pathHasPrefix(path, w.Root) {
		return false
	}
	for _, sub := range w.ReadOnlySubpaths {
		if pathHasPrefix(path, sub) {
			return false
		}
	}
	return true
}

func pathHasPrefix(path, prefix string) bool {
	rel, err := filepath.Rel(prefix, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

// protectedSubpathGlobs match top-level entries of a writable root that must
// remain read-only.
var protectedSubpathGlobs = []glob.Glob{
	glob.MustCompile(".git"),
	glob.MustCompile(".agents"),
	glob.MustCompile(".codex"),
}

func isProtectedEntry(name string) bool {
	for _, g := range protectedSubpathGlobs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// WritableRootsWithCwd returns the writable roots for this policy, tailored
// to the working directory, each with its protected read-only subpaths. Only
// workspace-write produces roots; the other policies either write nowhere or
// everywhere.
func (p Policy) WritableRootsWithCwd(cwd string) []WritableRoot {
	if p.mode != ModeWorkspaceWrite {
		return nil
	}

	roots := append([]string(nil), p.writableRoots...)
	if filepath.IsAbs(cwd) {
		roots = append(roots, cwd)
	}
	if runtime.GOOS != "windows" && !p.excludeSlashTmp {
		if info, err := os.Stat("/tmp"); err == nil && info.IsDir() {
			roots = append(roots, "/tmp")
		}
	}
	// TMPDIR is per-user on macOS and opt-in elsewhere; either way writes
	// there should not leak between users.
	if !p.excludeTmpdirEnvVar {
		if tmpdir := os.Getenv("TMPDIR"); tmpdir != "" && filepath.IsAbs(tmpdir) {
			roots = append(roots, tmpdir)
		}
	}

	out := make([]WritableRoot, 0, len(roots))
	for _, root := range roots {
		out = append(out, WritableRoot{Root: root, ReadOnlySubpaths: protectedSubpaths(root)})
	}
	return out
}

func protectedSubpaths(root string) []string {
	var subpaths []string

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	for _, entry := range entries {
		if !isProtectedEntry(entry.Name()) {
			continue
		}
		full := filepath.Join(root, entry.Name())
		// A .git file is a worktree/submodule pointer; protect the real
		// gitdir it names as well.
		if entry.Name() == ".git" && !entry.IsDir() {
			if gitdir, ok := resolveGitdirPointer(full); ok {
				subpaths = append(subpaths, gitdir)
			}
		}
		subpaths = append(subpaths, full)
	}
	return subpaths
}

func resolveGitdirPointer(gitFile string) (string, bool) {
	data, err := os.ReadFile(gitFile)
	if err != nil {
		return "", false
	}
	line := strings.TrimSpace(string(data))
	target, ok := strings.CutPrefix(line, "gitdir:")
	if !ok {
		return "", false
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return "", false
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(gitFile), target)
	}
	return filepath.Clean(target), true
}

// WritableRoots returns the explicitly configured extra writable roots.
func (p Policy) WritableRoots() []string {
	return append([]string(nil), p.writableRoots...)
}
