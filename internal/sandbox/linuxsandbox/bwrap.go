// Package linuxsandbox builds and applies the Linux enforcement pipeline:
// a bubblewrap filesystem view, then in-process no_new_privs + seccomp
// network filtering, then exec. The filesystem is read-only by default with
// explicit writable roots layered on top; protected subpaths such as .git
// and .codex stay read-only even under a writable root.
package linuxsandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opencodex/codex/internal/sandbox"
)

// NetworkMode controls networking inside the bubblewrap sandbox.
type NetworkMode int

const (
	// NetworkFullAccess keeps the host network namespace.
	NetworkFullAccess NetworkMode = iota
	// NetworkIsolated unshares the network namespace.
	NetworkIsolated
)

// BwrapOptions control how bubblewrap is invoked.
type BwrapOptions struct {
	// MountProc mounts a fresh /proc inside the PID namespace. Secure
	// default, but some container environments deny --proc /proc.
	MountProc bool
	Network   NetworkMode
}

// DefaultBwrapOptions returns the secure defaults.
func DefaultBwrapOptions() BwrapOptions {
	return BwrapOptions{MountProc: true, Network: NetworkFullAccess}
}

// CreateBwrapCommandArgs wraps command with bubblewrap flags (everything
// after argv[0] of bwrap itself) for the given policy. When the policy
// grants full disk write and the network is unrestricted the command is
// returned unchanged to avoid pointless sandboxing overhead.
func CreateBwrapCommandArgs(command []string, policy sandbox.Policy, cwd string, options BwrapOptions) ([]string, error) {
	if policy.HasFullDiskWriteAccess() {
		if options.Network == NetworkFullAccess {
			return command, nil
		}
		return fullFilesystemFlags(command, options), nil
	}

	args := []string{"--new-session", "--die-with-parent"}
	fsArgs, err := filesystemArgs(policy, cwd)
	if err != nil {
		return nil, err
	}
	args = append(args, fsArgs...)
	args = append(args, "--unshare-pid")
	if options.Network == NetworkIsolated {
		args = append(args, "--unshare-net")
	}
	if options.MountProc {
		args = append(args, "--proc", "/proc")
	}
	args = append(args, "--")
	return append(args, command...), nil
}

func fullFilesystemFlags(command []string, options BwrapOptions) []string {
	args := []string{
		"--new-session", "--die-with-parent",
		"--bind", "/", "/",
		"--unshare-pid",
	}
	if options.Network == NetworkIsolated {
		args = append(args, "--unshare-net")
	}
	if options.MountProc {
		args = append(args, "--proc", "/proc")
	}
	args = append(args, "--")
	return append(args, command...)
}

// filesystemArgs builds the bubblewrap mounts. Order matters:
//  1. --ro-bind / / makes the whole filesystem read-only.
//  2. --bind <root> <root> re-enables writes for allowed roots.
//  3. --ro-bind <subpath> <subpath> re-applies read-only protections under
//     those roots so protected subpaths win.
//  4. --dev-bind /dev/null /dev/null keeps the common sink usable.
func filesystemArgs(policy sandbox.Policy, cwd string) ([]string, error) {
	writableRoots := policy.WritableRootsWithCwd(cwd)
	for _, root := range writableRoots {
		if _, err := os.Stat(root.Root); err != nil {
			// bwrap requires bind targets to exist; fail fast with a clear
			// message instead of an opaque mount error.
			return nil, fmt.Errorf("linuxsandbox: writable root %s does not exist", root.Root)
		}
	}

	args := []string{"--ro-bind", "/", "/"}

	allowedWritePaths := make([]string, 0, len(writableRoots))
	for _, root := range writableRoots {
		args = append(args, "--bind", root.Root, root.Root)
		allowedWritePaths = append(allowedWritePaths, root.Root)
	}

	for _, subpath := range collectReadOnlySubpaths(writableRoots) {
		// A protected path that is itself a symlink inside a writable root
		// could be rewired; mount /dev/null on the symlink to pin it.
		if link, ok := findSymlinkInPath(subpath, allowedWritePaths); ok {
			args = append(args, "--ro-bind", "/dev/null", link)
			continue
		}
		if _, err := os.Lstat(subpath); err != nil {
			// Mounting /dev/null on the first missing component stops the
			// sandboxed process from creating the protected hierarchy.
			if missing, ok := firstNonExistentComponent(subpath); ok && withinWritePaths(missing, allowedWritePaths) {
				args = append(args, "--ro-bind", "/dev/null", missing)
			}
			continue
		}
		if withinWritePaths(subpath, allowedWritePaths) {
			args = append(args, "--ro-bind", subpath, subpath)
		}
	}

	args = append(args, "--dev-bind", "/dev/null", "/dev/null")
	return args, nil
}

func collectReadOnlySubpaths(roots []sandbox.WritableRoot) []string {
	seen := make(map[string]struct{})
	var subpaths []string
	for _, root := range roots {
		for _, sub := range root.ReadOnlySubpaths {
			if _, dup := seen[sub]; dup {
				continue
			}
			seen[sub] = struct{}{}
			subpaths = append(subpaths, sub)
		}
	}
	sort.Strings(subpaths)
	return subpaths
}

func withinWritePaths(path string, allowedWritePaths []string) bool {
	for _, root := range allowedWritePaths {
		if path == root || strings.HasPrefix(path, root+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

func findSymlinkInPath(target string, allowedWritePaths []string) (string, bool) {
	current := string(os.PathSeparator)
	for _, part := range strings.Split(filepath.Clean(target), string(os.PathSeparator)) {
		if part == "" {
			continue
		}
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if err != nil {
			break
		}
		if info.Mode()&os.ModeSymlink != 0 && withinWritePaths(current, allowedWritePaths) {
			return current, true
		}
	}
	return "", false
}

func firstNonExistentComponent(target string) (string, bool) {
	current := string(os.PathSeparator)
	for _, part := range strings.Split(filepath.Clean(target), string(os.PathSeparator)) {
		if part == "" {
			continue
		}
		current = filepath.Join(current, part)
		if _, err := os.Lstat(current); err != nil {
			return current, true
		}
	}
	return "", false
}
