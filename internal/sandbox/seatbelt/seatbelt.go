// Package seatbelt generates the macOS sandbox-exec (Seatbelt) profile for a
// sandbox policy. Profile text is assembled per invocation: the base policy,
// an optional network section, and file-write rules parameterized with -D
// definitions so paths never need escaping inside the profile itself.
package seatbelt

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/opencodex/codex/internal/sandbox"
)

// ExecutablePath is the only sandbox-exec considered. A PATH lookup could be
// shadowed by an attacker-controlled binary; if /usr/bin/sandbox-exec itself
// has been tampered with, the attacker already has root.
const ExecutablePath = "/usr/bin/sandbox-exec"

const basePolicy = `(version 1)

; deny everything unless explicitly allowed
(deny default)

; child processes inherit the policy of their parent
(allow process-fork)
(allow process-exec)
(allow process-info* (target self))

; allow read-only file operations
(allow file-read*)

(allow signal (target same-sandbox))

(allow mach-lookup)
(allow sysctl-read)
(allow iokit-open-user-client)

; always allow the common write sinks
(allow file-write-data
  (literal "/dev/null")
  (literal "/dev/zero")
  (regex #"^/dev/tty.*"))

; allow anonymous shared memory and semaphores
(allow ipc-posix-shm)
(allow ipc-posix-sem)`

const networkPolicy = `; allow full outbound and inbound network access
(allow network-outbound)
(allow network-inbound)
(allow system-socket)`

// CommandArgs builds the argv tail for sandbox-exec:
//
//	-p <profile> -DWRITABLE_ROOT_0=<path> ... -- <command...>
//
// policyCwd is the directory the policy's writable roots are derived
// against, which may differ from the spawned process's cwd.
func CommandArgs(command []string, policy sandbox.Policy, policyCwd string) []string {
	profile, params := profileForPolicy(policy, policyCwd)

	args := []string{"-p", profile}
	for _, p := range params {
		args = append(args, fmt.Sprintf("-D%s=%s", p.key, p.value))
	}
	args = append(args, "--")
	return append(args, command...)
}

type dirParam struct {
	key   string
	value string
}

func profileForPolicy(policy sandbox.Policy, policyCwd string) (string, []dirParam) {
	sections := []string{basePolicy}
	if policy.HasFullNetworkAccess() {
		sections = append(sections, networkPolicy)
	}

	var params []dirParam
	if policy.HasFullDiskWriteAccess() {
		sections = append(sections, `(allow file-write* (regex #"^/"))`)
	} else if writePolicy, writeParams := fileWritePolicy(policy, policyCwd); writePolicy != "" {
		sections = append(sections, writePolicy)
		params = writeParams
	}

	return strings.Join(sections, "\n"), params
}

// fileWritePolicy emits one clause per writable root; roots with protected
// read-only subpaths get require-not guards so the subpaths stay read-only.
func fileWritePolicy(policy sandbox.Policy, policyCwd string) (string, []dirParam) {
	roots := policy.WritableRootsWithCwd(policyCwd)
	if len(roots) == 0 {
		return "", nil
	}

	var clauses []string
	var params []dirParam
	for i, root := range roots {
		rootParam := fmt.Sprintf("WRITABLE_ROOT_%d", i)
		params = append(params, dirParam{rootParam, canonicalize(root.Root)})

		if len(root.ReadOnlySubpaths) == 0 {
			clauses = append(clauses, fmt.Sprintf("(subpath (param %q))", rootParam))
			continue
		}
		parts := []string{fmt.Sprintf("(subpath (param %q))", rootParam)}
		for j, ro := range root.ReadOnlySubpaths {
			roParam := fmt.Sprintf("WRITABLE_ROOT_%d_RO_%d", i, j)
			params = append(params, dirParam{roParam, canonicalize(ro)})
			parts = append(parts, fmt.Sprintf("(require-not (subpath (param %q)))", roParam))
		}
		clauses = append(clauses, fmt.Sprintf("(require-all %s )", strings.Join(parts, " ")))
	}

	return fmt.Sprintf("(allow file-write*\n%s\n)", strings.Join(clauses, " ")), params
}

// canonicalize resolves symlinks to avoid mismatches like /var vs
// /private/var on macOS; on failure the original path is used.
func canonicalize(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path
	}
	return resolved
}
