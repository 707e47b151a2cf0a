//go:build windows

package winsandbox

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/opencodex/codex/internal/sandbox"
)

// Subdirectories under a writable workspace whose modification could
// escalate the agent's privileges; they get deny-write ACEs even though the
// surrounding workspace is writable.
var protectedWorkspaceDirs = []string{".codex", ".agents", filepath.Join(".git", "hooks")}

// ApplyPolicyACLs stamps deny-write ACEs for the active capability SID onto
// the protected subdirectories of the workspace, creating the capability
// SIDs on first use. The whole setup runs under the session-scoped mutex so
// concurrent sandboxed processes do not race on shared ACLs.
func ApplyPolicyACLs(codexHome string, policy sandbox.Policy, cwd string) error {
	if policy.IsDangerFullAccess() || policy.IsExternalSandbox() {
		return fmt.Errorf("winsandbox: policy %s cannot be enforced by the sandbox", policy.Mode())
	}

	caps, err := LoadOrCreateCapSids(codexHome)
	if err != nil {
		return err
	}
	activeSid := caps.Workspace
	if policy.IsReadOnly() {
		activeSid = caps.Readonly
	}

	return WithReadACLMutex(func() error {
		for _, root := range writableRootPaths(policy, cwd) {
			for _, sub := range protectedWorkspaceDirs {
				target := filepath.Join(root, sub)
				if _, err := os.Stat(target); err != nil {
					continue
				}
				if err := AddDenyWriteACE(target, activeSid); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func writableRootPaths(policy sandbox.Policy, cwd string) []string {
	roots := policy.WritableRootsWithCwd(cwd)
	if len(roots) == 0 && filepath.IsAbs(cwd) {
		// Read-only sessions still protect the working directory's
		// sensitive subpaths.
		return []string{cwd}
	}
	paths := make([]string, 0, len(roots))
	for _, root := range roots {
		paths = append(paths, root.Root)
	}
	return paths
}
