//go:build linux

package linuxsandbox

import (
	"fmt"

	"github.com/opencodex/codex/internal/sandbox"
	"golang.org/x/sys/unix"
)

// ApplySandboxPolicy applies in-process restrictions for the given policy:
// the network seccomp filter when the policy denies full network access,
// and, on the legacy pipeline, landlock filesystem rules. Meant to be called
// immediately before exec in the helper binary; the restrictions are
// irreversible for the process.
func ApplySandboxPolicy(policy sandbox.Policy, cwd string, applyLandlockFS bool) error {
	restrictNetwork := !policy.HasFullNetworkAccess()
	restrictFS := applyLandlockFS && !policy.HasFullDiskWriteAccess()

	// no_new_privs is required for seccomp but also breaks setuid bwrap
	// deployments, so only set it when a restriction actually needs it.
	if restrictNetwork || restrictFS {
		if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
			return fmt.Errorf("linuxsandbox: prctl(PR_SET_NO_NEW_PRIVS): %w", err)
		}
	}

	if restrictNetwork {
		if err := installNetworkSeccompFilter(); err != nil {
			return err
		}
	}

	if restrictFS {
		roots := policy.WritableRootsWithCwd(cwd)
		paths := make([]string, 0, len(roots))
		for _, root := range roots {
			paths = append(paths, root.Root)
		}
		if err := installFilesystemLandlockRules(paths); err != nil {
			return fmt.Errorf("linuxsandbox: landlock: %w", err)
		}
	}

	return nil
}
