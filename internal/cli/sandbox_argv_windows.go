package cli

import (
	"github.com/opencodex/codex/internal/config"
	"github.com/opencodex/codex/internal/sandbox"
	"github.com/opencodex/codex/internal/sandbox/winsandbox"
)

// sandboxExecArgv applies deny-write ACLs for the policy's read-only
// surface, then runs the command directly. Windows enforcement is
// filesystem-side rather than a wrapper process.
func sandboxExecArgv(policy sandbox.Policy, cwd string, _ *sandboxExecFlags, command []string) ([]string, string, error) {
	home, err := config.EnsureCodexHome()
	if err != nil {
		return nil, "", err
	}
	if err := winsandbox.ApplyPolicyACLs(home, policy, cwd); err != nil {
		return nil, "", err
	}
	return command, "windows-restricted-token", nil
}
