package cli

import (
	"github.com/opencodex/codex/internal/sandbox"
	"github.com/opencodex/codex/internal/sandbox/seatbelt"
)

// sandboxExecArgv wraps the command in sandbox-exec with a generated
// Seatbelt profile.
func sandboxExecArgv(policy sandbox.Policy, cwd string, _ *sandboxExecFlags, command []string) ([]string, string, error) {
	argv := append([]string{seatbelt.ExecutablePath}, seatbelt.CommandArgs(command, policy, cwd)...)
	return argv, "seatbelt", nil
}
