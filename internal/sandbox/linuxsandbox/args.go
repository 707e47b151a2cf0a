package linuxsandbox

import (
	"encoding/json"
	"fmt"

	"github.com/opencodex/codex/internal/sandbox"
)

// HelperOptions configure the invocation of the codex-linux-sandbox helper
// binary.
type HelperOptions struct {
	// UseBwrap selects the bubblewrap pipeline; without it the helper
	// applies landlock + seccomp in-process before exec.
	UseBwrap bool
	// NoProc skips mounting a fresh /proc (for restrictive containers).
	NoProc bool
}

// HelperCommandArgs builds the argv for the codex-linux-sandbox helper:
//
//	<helper> --sandbox-policy-cwd <cwd> --sandbox-policy <json> \
//	    [--use-bwrap-sandbox] [--no-proc] -- <command...>
//
// The policy is serialized to JSON so the helper re-parses it through the
// same rejecting parser the caller used.
func HelperCommandArgs(helperPath string, policy sandbox.Policy, cwd string, opts HelperOptions, command []string) ([]string, error) {
	if helperPath == "" {
		return nil, fmt.Errorf("linuxsandbox: missing codex-linux-sandbox executable path")
	}
	if len(command) == 0 {
		return nil, fmt.Errorf("linuxsandbox: no command specified")
	}
	policyJSON, err := json.Marshal(policy)
	if err != nil {
		return nil, fmt.Errorf("linuxsandbox: encode policy: %w", err)
	}
	args := []string{
		helperPath,
		"--sandbox-policy-cwd", cwd,
		"--sandbox-policy", string(policyJSON),
	}
	if opts.UseBwrap {
		args = append(args, "--use-bwrap-sandbox")
	}
	if opts.NoProc {
		args = append(args, "--no-proc")
	}
	args = append(args, "--")
	return append(args, command...), nil
}
