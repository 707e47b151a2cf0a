package cli

import (
	"os"
	"path/filepath"

	"github.com/opencodex/codex/internal/sandbox"
	"github.com/opencodex/codex/internal/sandbox/linuxsandbox"
)

const linuxHelperName = "codex-linux-sandbox"

// sandboxExecArgv wraps the command in an invocation of the
// codex-linux-sandbox helper. The helper re-parses the policy JSON and
// applies landlock + seccomp (or bubblewrap) before exec.
func sandboxExecArgv(policy sandbox.Policy, cwd string, flags *sandboxExecFlags, command []string) ([]string, string, error) {
	helper := flags.helper
	if helper == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, "", err
		}
		helper = filepath.Join(filepath.Dir(self), linuxHelperName)
	}
	argv, err := linuxsandbox.HelperCommandArgs(helper, policy, cwd, linuxsandbox.HelperOptions{
		UseBwrap: true,
		NoProc:   flags.noProc,
	}, command)
	if err != nil {
		return nil, "", err
	}
	return argv, "linux-sandbox", nil
}
