//go:build !linux && !darwin && !windows

package cli

import (
	"runtime"

	"github.com/opencodex/codex/internal/sandbox"
)

func sandboxExecArgv(sandbox.Policy, string, *sandboxExecFlags, []string) ([]string, string, error) {
	return nil, "", errSandboxUnsupported(runtime.GOOS)
}
