//go:build linux

package linuxsandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/opencodex/codex/internal/sandbox"
	"golang.org/x/sys/unix"
)

// RunOptions is the parsed CLI surface of the codex-linux-sandbox helper.
type RunOptions struct {
	// PolicyCwd is the cwd the sandbox policy is evaluated against, which
	// may differ from the cwd of the process to spawn.
	PolicyCwd string
	// PolicyJSON is the JSON (or preset-name) encoding of the policy.
	PolicyJSON string
	// UseBwrap selects the bubblewrap pipeline.
	UseBwrap bool
	// ApplySeccompThenExec is the internal inner stage: bubblewrap has
	// already established the filesystem view, so only tighten with seccomp
	// and exec. Requires UseBwrap.
	ApplySeccompThenExec bool
	// NoProc skips mounting a fresh /proc.
	NoProc bool
	// Command is the full command to run under the sandbox.
	Command []string
}

// Run enforces the sandbox and execs the command. It returns only on error;
// on success the process image is replaced.
func Run(opts RunOptions) error {
	if len(opts.Command) == 0 {
		return fmt.Errorf("linuxsandbox: no command specified to execute")
	}
	if opts.ApplySeccompThenExec && !opts.UseBwrap {
		return fmt.Errorf("linuxsandbox: --apply-seccomp-then-exec requires --use-bwrap-sandbox")
	}

	policy, err := sandbox.ParsePolicy(opts.PolicyJSON)
	if err != nil {
		return err
	}

	// Inner stage: the filesystem view already exists, tighten and exec.
	if opts.ApplySeccompThenExec {
		if err := ApplySandboxPolicy(policy, opts.PolicyCwd, false); err != nil {
			return err
		}
		return execCommand(opts.Command)
	}

	if opts.UseBwrap {
		return runBwrapStage(policy, opts)
	}

	// Legacy pipeline: landlock + seccomp in-process, then exec.
	if err := ApplySandboxPolicy(policy, opts.PolicyCwd, true); err != nil {
		return err
	}
	return execCommand(opts.Command)
}

// runBwrapStage wraps a re-invocation of this binary (inner stage) with
// bubblewrap, so seccomp is applied only after bwrap (which may rely on
// setuid) has built the filesystem view.
func runBwrapStage(policy sandbox.Policy, opts RunOptions) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("linuxsandbox: resolve own executable: %w", err)
	}
	policyJSON, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("linuxsandbox: encode policy: %w", err)
	}

	inner := []string{
		self,
		"--sandbox-policy-cwd", opts.PolicyCwd,
		"--sandbox-policy", string(policyJSON),
		"--use-bwrap-sandbox",
		"--apply-seccomp-then-exec",
	}
	if opts.NoProc {
		inner = append(inner, "--no-proc")
	}
	inner = append(inner, "--")
	inner = append(inner, opts.Command...)

	bwrapOpts := BwrapOptions{MountProc: !opts.NoProc}
	if !policy.HasFullNetworkAccess() {
		bwrapOpts.Network = NetworkIsolated
	}
	flags, err := CreateBwrapCommandArgs(inner, policy, opts.PolicyCwd, bwrapOpts)
	if err != nil {
		return err
	}

	bwrap, err := exec.LookPath("bwrap")
	if err != nil {
		return fmt.Errorf("linuxsandbox: bwrap not found in PATH: %w", err)
	}
	return execCommand(append([]string{bwrap}, flags...))
}

func execCommand(command []string) error {
	path, err := exec.LookPath(command[0])
	if err != nil {
		return fmt.Errorf("linuxsandbox: %s: %w", command[0], err)
	}
	if err := unix.Exec(path, command, os.Environ()); err != nil {
		return fmt.Errorf("linuxsandbox: exec %s: %w", command[0], err)
	}
	return nil
}
