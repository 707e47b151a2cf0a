package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencodex/codex/internal/config"
	"github.com/opencodex/codex/internal/sandbox"
	"github.com/opencodex/codex/internal/spawn"
)

func newSandboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Run commands under the platform sandbox",
	}
	cmd.AddCommand(newSandboxExecCmd())
	return cmd
}

type sandboxExecFlags struct {
	policy  string
	cwd     string
	helper  string
	noProc  bool
	timeout time.Duration
}

func newSandboxExecCmd() *cobra.Command {
	flags := &sandboxExecFlags{}

	cmd := &cobra.Command{
		Use:   "exec [flags] -- COMMAND...",
		Short: "Execute one command inside the sandbox and propagate its exit code",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := sandbox.ParsePolicy(flags.policy)
			if err != nil {
				return err
			}
			cwd := flags.cwd
			if cwd == "" {
				if cwd, err = os.Getwd(); err != nil {
					return err
				}
			}

			argv, mechanism, err := sandboxExecArgv(policy, cwd, flags, args)
			if err != nil {
				return err
			}

			var slog *sandbox.Logger
			if home, err := config.EnsureCodexHome(); err == nil {
				// The sandbox log is best-effort; never block an exec on it.
				slog, _ = sandbox.OpenLogger(home)
				defer slog.Close()
			}

			env := environMap()
			sandbox.ApplyEnvMarkers(env, policy, mechanism)

			slog.Start(mechanism, args)
			started := time.Now()
			handle, err := spawn.Start(cmd.Context(), spawn.CommandSpec{
				Program:    argv[0],
				Args:       argv[1:],
				Cwd:        cwd,
				Env:        env,
				Expiration: flags.timeout,
			}, spawn.Stdio{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr})
			if err != nil {
				slog.Failure(mechanism, args, err)
				return err
			}
			result, err := handle.Wait(cmd.Context())
			if err != nil {
				_ = handle.Close()
				slog.Failure(mechanism, args, err)
				return err
			}
			slog.Success(mechanism, args, time.Since(started))
			if result.ExitCode != 0 {
				return NewExitError(result.ExitCode, "")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.policy, "policy", "read-only", "Sandbox policy: read-only or workspace-write")
	cmd.Flags().StringVar(&flags.cwd, "cwd", "", "Working directory the policy is resolved against (default: current directory)")
	cmd.Flags().StringVar(&flags.helper, "helper", "", "Path to the codex-linux-sandbox helper binary (Linux only)")
	cmd.Flags().BoolVar(&flags.noProc, "no-proc", false, "Skip mounting a fresh /proc inside the sandbox (Linux only)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "Kill the command's process group after this long (0 means no limit)")
	return cmd
}

func environMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// errSandboxUnsupported reports a platform with no enforcement backend.
func errSandboxUnsupported(goos string) error {
	return fmt.Errorf("sandbox exec is not supported on %s", goos)
}
