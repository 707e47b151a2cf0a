// codex-linux-sandbox confines one command with landlock + seccomp, or with
// bubblewrap when --use-bwrap-sandbox is passed, then execs it. It is spawned
// by the codex CLI and is not meant to be invoked by hand.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var (
		policyCwd            string
		policyJSON           string
		useBwrap             bool
		applySeccompThenExec bool
		noProc               bool
	)

	cmd := &cobra.Command{
		Use:           "codex-linux-sandbox [flags] -- COMMAND...",
		Short:         "Linux sandbox helper for codex",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(runConfig{
				policyCwd:            policyCwd,
				policyJSON:           policyJSON,
				useBwrap:             useBwrap,
				applySeccompThenExec: applySeccompThenExec,
				noProc:               noProc,
				command:              args,
			})
		},
	}

	cmd.Flags().StringVar(&policyCwd, "sandbox-policy-cwd", "", "Directory the sandbox policy is resolved against")
	cmd.Flags().StringVar(&policyJSON, "sandbox-policy", "", "Sandbox policy as JSON or a preset name")
	cmd.Flags().BoolVar(&useBwrap, "use-bwrap-sandbox", false, "Use bubblewrap for filesystem and network isolation")
	cmd.Flags().BoolVar(&applySeccompThenExec, "apply-seccomp-then-exec", false, "Internal: apply seccomp inside an established bwrap view, then exec")
	cmd.Flags().BoolVar(&noProc, "no-proc", false, "Skip mounting a fresh /proc")
	_ = cmd.MarkFlagRequired("sandbox-policy-cwd")
	_ = cmd.MarkFlagRequired("sandbox-policy")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

type runConfig struct {
	policyCwd            string
	policyJSON           string
	useBwrap             bool
	applySeccompThenExec bool
	noProc               bool
	command              []string
}
