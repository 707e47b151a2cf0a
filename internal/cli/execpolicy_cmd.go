package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/opencodex/codex/internal/config"
	"github.com/opencodex/codex/internal/execpolicy"
)

func newExecPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execpolicy",
		Short: "Inspect and evaluate exec policy rules",
	}
	cmd.AddCommand(newExecPolicyCheckCmd())
	return cmd
}

func newExecPolicyCheckCmd() *cobra.Command {
	var policyPaths []string
	var pretty bool

	cmd := &cobra.Command{
		Use:   "check [flags] -- COMMAND...",
		Short: "Evaluate a command against the exec policy and print the match as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := loadCheckPolicy(cmd, policyPaths)
			if err != nil {
				return err
			}

			eval := policy.Check(args, nil)
			var out any = eval
			if len(eval.MatchedRules) == 0 {
				out = map[string]string{"decision": "no_match"}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if pretty || term.IsTerminal(int(os.Stdout.Fd())) {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringArrayVarP(&policyPaths, "policy", "p", nil, "Rules file to evaluate against (repeatable; default: $CODEX_HOME/rules)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty-print the JSON output")
	return cmd
}

// loadCheckPolicy combines the named rules files, or falls back to the rules
// directory under codex home when none are named.
func loadCheckPolicy(cmd *cobra.Command, paths []string) (*execpolicy.Policy, error) {
	if len(paths) == 0 {
		home, err := config.CodexHome()
		if err != nil {
			return nil, err
		}
		manager, err := execpolicy.LoadManager(cmd.Context(), home, nil)
		if err != nil {
			return nil, err
		}
		return manager.Current(), nil
	}

	parser := execpolicy.NewParser()
	for _, path := range paths {
		contents, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rules file %s: %w", path, err)
		}
		if err := parser.Parse(path, string(contents)); err != nil {
			return nil, fmt.Errorf("parse rules file %s: %w", path, err)
		}
	}
	return parser.Build(), nil
}
