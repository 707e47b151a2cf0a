package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencodex/codex/internal/applypatch"
)

func newApplyPatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply-patch [FILE]",
		Short: "Apply a *** Begin Patch document to the working directory",
		Long: "Reads a patch from FILE (or stdin when FILE is omitted or '-') and " +
			"applies its add/update/delete hunks relative to the current directory.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch []byte
			var err error
			if len(args) == 0 || args[0] == "-" {
				patch, err = io.ReadAll(cmd.InOrStdin())
			} else {
				patch, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			report, err := applypatch.Apply(string(patch), cwd)
			if err != nil {
				return NewExitError(1, err.Error())
			}
			return report.WriteSummary(cmd.OutOrStdout())
		},
	}
	return cmd
}
