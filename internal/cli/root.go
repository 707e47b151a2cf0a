package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opencodex/codex/internal/config"
)

func NewRoot(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "codex",
		Short:         "codex: sandboxed command execution for coding agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.SetVersionTemplate("codex {{.Version}}\n")

	cmd.PersistentFlags().String("config", "", "Path to config.yaml (default: $CODEX_HOME/config.yaml)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newExecPolicyCmd())
	cmd.AddCommand(newApplyPatchCmd())
	cmd.AddCommand(newSandboxCmd())
	cmd.AddCommand(newAuditCmd())

	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	home, err := config.CodexHome()
	if err != nil {
		return nil, "", err
	}
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = filepath.Join(home, config.ConfigFileName)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, home, nil
}
