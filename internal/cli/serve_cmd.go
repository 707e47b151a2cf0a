package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/opencodex/codex/internal/approvals"
	"github.com/opencodex/codex/internal/audit"
	"github.com/opencodex/codex/internal/config"
	"github.com/opencodex/codex/internal/escalation"
	"github.com/opencodex/codex/internal/execpolicy"
	"github.com/opencodex/codex/pkg/observability"
)

const wrapperBinaryName = "codex-execve-wrapper"

func newServeCmd() *cobra.Command {
	var socketPath, sessionID, wrapperPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the per-session escalate server",
		Long: "Listens on a session socket for intercepted exec attempts from the " +
			"execve wrapper, evaluates each against the exec policy, and answers " +
			"run, escalate, or deny. Prints the environment a wrapped shell needs " +
			"to reach the server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, home, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if _, err := config.EnsureCodexHome(); err != nil {
				return err
			}

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			if socketPath == "" {
				socketPath = sessionSocketPath(cfg.Session.SocketDir, sessionID)
			}
			if wrapperPath == "" {
				self, err := os.Executable()
				if err != nil {
					return err
				}
				wrapperPath = filepath.Join(filepath.Dir(self), wrapperBinaryName)
			}

			logger := observability.NewAuditLogger(observability.AuditLoggerConfig{
				SessionID: sessionID,
				MinLevel:  observability.LogLevel(cfg.Logging.Level),
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			manager, err := execpolicy.LoadManager(ctx, home, logger)
			if err != nil {
				return err
			}
			go func() {
				if err := manager.Watch(ctx); err != nil && ctx.Err() == nil {
					logger.Warn(ctx, "rules watcher stopped", map[string]any{"error": err.Error()})
				}
			}()

			sandboxPolicy, err := cfg.SandboxPolicy()
			if err != nil {
				return err
			}

			var recorder escalation.Recorder
			if cfg.Audit.Enabled {
				journal, err := audit.Open(home)
				if err != nil {
					return err
				}
				defer journal.Close()
				recorder = journal
			}

			var stopwatch *escalation.Stopwatch
			if limit := cfg.Session.ExecExpiration.Std(); limit > 0 {
				stopwatch = escalation.NewStopwatch(limit)
				defer stopwatch.Stop()
			}

			srv, err := escalation.NewServer(escalation.ServerConfig{
				SocketPath: socketPath,
				SessionID:  sessionID,
				Policy: &approvals.StaticPolicy{
					Manager:        manager,
					ApprovalPolicy: cfg.ApprovalMode(),
					SandboxPolicy:  sandboxPolicy,
				},
				Logger:          logger,
				Recorder:        recorder,
				DecisionTimeout: cfg.Session.DecisionTimeout.Std(),
				Stopwatch:       stopwatch,
			})
			if err != nil {
				return err
			}

			for k, v := range srv.Env(wrapperPath) {
				fmt.Fprintf(cmd.OutOrStdout(), "export %s=%s\n", k, v)
			}
			logger.Info(ctx, "escalate server listening", map[string]any{"socket": socketPath})
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&socketPath, "socket", "", "Session socket path (default: derived from session id under the configured socket dir)")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (default: random)")
	cmd.Flags().StringVar(&wrapperPath, "wrapper", "", "Path to the codex-execve-wrapper binary (default: next to this binary)")
	return cmd
}

func sessionSocketPath(dir, sessionID string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "codex-"+sessionID+".sock")
}
