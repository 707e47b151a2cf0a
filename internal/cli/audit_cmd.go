package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencodex/codex/internal/audit"
	"github.com/opencodex/codex/internal/config"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the escalation decision journal",
	}
	cmd.AddCommand(newAuditDecisionsCmd())
	return cmd
}

func newAuditDecisionsCmd() *cobra.Command {
	var (
		sessionID string
		action    string
		since     string
		limit     int
		asc       bool
	)

	cmd := &cobra.Command{
		Use:   "decisions",
		Short: "List recorded escalation decisions as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := config.CodexHome()
			if err != nil {
				return err
			}
			journal, err := audit.Open(home)
			if err != nil {
				return err
			}
			defer journal.Close()

			q := audit.Query{SessionID: sessionID, Action: action, Limit: limit, Asc: asc}
			if since != "" {
				t, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("parse --since: %w", err)
				}
				q.Since = &t
			}

			records, err := journal.Decisions(cmd.Context(), q)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Filter by session id")
	cmd.Flags().StringVar(&action, "action", "", "Filter by action (run, escalate, deny)")
	cmd.Flags().StringVar(&since, "since", "", "Only decisions at or after this RFC 3339 timestamp")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum records to return (default 200)")
	cmd.Flags().BoolVar(&asc, "asc", false, "Oldest first instead of newest first")
	return cmd
}
