package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/valuation-session-cli/internal/domain"
)

func newShowCmd(app *app) *cobra.Command {
	var asJSON bool
	var report bool

	cmd := &cobra.Command{
		Use:   "show <entity-id>",
		Short: "Show the cached session without touching the engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.EntityID(args[0])
			result, err := app.sessions.Read(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("no usable cached session for %q: %w", id, err)
			}

			if report {
				if result.Snapshot.Payload.ReportHTML == "" {
					return fmt.Errorf("session %q has no report yet", id)
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), result.Snapshot.Payload.ReportHTML)
				return err
			}

			return writeSnapshot(cmd, result.Snapshot, true, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	cmd.Flags().BoolVar(&report, "report", false, "Print the stored report HTML")

	return cmd
}
