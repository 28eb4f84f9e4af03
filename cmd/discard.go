package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/valuation-session-cli/internal/domain"
)

func newDiscardCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <entity-id>",
		Short: "Drop a cached session and tell sibling contexts to do the same",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.EntityID(args[0])
			if err := app.sessions.Invalidate(cmd.Context(), id); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "discarded %s\n", id)
			return err
		},
	}
}
