package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/valuation-session-cli/internal/domain"
)

func newAnswerCmd(app *app) *cobra.Command {
	var companyID string

	cmd := &cobra.Command{
		Use:   "answer <entity-id> <field> <value>",
		Short: "Record a form answer in the session cache",
		Long:  "Records one form answer locally. Any previously computed valuation for the session is cleared until the next fetch.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.EntityID(args[0])
			snapshot, err := app.sessions.RecordAnswer(cmd.Context(), id, companyID, args[1], args[2])
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d answers recorded\n", id, len(snapshot.Payload.Answers))
			return err
		},
	}

	cmd.Flags().StringVar(&companyID, "company", "", "Company the session belongs to")

	return cmd
}
