package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bnema/valuation-session-cli/internal/domain"
)

func newWatchCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream sync messages from sibling contexts until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			unsubscribe := app.bus.Subscribe(func(msg domain.SyncMessage) {
				fmt.Fprintf(out, "%s  %-20s %s version=%s\n",
					msg.SentAt.Format("15:04:05"), msg.Kind, msg.EntityID, msg.Version)
			})
			defer unsubscribe()

			fmt.Fprintln(cmd.ErrOrStderr(), "watching for sync messages, ctrl-c to stop")
			<-ctx.Done()

			return nil
		},
	}
}
