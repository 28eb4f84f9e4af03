package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAuthCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the engine API token",
	}

	cmd.AddCommand(
		newAuthSetCmd(app),
		newAuthClearCmd(app),
	)

	return cmd
}

func newAuthSetCmd(app *app) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the engine API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key := tokenSecretKey(app.cfg.EngineAccount)
			if err := app.secrets.Put(cmd.Context(), key, token); err != nil {
				return fmt.Errorf("store engine token: %w", err)
			}
			app.auth.InvalidateAccount(app.cfg.EngineAccount)

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "token stored for account %q\n", app.cfg.EngineAccount)
			return err
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "API token value")
	_ = cmd.MarkFlagRequired("token")

	return cmd
}

func newAuthClearCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored engine API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key := tokenSecretKey(app.cfg.EngineAccount)
			if err := app.secrets.Delete(cmd.Context(), key); err != nil {
				return fmt.Errorf("remove engine token: %w", err)
			}
			app.auth.InvalidateAccount(app.cfg.EngineAccount)

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "token cleared for account %q\n", app.cfg.EngineAccount)
			return err
		},
	}
}
