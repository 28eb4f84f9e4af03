package cmd

import "github.com/spf13/cobra"

func Execute() error {
	root, cleanup := newRootCmd()
	defer cleanup()

	return root.Execute()
}

func newRootCmd() (*cobra.Command, func()) {
	rootCmd := &cobra.Command{
		Use:           "vs",
		Short:         "Valuation session CLI (vs): cached business valuations from the terminal",
		Long:          "vs keeps a local cache of valuation sessions, replays saved form answers through the valuation engine, and keeps sibling contexts in sync.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(),
	)

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd, func() {}
	}

	rootCmd.AddCommand(
		newFetchCmd(app),
		newShowCmd(app),
		newAnswerCmd(app),
		newDiscardCmd(app),
		newStatusCmd(app),
		newWatchCmd(app),
		newAuthCmd(app),
	)

	return rootCmd, app.close
}
