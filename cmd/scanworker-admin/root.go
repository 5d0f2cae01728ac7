package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/target/quarantine-scanner/config"
)

type appContext struct {
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
	JSON   bool
}

func newRootCmd(app *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "scanworker-admin",
		Short:         "Operational commands for the quarantine scan worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&app.JSON, "json", false, "output JSON")
	cmd.SetOut(app.Out)

	cmd.AddCommand(
		newRunFixtureCmd(app),
		newEnqueueCmd(app),
		newMigrateCmd(app),
		newLedgerCmd(app),
	)
	return cmd
}
