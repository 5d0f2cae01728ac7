package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/target/quarantine-scanner/internal/bootstrap"
	"github.com/target/quarantine-scanner/internal/domain/event"
)

func newEnqueueCmd(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <batch.json>",
		Short: "Push the records of a batch file onto the configured transport",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := event.LoadBatchFile(args[0])
			if err != nil {
				return err
			}
			if len(batch.Records) == 0 {
				return fmt.Errorf("%s contains no records", args[0])
			}

			cfg := app.Config
			brokers, err := bootstrap.ConnectBrokersFor(&cfg, app.Logger, string(cfg.Transport.Kind))
			if err != nil {
				return fmt.Errorf("connect brokers: %w", err)
			}
			defer closeQuietly(app, "broker connections", brokers)

			sink, err := bootstrap.NewBatchSink(&cfg, brokers)
			if err != nil {
				return fmt.Errorf("create batch sink: %w", err)
			}
			n, err := sink.Enqueue(cmd.Context(), batch)
			if err != nil {
				return fmt.Errorf("enqueue after %d record(s): %w", n, err)
			}

			if app.JSON {
				return writeJSON(app.Out, map[string]any{
					"transport": cfg.Transport.Kind,
					"queue":     cfg.Transport.Queue,
					"enqueued":  n,
				})
			}
			return writePlain(app.Out, "enqueued %d record(s) on %s %s\n", n, cfg.Transport.Kind, cfg.Transport.Queue)
		},
	}
}
