package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/target/quarantine-scanner/internal/adapters/reaper"
	"github.com/target/quarantine-scanner/internal/bootstrap"
	"github.com/target/quarantine-scanner/internal/core"
	"github.com/target/quarantine-scanner/internal/data"
	"github.com/target/quarantine-scanner/internal/domain/model"
)

func newLedgerCmd(app *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the scan ledger",
	}
	cmd.AddCommand(newLedgerListCmd(app), newLedgerGetCmd(app), newLedgerReapCmd(app))
	return cmd
}

func withLedger(app *appContext, fn func(core.ScanLedger) error) error {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: app.Config.Postgres, Logger: app.Logger})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer closeQuietly(app, "database", db)
	return fn(data.NewScanLedgerRepo(db, data.LedgerRepoConfig{Logger: app.Logger}))
}

func newLedgerListCmd(app *appContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLedger(app, func(ledger core.ScanLedger) error {
				records, err := ledger.ListRecent(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if app.JSON {
					return writeJSON(app.Out, records)
				}
				return printRecords(app.Out, records)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of jobs to list")
	return cmd
}

func newLedgerGetCmd(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(app, func(ledger core.ScanLedger) error {
				rec, err := ledger.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if app.JSON {
					return writeJSON(app.Out, rec)
				}
				return printRecord(app.Out, rec)
			})
		},
	}
}

func newLedgerReapCmd(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Run one reaper sweep with the REAPER_* settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: app.Config.Postgres, Logger: app.Logger})
			if err != nil {
				return fmt.Errorf("connect db: %w", err)
			}
			defer closeQuietly(app, "database", db)

			runner, err := reaper.NewRunner(reaper.RunnerOptions{
				DB:     db,
				Config: app.Config.Reaper,
				Logger: app.Logger,
			})
			if err != nil {
				return err
			}
			if err := runner.Sweep(cmd.Context()); err != nil {
				return err
			}
			return writePlain(app.Out, "reaper sweep complete\n")
		},
	}
}

func printRecords(w io.Writer, records []*model.ScanRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "JOB ID\tSTATE\tSTATUS\tOBJECT\tDESTINATION\tUPDATED"); err != nil {
		return err
	}
	for _, r := range records {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s/%s\t%s\t%s\n",
			r.JobID,
			r.State,
			orDash(r.Classification),
			r.SourceArea, r.ObjectKey,
			orDash(r.DestinationArea),
			r.UpdatedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printRecord(w io.Writer, r *model.ScanRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	exitCode := "-"
	if r.ExitCode != nil {
		exitCode = fmt.Sprint(*r.ExitCode)
	}
	rows := [][2]string{
		{"job id", r.JobID},
		{"object", r.SourceArea + "/" + r.ObjectKey},
		{"state", string(r.State)},
		{"status", orDash(r.Classification)},
		{"reason", orDash(r.Reason)},
		{"exit code", exitCode},
		{"destination", orDash(r.DestinationArea)},
		{"duplicated", fmt.Sprint(r.Duplicated)},
		{"last error", orDash(r.LastError)},
		{"created", r.CreatedAt.UTC().Format(time.RFC3339)},
		{"updated", r.UpdatedAt.UTC().Format(time.RFC3339)},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1]); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func orDash[T ~string](v *T) string {
	if v == nil || *v == "" {
		return "-"
	}
	return string(*v)
}
