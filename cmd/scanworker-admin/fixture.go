package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/target/quarantine-scanner/config"
	"github.com/target/quarantine-scanner/internal/bootstrap"
	"github.com/target/quarantine-scanner/internal/domain/event"
	"github.com/target/quarantine-scanner/internal/domain/model"
	"github.com/target/quarantine-scanner/internal/service"
)

func newRunFixtureCmd(app *appContext) *cobra.Command {
	var logOnly bool

	cmd := &cobra.Command{
		Use:   "run-fixture <batch.json>",
		Short: "Dispatch a batch file once through the scan pipeline",
		Long: "Loads a batch document ({\"Records\": [{\"body\": ...}]}) from disk, scans and\n" +
			"routes every object it names, then prints the batch report.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.Config
			if logOnly {
				cfg.Notify.Backend = config.NotifyBackendLog
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			batch, err := event.LoadBatchFile(args[0])
			if err != nil {
				return err
			}
			app.Logger.DebugContext(cmd.Context(), "fixture batch loaded", "records", len(batch.Records))

			report, err := dispatchFixture(cmd.Context(), app, &cfg, batch)
			if err != nil {
				return err
			}
			if err := printReport(app.Out, report, app.JSON); err != nil {
				return err
			}
			if failErr := report.Err(); failErr != nil {
				return fmt.Errorf("%d record(s) failed: %w", len(report.Failures), failErr)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&logOnly, "log-only", false, "log outcome notifications instead of publishing them")
	return cmd
}

func dispatchFixture(ctx context.Context, app *appContext, cfg *config.AppConfig, batch event.Batch) (service.BatchReport, error) {
	brokers, err := bootstrap.ConnectBrokersFor(cfg, app.Logger, string(cfg.Notify.Backend))
	if err != nil {
		return service.BatchReport{}, fmt.Errorf("connect brokers: %w", err)
	}
	defer closeQuietly(app, "broker connections", brokers)

	var db *sql.DB
	if cfg.Ledger.Enabled {
		db, err = bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, Logger: app.Logger})
		if err != nil {
			return service.BatchReport{}, fmt.Errorf("connect db: %w", err)
		}
		defer closeQuietly(app, "database", db)
	}

	publisher, err := bootstrap.NewPublisher(cfg, brokers, app.Logger)
	if err != nil {
		return service.BatchReport{}, fmt.Errorf("create publisher: %w", err)
	}
	pipeline, err := bootstrap.BuildPipeline(bootstrap.PipelineDeps{
		Config:        cfg,
		Publisher:     publisher,
		DB:            db,
		Logger:        app.Logger,
		Observability: bootstrap.BuildObservability(app.Logger, cfg.Observability),
	})
	if err != nil {
		return service.BatchReport{}, err
	}

	report, err := pipeline.Dispatcher.Dispatch(ctx, batch)
	if err != nil && !errors.Is(err, context.Canceled) {
		return report, err
	}
	return report, nil
}

type failureView struct {
	Record    int    `json:"record"`
	MessageID string `json:"message_id,omitempty"`
	Retryable bool   `json:"retryable"`
	Error     string `json:"error"`
}

type reportView struct {
	Records  int             `json:"records"`
	Jobs     int             `json:"jobs"`
	Outcomes []model.Outcome `json:"outcomes"`
	Failures []failureView   `json:"failures"`
}

func outcomeStatus(o model.Outcome) string {
	if o.Skipped {
		return "noop"
	}
	return string(o.Classification)
}

func printReport(w io.Writer, report service.BatchReport, asJSON bool) error {
	view := reportView{
		Records:  report.Records,
		Jobs:     report.Jobs,
		Outcomes: report.Outcomes,
		Failures: make([]failureView, 0, len(report.Failures)),
	}
	if view.Outcomes == nil {
		view.Outcomes = []model.Outcome{}
	}
	for _, f := range report.Failures {
		view.Failures = append(view.Failures, failureView{
			Record:    f.Index,
			MessageID: f.Record.MessageID,
			Retryable: f.Retryable,
			Error:     f.Err.Error(),
		})
	}
	if asJSON {
		return writeJSON(w, view)
	}

	if err := writePlain(w, "records: %d  jobs: %d  routed: %d  failed records: %d\n",
		view.Records, view.Jobs, len(view.Outcomes), len(view.Failures)); err != nil {
		return err
	}
	for _, o := range view.Outcomes {
		if err := writePlain(w, "  %-6s %s/%s -> %s\n", outcomeStatus(o), o.SourceArea, o.Key, o.DestinationArea); err != nil {
			return err
		}
	}
	for _, f := range view.Failures {
		if err := writePlain(w, "  record %d: %s\n", f.Record, f.Error); err != nil {
			return err
		}
	}
	return nil
}

func closeQuietly(app *appContext, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		app.Logger.Warn("close failed", "resource", what, "error", err)
	}
}
