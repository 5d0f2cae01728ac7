// Package reaper runs the scan ledger cleanup loop against PostgreSQL.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/quarantine-scanner/config"
	"github.com/target/quarantine-scanner/internal/core"
	"github.com/target/quarantine-scanner/internal/data"
	"github.com/target/quarantine-scanner/internal/observability/statsd"
	"github.com/target/quarantine-scanner/internal/service"
)

// RunnerOptions holds the dependencies for creating a Runner. Repo, when
// set, is used instead of a ledger repository built on DB.
type RunnerOptions struct {
	DB      *sql.DB
	Repo    core.LedgerReaperRepository
	Config  config.ReaperConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Runner owns a ReaperService bound to the ledger.
type Runner struct {
	svc    *service.ReaperService
	logger *slog.Logger
}

// NewRunner wires the reaper service to the ledger repository.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	repo := opts.Repo
	if repo == nil {
		if opts.DB == nil {
			return nil, errors.New("database connection is required")
		}
		repo = data.NewScanLedgerRepo(opts.DB, data.LedgerRepoConfig{Logger: logger})
	}

	svc, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:    repo,
		Config:  opts.Config,
		Logger:  logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}
	return &Runner{svc: svc, logger: logger.With("component", "reaper_runner")}, nil
}

// Run sweeps on the configured interval until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.svc.Run(ctx)
}

// Sweep performs a single cleanup pass.
func (r *Runner) Sweep(ctx context.Context) error {
	return r.svc.RunOnce(ctx)
}
