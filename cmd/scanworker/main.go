package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/target/quarantine-scanner/config"
	"github.com/target/quarantine-scanner/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger = bootstrap.ConfigureLogger(&cfg)

	logStartupInfo(ctx, logger, &cfg)

	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}

	db, err := initLedgerDB(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() {
			if cerr := db.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close database failed", "error", cerr)
			}
		}()
	}

	brokers, err := bootstrap.ConnectBrokers(&cfg, logger)
	if err != nil {
		return fmt.Errorf("connect brokers: %w", err)
	}
	defer func() {
		if cerr := brokers.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close broker connections failed", "error", cerr)
		}
	}()

	observability := bootstrap.BuildObservability(logger, cfg.Observability)
	if observability.MetricsSink != nil {
		defer func() {
			if cerr := observability.MetricsSink.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close statsd client failed", "error", cerr)
			}
		}()
	}

	publisher, err := bootstrap.NewPublisher(&cfg, brokers, logger)
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}

	pipeline, err := bootstrap.BuildPipeline(bootstrap.PipelineDeps{
		Config:        &cfg,
		Publisher:     publisher,
		DB:            db,
		Logger:        logger,
		Observability: observability,
	})
	if err != nil {
		return err
	}

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:        &cfg,
		DB:            db,
		Brokers:       brokers,
		Pipeline:      pipeline,
		Observability: observability,
		Logger:        logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting scan worker",
		"enabled_services", bootstrap.GetEnabledServices(cfg),
		"transport", cfg.Transport.Kind,
		"queue", cfg.Transport.Queue,
		"notify_backend", cfg.Notify.Backend,
		"topic", cfg.Notify.Topic,
		"clean_area", cfg.Storage.CleanArea,
		"failed_area", cfg.Storage.FailedArea,
		"ledger_enabled", cfg.Ledger.Enabled,
	)
}

// initLedgerDB connects the ledger database when the ledger is enabled and
// applies migrations when configured to. It returns nil when no database is needed.
func initLedgerDB(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*sql.DB, error) {
	if !cfg.Ledger.Enabled {
		logger.InfoContext(ctx, "scan ledger disabled")
		return nil, nil
	}

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cfg.Postgres,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if !cfg.Postgres.RunMigrationsOnStart {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
		return db, nil
	}
	if err := bootstrap.RunMigrations(ctx, db, logger); err != nil {
		if cerr := db.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close database: %w", cerr))
		}
		return nil, err
	}
	return db, nil
}
