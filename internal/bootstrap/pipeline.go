package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/quarantine-scanner/config"
	"github.com/target/quarantine-scanner/internal/adapters/blobstore"
	"github.com/target/quarantine-scanner/internal/adapters/clamscan"
	"github.com/target/quarantine-scanner/internal/core"
	"github.com/target/quarantine-scanner/internal/data"
	"github.com/target/quarantine-scanner/internal/domain/event"
	"github.com/target/quarantine-scanner/internal/service"
)

// PipelineDeps groups what BuildPipeline needs beyond configuration.
type PipelineDeps struct {
	Config        *config.AppConfig
	Publisher     core.Publisher // Required
	DB            *sql.DB        // Required when the ledger is enabled
	Logger        *slog.Logger
	Observability ObservabilityContainer

	// Optional overrides, mainly for tests.
	Store  core.BlobStore
	Runner core.ProcessRunner
}

// Pipeline is the wired scan path from batch to moved object.
type Pipeline struct {
	Store      core.BlobStore
	Ledger     core.ScanLedger
	Scanner    *service.ScanService
	Notifier   *service.OutcomeNotifier
	Router     *service.JobRouter
	Dispatcher *service.BatchDispatcher
}

// BuildPipeline wires the scan service, notifier, router and dispatcher.
func BuildPipeline(deps PipelineDeps) (*Pipeline, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Observability.Sink()

	store := deps.Store
	if store == nil {
		fs, err := blobstore.NewFS(cfg.Storage.Root)
		if err != nil {
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		store = fs
	}
	runner := deps.Runner
	if runner == nil {
		runner = clamscan.NewRunner(clamscan.RunnerOptions{Logger: logger})
	}

	scanner, err := service.NewScanService(service.ScanServiceOptions{
		Store:  store,
		Runner: runner,
		Config: service.ScanConfig{
			ScannerPath: cfg.Scanner.Path,
			TempDir:     cfg.Scanner.TempDir,
			StagingDir:  cfg.Scanner.StagingDir,
			Timeout:     cfg.Scanner.Timeout,
		},
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create scan service: %w", err)
	}

	notifier, err := service.NewOutcomeNotifier(service.OutcomeNotifierOptions{
		Publisher: deps.Publisher,
		Topic:     cfg.Notify.Topic,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create outcome notifier: %w", err)
	}

	routerOpts := service.JobRouterOptions{
		Scanner:  scanner,
		Notifier: notifier,
		Store:    store,
		Config: service.RouterConfig{
			CleanArea:          cfg.Storage.CleanArea,
			FailedArea:         cfg.Storage.FailedArea,
			NotifyFailureFatal: cfg.Notify.FailureFatal,
		},
		Logger:  logger,
		Metrics: metrics,
	}
	if fn := deps.Observability.FailureNotifier; fn != nil {
		routerOpts.FailureNotifier = fn
	}

	var ledger core.ScanLedger
	if cfg.Ledger.Enabled {
		if deps.DB == nil {
			return nil, errors.New("ledger enabled but no database connection")
		}
		ledger = data.NewScanLedgerRepo(deps.DB, data.LedgerRepoConfig{Logger: logger})
		routerOpts.Ledger = ledger
	}

	router, err := service.NewJobRouter(routerOpts)
	if err != nil {
		return nil, fmt.Errorf("create job router: %w", err)
	}

	extractor, err := event.NewExtractor(event.ExtractorOptions{
		Expression: cfg.Event.ObjectExpression,
		DecodeKeys: cfg.Event.DecodeKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("create event extractor: %w", err)
	}

	dispatcher, err := service.NewBatchDispatcher(service.BatchDispatcherOptions{
		Extractor: extractor,
		Router:    router,
		Transport: string(cfg.Transport.Kind),
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create batch dispatcher: %w", err)
	}

	return &Pipeline{
		Store:      store,
		Ledger:     ledger,
		Scanner:    scanner,
		Notifier:   notifier,
		Router:     router,
		Dispatcher: dispatcher,
	}, nil
}
