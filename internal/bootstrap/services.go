package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/target/quarantine-scanner/config"
	"github.com/target/quarantine-scanner/internal/adapters/jobrunner"
	"github.com/target/quarantine-scanner/internal/adapters/reaper"
	"github.com/target/quarantine-scanner/internal/core"
	"github.com/target/quarantine-scanner/internal/observability/notify/pagerduty"
	"github.com/target/quarantine-scanner/internal/observability/notify/slack"
	"github.com/target/quarantine-scanner/internal/observability/statsd"
	"github.com/target/quarantine-scanner/internal/service/failurenotifier"
)

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// Sink returns the metrics sink, or nil when metrics are disabled.
//
//nolint:ireturn // callers take the statsd.Sink port.
func (o ObservabilityContainer) Sink() statsd.Sink {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink
}

// BuildObservability configures metrics and failure notification adapters.
func BuildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Tags:    cfg.Metrics.Tags,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(obsLogger, cfg.Notifications),
		NotifierConfig:  cfg.Notifications,
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{Logger: logger})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:      cfg.Slack.WebhookURL,
			Channel:         cfg.Slack.Channel,
			Username:        cfg.Slack.Username,
			Timeout:         cfg.Timeout,
			RetryLimit:      cfg.RetryLimit,
			ObjectURLPrefix: cfg.Slack.ObjectURLPrefix,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger:         logger,
		Sinks:          sinks,
		SuppressWindow: cfg.SuppressWindow,
	})
}

// WorkerServiceConfig contains configuration for the scan worker.
type WorkerServiceConfig struct {
	Source     core.BatchSource
	Dispatcher jobrunner.Dispatcher
	Logger     *slog.Logger
	Config     config.WorkerConfig
	Metrics    statsd.Sink
}

// RunWorker runs the consumer loops until ctx is cancelled.
func RunWorker(ctx context.Context, cfg WorkerServiceConfig) error {
	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		Source:          cfg.Source,
		Dispatcher:      cfg.Dispatcher,
		Logger:          cfg.Logger,
		Metrics:         cfg.Metrics,
		Concurrency:     cfg.Config.Concurrency,
		ErrorBackoff:    cfg.Config.ErrorBackoff,
		ShutdownTimeout: cfg.Config.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create scan worker: %w", err)
	}
	if runErr := runner.Run(ctx); runErr != nil {
		return fmt.Errorf("run scan worker: %w", runErr)
	}
	return nil
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the ledger reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config        *config.AppConfig
	DB            *sql.DB
	Brokers       *Brokers
	Pipeline      *Pipeline
	Observability ObservabilityContainer
	Logger        *slog.Logger
}

// shutdownGrace is added to the worker's settle timeout when waiting for
// services to stop.
const shutdownGrace = 5 * time.Second

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name,
					"error", errMsg,
				)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "scan worker",
		start: func(ctx context.Context) error {
			cfg := deps.cfg
			if cfg.Pipeline == nil || cfg.Brokers == nil {
				return errors.New("scan worker requires a pipeline and broker connections")
			}
			source, err := NewBatchSource(cfg.Config, cfg.Brokers, deps.logger)
			if err != nil {
				return fmt.Errorf("create batch source: %w", err)
			}
			defer func() {
				if closeErr := source.Close(); closeErr != nil {
					deps.logger.Warn("close batch source", "error", closeErr)
				}
			}()
			return RunWorker(ctx, WorkerServiceConfig{
				Source:     source,
				Dispatcher: cfg.Pipeline.Dispatcher,
				Logger:     deps.logger,
				Config:     cfg.Config.Worker,
				Metrics:    cfg.Observability.Sink(),
			})
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			return RunReaper(ctx, ReaperConfig{
				DB:      deps.cfg.DB,
				Logger:  deps.logger,
				Config:  deps.cfg.Config.Reaper,
				Metrics: deps.cfg.Observability.Sink(),
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newWorkerBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	deps := &serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	}
	backgrounds := startBackgroundServices(deps, buildBackgroundServices(deps))

	return waitForShutdown(shutdownConfig{
		cancel:      cancel,
		errCh:       errCh,
		logger:      logger,
		backgrounds: backgrounds,
		wait:        cfg.Config.Worker.ShutdownTimeout + shutdownGrace,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel      context.CancelFunc
	errCh       <-chan error
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
	signals     <-chan os.Signal
	wait        time.Duration // shared deadline for all services; zero means shutdownGrace
}

// waitForShutdown blocks until SIGINT/SIGTERM or the first service error,
// then cancels every service and waits for them to drain.
func waitForShutdown(cfg shutdownConfig) error {
	quit := cfg.signals
	if quit == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		quit = ch
	}

	var err error
	select {
	case sig := <-quit:
		cfg.logger.Info("shutting down services", "signal", sig)
	case err = <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
	}
	cfg.cancel()
	gracefulStop(cfg)
	return err
}

// gracefulStop waits for every background service against one deadline, so
// a stuck service cannot multiply the total wait.
func gracefulStop(cfg shutdownConfig) {
	wait := cfg.wait
	if wait <= 0 {
		wait = shutdownGrace
	}
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for _, svc := range cfg.backgrounds {
		if svc.done == nil {
			continue
		}
		select {
		case <-svc.done:
			cfg.logger.Info("service stopped", "service", svc.name)
		case <-deadline.C:
			cfg.logger.Warn("timeout waiting for services to stop", "service", svc.name, "wait", wait)
			return
		}
	}
}
