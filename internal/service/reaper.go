package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/quarantine-scanner/config"
	"github.com/target/quarantine-scanner/internal/core"
	"github.com/target/quarantine-scanner/internal/domain/model"
	obserrors "github.com/target/quarantine-scanner/internal/observability/errors"
	"github.com/target/quarantine-scanner/internal/observability/metrics"
	"github.com/target/quarantine-scanner/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    core.LedgerReaperRepository // Required: ledger cleanup repository
	Config  config.ReaperConfig         // Required: reaper configuration
	Logger  *slog.Logger                // Optional: structured logger
	Metrics statsd.Sink                 // Optional: metrics sink (StatsD-compatible)
}

// ReaperService keeps the scan ledger bounded.
//
// Each tick it:
// - Fails rows stuck in a non-terminal state, left behind by a worker that died mid-job.
// - Deletes old moved rows.
// - Deletes old failed rows.
type ReaperService struct {
	repo    core.LedgerReaperRepository
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("LedgerReaperRepository is required")
	}
	if opts.Config.BatchSize <= 0 {
		return nil, errors.New("reaper batch size must be positive")
	}

	logger := resolveLogger(opts.Logger).With("component", "reaper_service")
	logger.Debug("ReaperService initialized",
		"interval", opts.Config.Interval,
		"stale_max_age", opts.Config.StaleMaxAge,
		"moved_max_age", opts.Config.MovedMaxAge,
		"failed_max_age", opts.Config.FailedMaxAge,
	)

	return &ReaperService{
		repo:    opts.Repo,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)

	// Jitter keeps replicas started together from sweeping in lockstep.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		s.logCleanupError(ctx, err, "initial cleanup")
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logCleanupError(ctx, err, "cleanup")
			}
		}
	}
}

// waitWithJitter sleeps a random delay up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

type cleanupStep struct {
	operation string
	label     string
	maxAge    time.Duration
	fn        func(context.Context) (int64, error)
}

type cleanupResult struct {
	operation string
	count     int64
	err       error
}

func (s *ReaperService) steps() []cleanupStep {
	return []cleanupStep{
		{
			operation: "fail_stale",
			label:     "fail stale jobs",
			maxAge:    s.config.StaleMaxAge,
			fn: func(ctx context.Context) (int64, error) {
				return s.repo.FailStaleJobs(ctx, s.config.StaleMaxAge, s.config.BatchSize)
			},
		},
		s.deleteStep(model.JobStateMoved, s.config.MovedMaxAge),
		s.deleteStep(model.JobStateFailed, s.config.FailedMaxAge),
		s.deleteStep(model.JobStateSkipped, s.config.MovedMaxAge),
	}
}

func (s *ReaperService) deleteStep(state model.JobState, maxAge time.Duration) cleanupStep {
	return cleanupStep{
		operation: "delete_" + string(state),
		label:     "delete old " + string(state) + " jobs",
		maxAge:    maxAge,
		fn: func(ctx context.Context) (int64, error) {
			return s.repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
				State:     state,
				MaxAge:    maxAge,
				BatchSize: s.config.BatchSize,
			})
		},
	}
}

// RunOnce performs every cleanup step once. A failing step does not stop the others.
func (s *ReaperService) RunOnce(ctx context.Context) error {
	start := time.Now()
	var (
		errs        []error
		allCanceled = true
		results     []cleanupResult
	)

	for _, step := range s.steps() {
		count, err := s.drain(ctx, step)
		results = append(results, cleanupResult{
			operation: step.operation,
			count:     count,
			err:       suppressContextCancellation(err),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.label, err))
			allCanceled = allCanceled && isContextCancellation(err)
		}
	}

	s.emitCleanupMetrics(results, time.Since(start))

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allCanceled {
			return context.Canceled
		}
		return fmt.Errorf("cleanup failed: %w", joined)
	}
	return nil
}

// drain repeats a batched step until it affects no rows.
func (s *ReaperService) drain(ctx context.Context, step cleanupStep) (int64, error) {
	var total int64
	for {
		count, err := step.fn(ctx)
		if err != nil {
			return total, err
		}
		total += count
		if count == 0 {
			break
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}

	if total > 0 {
		s.logger.InfoContext(ctx, step.label,
			"count", total,
			"max_age", step.maxAge,
		)
	}
	return total, nil
}

func (s *ReaperService) emitCleanupMetrics(results []cleanupResult, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	var (
		total    int64
		firstErr error
	)
	for _, r := range results {
		total += r.count
		if firstErr == nil {
			firstErr = r.err
		}
	}

	tags := map[string]string{"result": resultTag(total, firstErr)}
	if firstErr != nil {
		tags["error_class"] = obserrors.Classify(firstErr)
	}

	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}

	for _, r := range results {
		opTags := map[string]string{
			"operation": r.operation,
			"result":    resultTag(r.count, r.err),
		}
		if r.err != nil {
			opTags["error_class"] = obserrors.Classify(r.err)
		}
		s.metrics.Count("reaper.cleanup_operation", 1, opTags)
		if r.err == nil && r.count > 0 {
			s.metrics.Count("reaper.jobs_processed", r.count, metrics.CloneTags(opTags))
		}
	}

	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func resultTag(count int64, err error) string {
	switch {
	case err != nil:
		return metrics.ResultError
	case count == 0:
		return metrics.ResultNoop
	default:
		return metrics.ResultSuccess
	}
}

func (s *ReaperService) logCleanupError(ctx context.Context, err error, label string) {
	if isContextCancellation(err) {
		s.logger.DebugContext(ctx, label+" cancelled by context", "error", err)
		return
	}
	s.logger.ErrorContext(ctx, label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
