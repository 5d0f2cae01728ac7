// Package jobrunner runs the scan worker's consumer loops: receive a batch,
// dispatch it, then settle it with the transport.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/quarantine-scanner/internal/core"
	"github.com/target/quarantine-scanner/internal/domain/event"
	"github.com/target/quarantine-scanner/internal/observability/statsd"
	"github.com/target/quarantine-scanner/internal/service"
)

// Dispatcher routes every job in a batch.
type Dispatcher interface {
	Dispatch(ctx context.Context, batch event.Batch) (service.BatchReport, error)
}

// RunnerOptions configures the consumer runner.
type RunnerOptions struct {
	Source     core.BatchSource // Required
	Dispatcher Dispatcher       // Required
	Logger     *slog.Logger
	Metrics    statsd.Sink

	Concurrency     int           // consumer loops; defaults to 1
	ErrorBackoff    time.Duration // pause after a failed receive; defaults to 1s
	ShutdownTimeout time.Duration // bound on settling an in-flight batch after cancel; defaults to 30s
}

// Runner pulls batches from a transport and dispatches them.
type Runner struct {
	source          core.BatchSource
	dispatcher      Dispatcher
	logger          *slog.Logger
	metrics         statsd.Sink
	workers         int
	backoff         time.Duration
	shutdownTimeout time.Duration
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

// NewRunner constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Source == nil {
		return nil, errors.New("batch source is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}

	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	backoff := opts.ErrorBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	shutdown := opts.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 30 * time.Second
	}

	return &Runner{
		source:          opts.Source,
		dispatcher:      opts.Dispatcher,
		logger:          resolveLogger(opts.Logger).With("component", "scan_worker"),
		metrics:         opts.Metrics,
		workers:         workers,
		backoff:         backoff,
		shutdownTimeout: shutdown,
	}, nil
}

// Run starts the consumer loops and blocks until ctx is cancelled or a loop
// fails to settle a batch. Cancellation is a clean shutdown.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting scan worker", "workers", r.workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := range r.workers {
		g.Go(func() error {
			return r.workerLoop(gctx, i)
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	r.logger.InfoContext(ctx, "scan worker stopped")
	return nil
}

func (r *Runner) workerLoop(ctx context.Context, id int) error {
	logger := r.logger.With("worker", id)
	for ctx.Err() == nil {
		delivery, err := r.source.Receive(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.ErrorContext(ctx, "receive batch failed", "error", err)
			r.count("worker.receive_error")
			if !sleep(ctx, r.backoff) {
				return ctx.Err()
			}
		case delivery == nil:
			continue
		default:
			if err := r.ProcessDelivery(ctx, delivery); err != nil {
				return err
			}
		}
	}
	return ctx.Err()
}

// ProcessDelivery dispatches one delivery and settles it: Ack when every
// record either succeeded or cannot succeed on redelivery, Nack with the
// retryable records otherwise. Only a settlement failure is returned.
func (r *Runner) ProcessDelivery(ctx context.Context, d *core.Delivery) error {
	logger := r.logger
	logger.DebugContext(ctx, "batch received", "records", len(d.Batch.Records))

	report, err := r.dispatcher.Dispatch(ctx, d.Batch)
	if err != nil {
		logger.WarnContext(ctx, "batch interrupted", "error", err)
	}
	for _, f := range report.Failures {
		logger.WarnContext(ctx, "record failed",
			"record", f.Index,
			"message_id", f.Record.MessageID,
			"retryable", f.Retryable,
			"error", f.Err,
		)
	}

	// Settle even when the consumer is shutting down so processed records are not redelivered.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.shutdownTimeout)
	defer cancel()

	failed := report.FailedRecords()
	if len(failed) == 0 {
		if err := d.Ack(settleCtx); err != nil {
			r.count("worker.settle_error")
			return fmt.Errorf("ack batch: %w", err)
		}
		return nil
	}
	if err := d.Nack(settleCtx, failed); err != nil {
		r.count("worker.settle_error")
		return fmt.Errorf("nack batch: %w", err)
	}
	r.count("worker.redelivered")
	return nil
}

func (r *Runner) count(name string) {
	if r.metrics != nil {
		r.metrics.Count(name, 1, nil)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
