package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/target/quarantine-scanner/internal/domain/event"
	"github.com/target/quarantine-scanner/internal/domain/model"
	"github.com/target/quarantine-scanner/internal/observability/metrics"
	"github.com/target/quarantine-scanner/internal/observability/statsd"
)

// ObjectExtractor turns one record body into object references.
type ObjectExtractor interface {
	Objects(body string) ([]event.ObjectRef, error)
}

// Router processes one job end to end.
type Router interface {
	Route(ctx context.Context, job *model.Job) (model.Outcome, error)
}

// RecordFailure describes a record that did not complete.
type RecordFailure struct {
	Index  int
	Record event.Record
	Err    error
	// Retryable is false for records that can never succeed, such as an
	// undecodable body. Those are acknowledged and dropped.
	Retryable bool
}

// BatchReport summarizes one dispatched batch.
type BatchReport struct {
	Records  int
	Jobs     int
	Outcomes []model.Outcome
	Failures []RecordFailure
}

// FailedRecords returns the records that should be redelivered.
func (r BatchReport) FailedRecords() []event.Record {
	var out []event.Record
	for _, f := range r.Failures {
		if f.Retryable {
			out = append(out, f.Record)
		}
	}
	return out
}

// Err joins every record failure, or returns nil when the batch succeeded.
func (r BatchReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("record %d: %w", f.Index, f.Err))
	}
	return errors.Join(errs...)
}

// BatchDispatcherOptions groups dependencies for BatchDispatcher.
type BatchDispatcherOptions struct {
	Extractor ObjectExtractor // Required
	Router    Router          // Required
	Transport string          // Optional: metric tag
	Logger    *slog.Logger
	Metrics   statsd.Sink
	Tracer    trace.Tracer
}

// BatchDispatcher fans a batch out into jobs and routes them in order.
type BatchDispatcher struct {
	extractor ObjectExtractor
	router    Router
	transport string
	logger    *slog.Logger
	metrics   statsd.Sink
	tracer    trace.Tracer
}

// NewBatchDispatcher constructs a BatchDispatcher.
func NewBatchDispatcher(opts BatchDispatcherOptions) (*BatchDispatcher, error) {
	if opts.Extractor == nil {
		return nil, errors.New("ObjectExtractor is required")
	}
	if opts.Router == nil {
		return nil, errors.New("Router is required")
	}
	return &BatchDispatcher{
		extractor: opts.Extractor,
		router:    opts.Router,
		transport: opts.Transport,
		logger:    resolveLogger(opts.Logger).With("component", "batch_dispatcher"),
		metrics:   opts.Metrics,
		tracer:    resolveTracer(opts.Tracer),
	}, nil
}

// MustNewBatchDispatcher constructs a BatchDispatcher and panics on error.
func MustNewBatchDispatcher(opts BatchDispatcherOptions) *BatchDispatcher {
	d, err := NewBatchDispatcher(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must* constructor intentionally panics on invalid wiring
	}
	return d
}

// Dispatch routes every object of every record sequentially, in batch order.
// A failing record does not stop the batch; its failure lands in the report.
// Only context cancellation stops early, and that error is returned.
func (d *BatchDispatcher) Dispatch(ctx context.Context, batch event.Batch) (BatchReport, error) {
	ctx, span := d.tracer.Start(ctx, "dispatcher.Dispatch", trace.WithAttributes(
		attribute.Int("records", len(batch.Records)),
	))
	defer span.End()

	start := time.Now()
	report := BatchReport{Records: len(batch.Records)}
	defer func() {
		metrics.EmitBatch(d.metrics, metrics.BatchMetric{
			Transport: d.transport,
			Records:   report.Records,
			Jobs:      report.Jobs,
			Failed:    len(report.Failures),
			Duration:  time.Since(start),
		})
	}()

	for i, rec := range batch.Records {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(batch.Records); j++ {
				report.Failures = append(report.Failures, RecordFailure{
					Index: j, Record: batch.Records[j], Err: err, Retryable: true,
				})
			}
			return report, err
		}

		refs, err := d.extractor.Objects(rec.Body)
		if err != nil {
			d.logger.WarnContext(ctx, "dropping undecodable record",
				"index", i,
				"message_id", rec.MessageID,
				"error", err,
			)
			report.Failures = append(report.Failures, RecordFailure{Index: i, Record: rec, Err: err})
			continue
		}
		if len(refs) == 0 {
			d.logger.DebugContext(ctx, "record has no objects", "index", i, "message_id", rec.MessageID)
			continue
		}

		var recordErrs []error
		for _, ref := range refs {
			job := model.NewJob(ref.Area, ref.Key)
			report.Jobs++
			outcome, err := d.router.Route(ctx, job)
			if err != nil {
				recordErrs = append(recordErrs, err)
				continue
			}
			report.Outcomes = append(report.Outcomes, outcome)
		}
		if len(recordErrs) > 0 {
			report.Failures = append(report.Failures, RecordFailure{
				Index:     i,
				Record:    rec,
				Err:       errors.Join(recordErrs...),
				Retryable: true,
			})
		}
	}

	d.logger.InfoContext(ctx, "batch dispatched",
		"records", report.Records,
		"jobs", report.Jobs,
		"failed_records", len(report.Failures),
		"duration", time.Since(start),
	)
	return report, nil
}
