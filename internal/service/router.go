package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/target/quarantine-scanner/internal/core"
	"github.com/target/quarantine-scanner/internal/domain/model"
	apperrors "github.com/target/quarantine-scanner/internal/errors"
	obserrors "github.com/target/quarantine-scanner/internal/observability/errors"
	"github.com/target/quarantine-scanner/internal/observability/metrics"
	"github.com/target/quarantine-scanner/internal/observability/notify"
	"github.com/target/quarantine-scanner/internal/observability/statsd"
)

// Pipeline stages, used in logs, ledger errors and operator alerts.
const (
	StageScan   = "scan"
	StageNotify = "notify"
	StageMove   = "move"
)

// JobScanner produces a verdict for a job's object.
type JobScanner interface {
	Scan(ctx context.Context, job *model.Job) (model.ScanVerdict, error)
}

// OutcomeSender publishes the outcome of a job.
type OutcomeSender interface {
	Notify(ctx context.Context, outcome model.Outcome) error
}

// FailureNotifier alerts operators about jobs that could not be routed.
type FailureNotifier interface {
	NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload)
}

// RouterConfig names the destination areas and the notification policy.
type RouterConfig struct {
	CleanArea  string
	FailedArea string
	// NotifyFailureFatal aborts the job, leaving the object at the source,
	// when the outcome cannot be published.
	NotifyFailureFatal bool
}

// JobRouterOptions groups dependencies for JobRouter.
type JobRouterOptions struct {
	Scanner  JobScanner     // Required
	Notifier OutcomeSender  // Required
	Store    core.BlobStore // Required: performs the move
	Config   RouterConfig

	Ledger          core.ScanLedger // Optional: records state transitions
	FailureNotifier FailureNotifier // Optional: operator alerts
	Logger          *slog.Logger
	Metrics         statsd.Sink
	Tracer          trace.Tracer
	Now             func() time.Time
}

// JobRouter runs one job through scan, destination choice, notification and move.
type JobRouter struct {
	scanner  JobScanner
	notifier OutcomeSender
	store    core.BlobStore
	cfg      RouterConfig
	ledger   core.ScanLedger
	failures FailureNotifier
	logger   *slog.Logger
	metrics  statsd.Sink
	tracer   trace.Tracer
	now      func() time.Time
}

// NewJobRouter constructs a JobRouter.
func NewJobRouter(opts JobRouterOptions) (*JobRouter, error) {
	switch {
	case opts.Scanner == nil:
		return nil, errors.New("JobScanner is required")
	case opts.Notifier == nil:
		return nil, errors.New("OutcomeSender is required")
	case opts.Store == nil:
		return nil, errors.New("BlobStore is required")
	case opts.Config.CleanArea == "" || opts.Config.FailedArea == "":
		return nil, errors.New("clean and failed areas are required")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &JobRouter{
		scanner:  opts.Scanner,
		notifier: opts.Notifier,
		store:    opts.Store,
		cfg:      opts.Config,
		ledger:   opts.Ledger,
		failures: opts.FailureNotifier,
		logger:   resolveLogger(opts.Logger).With("component", "job_router"),
		metrics:  opts.Metrics,
		tracer:   resolveTracer(opts.Tracer),
		now:      now,
	}, nil
}

// Destination maps a verdict to its destination area. Only a pass goes to the clean area.
func (r *JobRouter) Destination(v model.ScanVerdict) string {
	if v.Clean() {
		return r.cfg.CleanArea
	}
	return r.cfg.FailedArea
}

// Route processes one job. The order scan, notify, copy, delete is fixed.
// On error the job is failed and the object is left at the source, except
// when the delete after a successful copy fails.
func (r *JobRouter) Route(ctx context.Context, job *model.Job) (model.Outcome, error) {
	ctx, span := r.tracer.Start(ctx, "router.Route", trace.WithAttributes(
		attribute.String("job_id", job.ID),
		attribute.String("source_area", job.SourceArea),
		attribute.String("key", job.Key),
	))
	defer span.End()

	start := r.now()
	outcome, err := r.route(ctx, job, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outcome, err
	}
	span.SetAttributes(
		attribute.String("status", string(outcome.Classification)),
		attribute.String("destination", outcome.DestinationArea),
	)
	return outcome, nil
}

func (r *JobRouter) route(ctx context.Context, job *model.Job, start time.Time) (model.Outcome, error) {
	r.logger.InfoContext(ctx, "routing job", "job_id", job.ID, "source_area", job.SourceArea, "key", job.Key)
	r.recordLedger(ctx, job)

	verdict, err := r.scanner.Scan(ctx, job)
	r.syncStaged(ctx, job)
	if err != nil {
		if area, ok := r.alreadyRouted(ctx, job, err); ok {
			return r.noop(ctx, job, area, start), nil
		}
		return model.Outcome{}, r.fail(ctx, job, failure{stage: StageScan, err: err, start: start})
	}
	r.transitionLedger(ctx, model.TransitionRequest{JobID: job.ID, State: model.JobStateScanned, Verdict: &verdict})

	dest := r.Destination(verdict)
	outcome := model.NewOutcome(job, verdict, dest, r.now())

	if err := r.notifier.Notify(ctx, outcome); err != nil {
		if r.cfg.NotifyFailureFatal {
			return outcome, r.fail(ctx, job, failure{stage: StageNotify, err: err, start: start})
		}
		r.logger.WarnContext(ctx, "notification failed, moving anyway",
			"job_id", job.ID,
			"error", err,
		)
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			Transition: string(model.JobStateNotified),
			Result:     metrics.ResultError,
			Err:        err,
		})
		r.advance(ctx, job, model.TransitionRequest{State: model.JobStateNotified, Err: err})
	} else {
		r.advance(ctx, job, model.TransitionRequest{State: model.JobStateNotified})
	}

	if err := r.move(ctx, job, dest); err != nil {
		return outcome, err
	}

	r.advance(ctx, job, model.TransitionRequest{State: model.JobStateMoved, Destination: dest})
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Transition: string(model.JobStateMoved),
		Result:     metrics.ResultSuccess,
		Duration:   r.now().Sub(start),
	})
	r.logger.InfoContext(ctx, "job routed",
		"job_id", job.ID,
		"key", job.Key,
		"status", outcome.Classification,
		"destination", dest,
	)
	return outcome, nil
}

// move copies the object to dest and then deletes the source.
func (r *JobRouter) move(ctx context.Context, job *model.Job, dest string) error {
	if dest == job.SourceArea {
		// Copy onto itself followed by delete would lose the object.
		r.logger.WarnContext(ctx, "destination equals source, skipping move",
			"job_id", job.ID,
			"area", dest,
		)
		return nil
	}

	ctx, span := r.tracer.Start(ctx, "router.Move", trace.WithAttributes(
		attribute.String("destination", dest),
	))
	defer span.End()

	r.logger.InfoContext(ctx, "moving object",
		"job_id", job.ID,
		"from", job.SourceArea+"/"+job.Key,
		"to", dest+"/"+job.Key,
	)
	if err := r.store.Copy(ctx, job.SourceArea, job.Key, dest); err != nil {
		err = apperrors.Relocation(err, "copy", job.SourceArea, job.Key)
		span.RecordError(err)
		return r.fail(ctx, job, failure{stage: StageMove, err: err, start: r.now()})
	}
	if err := r.store.Delete(ctx, job.SourceArea, job.Key); err != nil {
		err = apperrors.Relocation(err, "delete", job.SourceArea, job.Key)
		span.RecordError(err)
		return r.fail(ctx, job, failure{stage: StageMove, err: err, start: r.now(), duplicated: true})
	}
	return nil
}

// alreadyRouted detects a redelivered job: staging found nothing at the
// source, but the object sits in one of the destination areas.
func (r *JobRouter) alreadyRouted(ctx context.Context, job *model.Job, err error) (string, bool) {
	if !apperrors.IsStaging(err) || !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
		return "", false
	}
	for _, area := range []string{r.cfg.FailedArea, r.cfg.CleanArea} {
		ok, existsErr := r.store.Exists(ctx, area, job.Key)
		if existsErr != nil {
			r.logger.WarnContext(ctx, "check destination area", "area", area, "key", job.Key, "error", existsErr)
			continue
		}
		if ok {
			return area, true
		}
	}
	return "", false
}

func (r *JobRouter) noop(ctx context.Context, job *model.Job, area string, start time.Time) model.Outcome {
	r.logger.InfoContext(ctx, "object already routed, nothing to do",
		"job_id", job.ID,
		"key", job.Key,
		"area", area,
	)
	r.advance(ctx, job, model.TransitionRequest{State: model.JobStateSkipped, Destination: area})
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Transition: string(model.JobStateSkipped),
		Result:     metrics.ResultNoop,
		Duration:   r.now().Sub(start),
	})
	return model.Outcome{
		JobID:           job.ID,
		SourceArea:      job.SourceArea,
		Key:             job.Key,
		FileName:        job.FileName,
		DestinationArea: area,
		Skipped:         true,
	}
}

type failure struct {
	stage      string
	err        error
	start      time.Time
	duplicated bool
}

// fail marks the job failed everywhere it is tracked and returns the error to propagate.
func (r *JobRouter) fail(ctx context.Context, job *model.Job, f failure) error {
	_ = job.Advance(model.JobStateFailed)
	r.transitionLedger(ctx, model.TransitionRequest{
		JobID:      job.ID,
		State:      model.JobStateFailed,
		Err:        f.err,
		Duplicated: f.duplicated,
	})

	class := obserrors.Classify(f.err)
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Transition: string(model.JobStateFailed),
		Result:     metrics.ResultError,
		Duration:   r.now().Sub(f.start),
		Err:        f.err,
	})
	r.logger.ErrorContext(ctx, "job failed",
		"job_id", job.ID,
		"stage", f.stage,
		"source_area", job.SourceArea,
		"key", job.Key,
		"error_class", class,
		"duplicated", f.duplicated,
		"error", f.err,
	)

	if r.failures != nil {
		r.failures.NotifyJobFailure(ctx, notify.JobFailurePayload{
			JobID:      job.ID,
			Stage:      f.stage,
			SourceArea: job.SourceArea,
			Key:        job.Key,
			FileName:   job.FileName,
			Error:      f.err.Error(),
			ErrorClass: class,
			OccurredAt: r.now(),
			Metadata: map[string]string{
				"duplicated": strconv.FormatBool(f.duplicated),
			},
		})
	}

	return fmt.Errorf("%s %s/%s: %w", f.stage, job.SourceArea, job.Key, f.err)
}

// syncStaged records the staged state once the scanner has staged the object.
// The scanner only advances the in-memory job; the ledger follows it here.
func (r *JobRouter) syncStaged(ctx context.Context, job *model.Job) {
	if job.State == model.JobStateStaged || job.State == model.JobStateScanned {
		r.transitionLedger(ctx, model.TransitionRequest{JobID: job.ID, State: model.JobStateStaged})
	}
}

func (r *JobRouter) advance(ctx context.Context, job *model.Job, req model.TransitionRequest) {
	if err := job.Advance(req.State); err != nil {
		r.logger.WarnContext(ctx, "unexpected job transition", "job_id", job.ID, "error", err)
	}
	req.JobID = job.ID
	r.transitionLedger(ctx, req)
}

// Ledger writes are best effort; they never change the routing result.
func (r *JobRouter) recordLedger(ctx context.Context, job *model.Job) {
	if r.ledger == nil {
		return
	}
	if err := r.ledger.Record(ctx, job); err != nil {
		r.logger.WarnContext(ctx, "ledger record failed", "job_id", job.ID, "error", err)
	}
}

func (r *JobRouter) transitionLedger(ctx context.Context, req model.TransitionRequest) {
	if r.ledger == nil {
		return
	}
	if err := r.ledger.Transition(ctx, req); err != nil {
		r.logger.WarnContext(ctx, "ledger transition failed",
			"job_id", req.JobID,
			"state", req.State,
			"error", err,
		)
	}
}
