package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/target/quarantine-scanner/internal/core"
	"github.com/target/quarantine-scanner/internal/domain/model"
	apperrors "github.com/target/quarantine-scanner/internal/errors"
	"github.com/target/quarantine-scanner/internal/observability/metrics"
	"github.com/target/quarantine-scanner/internal/observability/statsd"
)

const tracerName = "github.com/target/quarantine-scanner/internal/service"

// ScanConfig controls scanner invocation.
type ScanConfig struct {
	ScannerPath string        // executable, e.g. /usr/bin/clamscan
	TempDir     string        // passed as --tempdir and stripped from output
	StagingDir  string        // parent of the per-job staging directories
	Timeout     time.Duration // bound on one scanner run; zero disables
}

// ScanServiceOptions groups dependencies for ScanService.
type ScanServiceOptions struct {
	Store   core.BlobStore     // Required: source of the objects to scan
	Runner  core.ProcessRunner // Required: executes the scanner
	Config  ScanConfig
	Logger  *slog.Logger // Optional: structured logger
	Metrics statsd.Sink  // Optional: metrics sink
	Tracer  trace.Tracer // Optional: defaults to the global provider
}

// ScanService stages an object locally and runs the scanning engine on it.
type ScanService struct {
	store   core.BlobStore
	runner  core.ProcessRunner
	cfg     ScanConfig
	logger  *slog.Logger
	metrics statsd.Sink
	tracer  trace.Tracer
}

// NewScanService constructs a ScanService.
func NewScanService(opts ScanServiceOptions) (*ScanService, error) {
	if opts.Store == nil {
		return nil, errors.New("BlobStore is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("ProcessRunner is required")
	}
	if strings.TrimSpace(opts.Config.ScannerPath) == "" {
		return nil, errors.New("scanner path is required")
	}

	cfg := opts.Config
	if cfg.StagingDir == "" {
		cfg.StagingDir = os.TempDir()
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	cfg.StagingDir = filepath.Clean(cfg.StagingDir)
	cfg.TempDir = filepath.Clean(cfg.TempDir)

	return &ScanService{
		store:   opts.Store,
		runner:  opts.Runner,
		cfg:     cfg,
		logger:  resolveLogger(opts.Logger).With("component", "scan_service"),
		metrics: opts.Metrics,
		tracer:  resolveTracer(opts.Tracer),
	}, nil
}

// MustNewScanService constructs a ScanService and panics on error.
func MustNewScanService(opts ScanServiceOptions) *ScanService {
	svc, err := NewScanService(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must* constructor intentionally panics on invalid wiring
	}
	return svc
}

// Scan stages the job's object, runs the scanner and interprets the result.
// The job advances to staged and then scanned. The staging directory is
// removed on every return path.
func (s *ScanService) Scan(ctx context.Context, job *model.Job) (model.ScanVerdict, error) {
	ctx, span := s.tracer.Start(ctx, "scan.Scan", trace.WithAttributes(
		attribute.String("job_id", job.ID),
		attribute.String("source_area", job.SourceArea),
		attribute.String("key", job.Key),
	))
	defer span.End()

	verdict, err := s.scan(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.ScanVerdict{}, err
	}
	span.SetAttributes(
		attribute.String("status", string(verdict.Classification)),
		attribute.Int("exit_code", verdict.ExitCode),
	)
	return verdict, nil
}

func (s *ScanService) scan(ctx context.Context, job *model.Job) (model.ScanVerdict, error) {
	name := job.FileName
	if name == "" || name == "." || name == ".." {
		return model.ScanVerdict{}, apperrors.Staging(
			apperrors.ValidationField("key", "object key has no file name"), job.SourceArea, job.Key)
	}

	stagingDir := filepath.Join(s.cfg.StagingDir, uuid.NewString())
	if err := os.MkdirAll(stagingDir, 0o700); err != nil {
		return model.ScanVerdict{}, apperrors.Staging(err, job.SourceArea, job.Key)
	}
	defer s.cleanup(ctx, stagingDir)

	stagedPath := filepath.Join(stagingDir, name)
	if err := s.stage(ctx, job, stagedPath); err != nil {
		return model.ScanVerdict{}, apperrors.Staging(err, job.SourceArea, job.Key)
	}
	if err := job.Advance(model.JobStateStaged); err != nil {
		return model.ScanVerdict{}, err
	}

	req := core.ProcessRequest{
		Path: s.cfg.ScannerPath,
		Args: []string{
			"--tempdir=" + s.cfg.TempDir,
			"--stdout",
			"--archive-verbose",
			stagedPath,
		},
	}
	s.logger.InfoContext(ctx, "running scanner",
		"job_id", job.ID,
		"command", req.Path+" "+strings.Join(req.Args, " "),
	)

	runCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := s.runner.Run(runCtx, req)
	if err != nil {
		return model.ScanVerdict{}, apperrors.ScanExecution(err, name)
	}

	verdict := model.VerdictFromExitCode(res.ExitCode, s.stripPaths(string(res.Output), stagingDir))
	verdict.Duration = time.Since(start)
	if err := job.Advance(model.JobStateScanned); err != nil {
		return model.ScanVerdict{}, err
	}

	metrics.EmitScanVerdict(s.metrics, metrics.VerdictMetric{
		Classification: string(verdict.Classification),
		Reason:         string(verdict.Reason),
		Duration:       verdict.Duration,
	})
	s.logger.InfoContext(ctx, "scan complete",
		"job_id", job.ID,
		"status", verdict.Classification,
		"reason", verdict.Reason,
		"exit_code", verdict.ExitCode,
		"duration", verdict.Duration,
	)
	s.logger.DebugContext(ctx, "scanner output", "job_id", job.ID, "output", verdict.Output)
	return verdict, nil
}

func (s *ScanService) stage(ctx context.Context, job *model.Job, dst string) error {
	src, err := s.store.Get(ctx, job.SourceArea, job.Key)
	if err != nil {
		return err
	}
	defer src.Close()

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create staged file: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		return fmt.Errorf("write staged file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close staged file: %w", err)
	}
	return nil
}

// stripPaths removes local staging locations from scanner output so only
// object names reach subscribers.
func (s *ScanService) stripPaths(output, stagingDir string) string {
	sep := string(filepath.Separator)
	output = strings.ReplaceAll(output, stagingDir+sep, "")
	output = strings.ReplaceAll(output, stagingDir, "")
	if s.cfg.TempDir != sep {
		output = strings.ReplaceAll(output, s.cfg.TempDir+sep, "")
	}
	return output
}

func (s *ScanService) cleanup(ctx context.Context, stagingDir string) {
	if err := os.RemoveAll(stagingDir); err != nil {
		s.logger.WarnContext(ctx, "remove staging directory", "path", stagingDir, "error", err)
	}
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

func resolveTracer(t trace.Tracer) trace.Tracer {
	if t != nil {
		return t
	}
	return otel.Tracer(tracerName)
}
