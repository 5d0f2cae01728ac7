// Package failurenotifier fans scan job failures out to operator alert sinks.
//
// A broken scanner or object store fails every job the same way, so alerts
// sharing a stage and error class are collapsed within SuppressWindow. The
// first alert after the window reports how many were suppressed.
package failurenotifier

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/target/quarantine-scanner/internal/observability/notify"
)

// SinkRegistration pairs a sink with the name used in logs.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger         *slog.Logger
	Sinks          []SinkRegistration
	SuppressWindow time.Duration // zero sends every alert
	Clock          func() time.Time
}

type alertKey struct {
	stage      string
	errorClass string
}

type alertWindow struct {
	openedAt   time.Time
	suppressed int
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[alertKey]*alertWindow
}

// NewService constructs a failure notifier. Nil sinks are dropped.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	sinks := make([]SinkRegistration, 0, len(opts.Sinks))
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	return &Service{
		logger:  logger.With("component", "failure_notifier"),
		sinks:   sinks,
		window:  max(opts.SuppressWindow, 0),
		now:     now,
		windows: make(map[alertKey]*alertWindow),
	}
}

// NotifyJobFailure fans the payload out to every sink and waits for them.
// Failures caused by worker shutdown are not incidents and are dropped.
func (s *Service) NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) {
	if len(s.sinks) == 0 {
		return
	}
	if payload.ErrorClass == "canceled" {
		s.logger.DebugContext(ctx, "skipping notification for canceled job",
			"job_id", payload.JobID,
			"stage", payload.Stage,
		)
		return
	}

	suppressed, send := s.admit(alertKey{stage: payload.Stage, errorClass: payload.ErrorClass})
	if !send {
		s.logger.DebugContext(ctx, "failure notification suppressed",
			"job_id", payload.JobID,
			"stage", payload.Stage,
			"error_class", payload.ErrorClass,
		)
		return
	}
	if suppressed > 0 {
		payload.Metadata = withSuppressed(payload.Metadata, suppressed)
	}
	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	// Sinks must outlive a canceled consumer context.
	sendCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendJobFailure(sendCtx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"job_id", payload.JobID,
					"stage", payload.Stage,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// admit reports whether an alert for key should go out now and how many
// were swallowed since the last one that did.
func (s *Service) admit(key alertKey) (int, bool) {
	if s.window == 0 {
		return 0, true
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if ok && now.Sub(w.openedAt) < s.window {
		w.suppressed++
		return 0, false
	}
	var suppressed int
	if ok {
		suppressed = w.suppressed
	}
	s.windows[key] = &alertWindow{openedAt: now}
	return suppressed, true
}

func withSuppressed(meta map[string]string, n int) map[string]string {
	out := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["suppressed_since_last"] = strconv.Itoa(n)
	return out
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
