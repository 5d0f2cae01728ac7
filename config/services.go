package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeWorker runs the batch consumer loops.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs the ledger reaper for cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeWorker,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeWorker, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: worker, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains scan worker service configuration.
type WorkerConfig struct {
	// Concurrency is the number of independent consumer loops.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"1"`

	// ErrorBackoff is the pause after a failed receive.
	ErrorBackoff time.Duration `env:"WORKER_ERROR_BACKOFF" envDefault:"1s"`

	// ShutdownTimeout bounds the ack/nack of an in-flight batch after shutdown begins.
	ShutdownTimeout time.Duration `env:"WORKER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.ErrorBackoff < 10*time.Millisecond {
		w.ErrorBackoff = 10 * time.Millisecond
	}
	if w.ShutdownTimeout < time.Second {
		w.ShutdownTimeout = time.Second
	}
}

// ReaperConfig contains ledger reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// StaleMaxAge is how long a ledger row may sit in a non-terminal state before it is marked failed.
	// Rows left behind by a worker that died mid-job end up here.
	StaleMaxAge time.Duration `env:"REAPER_STALE_MAX_AGE" envDefault:"1h"`

	// MovedMaxAge is the maximum age for moved and skipped rows before deletion.
	MovedMaxAge time.Duration `env:"REAPER_MOVED_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedMaxAge is the maximum age for failed rows before deletion.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"720h"` // 30 days

	// BatchSize is the maximum number of rows to process per operation.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.StaleMaxAge < 5*time.Minute {
		r.StaleMaxAge = 5 * time.Minute
	}
	if r.MovedMaxAge < 1*time.Hour {
		r.MovedMaxAge = 1 * time.Hour
	}
	if r.FailedMaxAge < 1*time.Hour {
		r.FailedMaxAge = 1 * time.Hour
	}

	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
