package core

import (
	"context"
	"io"
	"time"

	"github.com/target/quarantine-scanner/internal/domain/event"
	"github.com/target/quarantine-scanner/internal/domain/model"
)

// This file contains the port definitions (hexagonal architecture).
// Services depend on these interfaces; adapters under internal/adapters and
// internal/data implement them.

// BlobStore reads and relocates objects held in named storage areas.
// Get returns an errors.ErrCodeNotFound AppError when the key is absent.
type BlobStore interface {
	Get(ctx context.Context, area, key string) (io.ReadCloser, error)
	Put(ctx context.Context, area, key string, r io.Reader) error
	// Copy overwrites any existing object at dstArea/key.
	Copy(ctx context.Context, srcArea, key, dstArea string) error
	// Delete of a missing key is a no-op.
	Delete(ctx context.Context, area, key string) error
	Exists(ctx context.Context, area, key string) (bool, error)
}

// ProcessRequest is one external program invocation. Args are passed literally.
type ProcessRequest struct {
	Path string
	Args []string
}

// ProcessResult holds the merged stdout/stderr and exit status of a finished process.
type ProcessResult struct {
	Output   []byte
	ExitCode int
}

// ProcessRunner executes external programs.
// A process that ran and exited non-zero is not an error; failing to start,
// or being killed because ctx ended, is.
type ProcessRunner interface {
	Run(ctx context.Context, req ProcessRequest) (ProcessResult, error)
}

// Publisher fans a notification out on its topic.
type Publisher interface {
	Publish(ctx context.Context, msg model.NotificationMessage) error
}

// Delivery is one batch received from a transport.
// Exactly one of Ack or Nack is called once the batch has been dispatched.
type Delivery struct {
	Batch event.Batch

	// Ack settles every record in the batch.
	Ack func(ctx context.Context) error

	// Nack settles the batch but hands the failed records back for redelivery.
	Nack func(ctx context.Context, failed []event.Record) error
}

// BatchSource receives batches from a transport.
// Receive returns (nil, nil) when no batch arrived within the transport's wait.
type BatchSource interface {
	Receive(ctx context.Context) (*Delivery, error)
	Close() error
}

// BatchSink enqueues batches onto a transport.
type BatchSink interface {
	Enqueue(ctx context.Context, batch event.Batch) (int, error)
}

// ScanLedger records each job's progress through the pipeline.
type ScanLedger interface {
	Record(ctx context.Context, job *model.Job) error
	Transition(ctx context.Context, req model.TransitionRequest) error
	Get(ctx context.Context, jobID string) (*model.ScanRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*model.ScanRecord, error)
}

// DeleteOldJobsParams groups parameters for LedgerReaperRepository.DeleteOldJobs.
type DeleteOldJobsParams struct {
	State     model.JobState
	MaxAge    time.Duration
	BatchSize int
}

// LedgerReaperRepository defines the interface for ledger cleanup operations.
type LedgerReaperRepository interface {
	// FailStaleJobs marks non-terminal rows not updated within maxAge as failed.
	// Processes up to batchSize rows per call to prevent long locks.
	FailStaleJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)

	// DeleteOldJobs deletes rows in the given state older than MaxAge.
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)
}
