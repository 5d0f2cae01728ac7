package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/target/quarantine-scanner/internal/core"
	"github.com/target/quarantine-scanner/internal/data/pgxutil"
	"github.com/target/quarantine-scanner/internal/domain/model"
	apperrors "github.com/target/quarantine-scanner/internal/errors"
)

// LedgerRepoConfig holds configuration options for the scan ledger repository.
type LedgerRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// ScanLedgerRepo persists scan job state transitions in PostgreSQL.
type ScanLedgerRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

var (
	_ core.ScanLedger             = (*ScanLedgerRepo)(nil)
	_ core.LedgerReaperRepository = (*ScanLedgerRepo)(nil)
)

// NewScanLedgerRepo creates a new ScanLedgerRepo.
func NewScanLedgerRepo(db *sql.DB, cfg LedgerRepoConfig) *ScanLedgerRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ScanLedgerRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "scan_ledger"),
	}
}

const scanRecordColumns = `
  job_id,
  source_area,
  object_key,
  state,
  classification,
  reason,
  exit_code,
  destination_area,
  last_error,
  duplicated,
  created_at,
  updated_at
`

// Record inserts a ledger row for a newly received job. Recording the same
// job twice is a no-op.
func (r *ScanLedgerRepo) Record(ctx context.Context, job *model.Job) error {
	if job == nil {
		return apperrors.Validationf("job is required")
	}
	if _, err := uuid.Parse(job.ID); err != nil {
		return apperrors.ValidationField("job_id", "job id must be a UUID")
	}

	now := r.timeProvider.Now().UTC()
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO scan_jobs (job_id, source_area, object_key, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (job_id) DO NOTHING
	`, job.ID, job.SourceArea, job.Key, job.State, now)
	if err != nil {
		return fmt.Errorf("record scan job: %w", apperrors.MapDBError(err))
	}
	return nil
}

// Transition applies a state change. Transitions the job state machine does
// not allow are rejected with a conflict error and leave the row unchanged.
func (r *ScanLedgerRepo) Transition(ctx context.Context, req model.TransitionRequest) error {
	if !req.State.Valid() {
		return apperrors.ValidationField("state", fmt.Sprintf("invalid state %q", req.State))
	}
	if _, err := uuid.Parse(req.JobID); err != nil {
		return apperrors.ValidationField("job_id", "job id must be a UUID")
	}

	args := transitionArgs(req)
	now := r.timeProvider.Now().UTC()

	return pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var current model.JobState
			err := tx.QueryRowContext(ctx,
				`SELECT state FROM scan_jobs WHERE job_id = $1 FOR UPDATE`, req.JobID,
			).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				return apperrors.NotFoundf("scan job %s not found", req.JobID)
			}
			if err != nil {
				return fmt.Errorf("load scan job: %w", apperrors.MapDBError(err))
			}
			if !model.CanTransition(current, req.State) {
				return apperrors.Conflictf("scan job %s cannot move from %s to %s", req.JobID, current, req.State)
			}

			_, err = tx.ExecContext(ctx, `
				UPDATE scan_jobs
				SET state = $2,
					classification = COALESCE($3, classification),
					reason = COALESCE($4, reason),
					exit_code = COALESCE($5, exit_code),
					destination_area = COALESCE($6, destination_area),
					last_error = COALESCE($7, last_error),
					duplicated = duplicated OR $8,
					updated_at = $9
				WHERE job_id = $1
			`, req.JobID, req.State, args.classification, args.reason, args.exitCode,
				args.destination, args.lastError, req.Duplicated, now)
			if err != nil {
				return fmt.Errorf("update scan job: %w", apperrors.MapDBError(err))
			}
			return nil
		},
	})
}

type transitionValues struct {
	classification sql.NullString
	reason         sql.NullString
	exitCode       sql.NullInt32
	destination    sql.NullString
	lastError      sql.NullString
}

func transitionArgs(req model.TransitionRequest) transitionValues {
	var v transitionValues
	if req.Verdict != nil {
		v.classification = sql.NullString{String: string(req.Verdict.Classification), Valid: true}
		v.reason = sql.NullString{String: string(req.Verdict.Reason), Valid: true}
		v.exitCode = sql.NullInt32{Int32: int32(req.Verdict.ExitCode), Valid: true} // #nosec G115 - process exit codes fit in int32
	}
	if req.Destination != "" {
		v.destination = sql.NullString{String: req.Destination, Valid: true}
	}
	if req.Err != nil {
		v.lastError = sql.NullString{String: req.Err.Error(), Valid: true}
	}
	return v
}

// Get returns the ledger row for a job.
func (r *ScanLedgerRepo) Get(ctx context.Context, jobID string) (*model.ScanRecord, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, apperrors.ValidationField("job_id", "job id must be a UUID")
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+scanRecordColumns+` FROM scan_jobs WHERE job_id = $1`, jobID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("scan job %s not found", jobID)
		}
		return nil, fmt.Errorf("get scan job: %w", apperrors.MapDBError(err))
	}
	return rec, nil
}

// ListRecent returns the most recently created rows, newest first.
func (r *ScanLedgerRepo) ListRecent(ctx context.Context, limit int) ([]*model.ScanRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+scanRecordColumns+` FROM scan_jobs ORDER BY created_at DESC, job_id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scan jobs: %w", apperrors.MapDBError(err))
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			r.logger.WarnContext(ctx, "close scan job rows", "error", cerr)
		}
	}()

	var out []*model.ScanRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scan job row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan jobs: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.ScanRecord, error) {
	var (
		rec            model.ScanRecord
		classification sql.NullString
		reason         sql.NullString
		exitCode       sql.NullInt32
		destination    sql.NullString
		lastError      sql.NullString
	)
	if err := row.Scan(
		&rec.JobID,
		&rec.SourceArea,
		&rec.ObjectKey,
		&rec.State,
		&classification,
		&reason,
		&exitCode,
		&destination,
		&lastError,
		&rec.Duplicated,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if classification.Valid {
		c := model.Classification(classification.String)
		rec.Classification = &c
	}
	if reason.Valid {
		v := model.VerdictReason(reason.String)
		rec.Reason = &v
	}
	if exitCode.Valid {
		code := int(exitCode.Int32)
		rec.ExitCode = &code
	}
	if destination.Valid {
		rec.DestinationArea = &destination.String
	}
	if lastError.Valid {
		rec.LastError = &lastError.String
	}
	return &rec, nil
}
