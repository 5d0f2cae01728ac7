package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/target/quarantine-scanner/internal/core"
	"github.com/target/quarantine-scanner/internal/data/pgxutil"
	apperrors "github.com/target/quarantine-scanner/internal/errors"
)

// Advisory lock namespace for reaper operations, used with the two-arg
// pg_try_advisory_xact_lock(major, minor).
const (
	advisoryLockReaperMajor     = 2000
	advisoryLockReaperFailStale = 1
	advisoryLockReaperDelete    = 2
)

// FailStaleJobs marks rows stuck in a non-terminal state for longer than
// maxAge as failed, at most batchSize per call. When another reaper holds the
// lock it returns 0 without doing anything.
func (r *ScanLedgerRepo) FailStaleJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, apperrors.ValidationField("batch_size", "batch size must be greater than zero")
	}

	now := r.timeProvider.Now().UTC()
	return r.lockedExec(ctx, advisoryLockReaperFailStale, `
		UPDATE scan_jobs
		SET last_error = 'abandoned in state ' || state,
			state = 'failed',
			updated_at = $1
		WHERE job_id IN (
			SELECT job_id FROM scan_jobs
			WHERE state NOT IN ('moved', 'failed', 'skipped')
			  AND updated_at < $2
			ORDER BY updated_at
			LIMIT $3
		)
	`, now, now.Add(-maxAge), batchSize)
}

// DeleteOldJobs deletes terminal rows in the given state older than MaxAge.
func (r *ScanLedgerRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldJobsParams) (int64, error) {
	if !params.State.Terminal() {
		return 0, apperrors.ValidationField("state", fmt.Sprintf("only terminal states can be deleted, got %q", params.State))
	}
	if params.BatchSize <= 0 {
		return 0, apperrors.ValidationField("batch_size", "batch size must be greater than zero")
	}

	cutoff := r.timeProvider.Now().UTC().Add(-params.MaxAge)
	return r.lockedExec(ctx, advisoryLockReaperDelete, `
		DELETE FROM scan_jobs
		WHERE job_id IN (
			SELECT job_id FROM scan_jobs
			WHERE state = $1
			  AND updated_at < $2
			ORDER BY updated_at
			LIMIT $3
		)
	`, string(params.State), cutoff, params.BatchSize)
}

func (r *ScanLedgerRepo) lockedExec(ctx context.Context, minor int, query string, args ...any) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			locked, err := pgxutil.TryXactLock(ctx, tx, advisoryLockReaperMajor, minor)
			if err != nil {
				return err
			}
			if !locked {
				return nil
			}

			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return apperrors.MapDBError(err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}
