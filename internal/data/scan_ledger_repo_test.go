package data

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/quarantine-scanner/internal/core"
	"github.com/target/quarantine-scanner/internal/domain/model"
	apperrors "github.com/target/quarantine-scanner/internal/errors"
	"github.com/target/quarantine-scanner/internal/testutil"
)

func TestScanLedgerRepo_RecordAndTransition(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewScanLedgerRepo(db, LedgerRepoConfig{})
		ctx := context.Background()

		job := model.NewJob("q-bucket", "docs/readme.md")
		require.NoError(t, repo.Record(ctx, job))
		require.NoError(t, repo.Record(ctx, job), "recording twice is a no-op")

		verdict := model.VerdictFromExitCode(1, "readme.md: FOUND")
		require.NoError(t, repo.Transition(ctx, model.TransitionRequest{JobID: job.ID, State: model.JobStateStaged}))
		require.NoError(t, repo.Transition(ctx, model.TransitionRequest{
			JobID: job.ID, State: model.JobStateScanned, Verdict: &verdict,
		}))
		require.NoError(t, repo.Transition(ctx, model.TransitionRequest{
			JobID: job.ID, State: model.JobStateNotified, Err: errors.New("topic unavailable"),
		}))
		require.NoError(t, repo.Transition(ctx, model.TransitionRequest{
			JobID: job.ID, State: model.JobStateMoved, Destination: "dmz-bucket",
		}))

		rec, err := repo.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStateMoved, rec.State)
		assert.Equal(t, "docs/readme.md", rec.ObjectKey)
		require.NotNil(t, rec.Classification)
		assert.Equal(t, model.ClassificationFailed, *rec.Classification)
		require.NotNil(t, rec.ExitCode)
		assert.Equal(t, 1, *rec.ExitCode)
		require.NotNil(t, rec.DestinationArea)
		assert.Equal(t, "dmz-bucket", *rec.DestinationArea)
		require.NotNil(t, rec.LastError)
		assert.Equal(t, "topic unavailable", *rec.LastError)
		assert.False(t, rec.Duplicated)
	})
}

func TestScanLedgerRepo_TransitionRules(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewScanLedgerRepo(db, LedgerRepoConfig{})
		ctx := context.Background()

		job := model.NewJob("q-bucket", "a.bin")
		require.NoError(t, repo.Record(ctx, job))

		err := repo.Transition(ctx, model.TransitionRequest{JobID: job.ID, State: model.JobStateMoved})
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))

		require.NoError(t, repo.Transition(ctx, model.TransitionRequest{
			JobID: job.ID, State: model.JobStateFailed, Err: errors.New("delete failed"), Duplicated: true,
		}))
		err = repo.Transition(ctx, model.TransitionRequest{JobID: job.ID, State: model.JobStateStaged})
		assert.True(t, apperrors.IsConflict(err), "terminal rows do not move")

		rec, err := repo.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.True(t, rec.Duplicated)

		err = repo.Transition(ctx, model.TransitionRequest{JobID: model.NewJob("a", "b").ID, State: model.JobStateStaged})
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestScanLedgerRepo_SkippedRerun(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewScanLedgerRepo(db, LedgerRepoConfig{})
		ctx := context.Background()

		job := model.NewJob("q-bucket", "eicar.txt")
		require.NoError(t, repo.Record(ctx, job))
		require.NoError(t, repo.Transition(ctx, model.TransitionRequest{
			JobID: job.ID, State: model.JobStateSkipped, Destination: "dmz-bucket",
		}))

		rec, err := repo.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStateSkipped, rec.State)
		require.NotNil(t, rec.DestinationArea)
		assert.Equal(t, "dmz-bucket", *rec.DestinationArea)
		assert.Nil(t, rec.LastError)

		n, err := repo.FailStaleJobs(ctx, -time.Hour, 10)
		require.NoError(t, err)
		assert.Zero(t, n, "skipped rows are terminal")

		staged := model.NewJob("q-bucket", "other.txt")
		require.NoError(t, repo.Record(ctx, staged))
		require.NoError(t, repo.Transition(ctx, model.TransitionRequest{JobID: staged.ID, State: model.JobStateStaged}))
		err = repo.Transition(ctx, model.TransitionRequest{JobID: staged.ID, State: model.JobStateSkipped})
		assert.True(t, apperrors.IsConflict(err))
	})
}

func TestScanLedgerRepo_ListRecent(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		clock := NewFixedTimeProvider(testutil.TestTime())
		repo := NewScanLedgerRepo(db, LedgerRepoConfig{TimeProvider: clock})
		ctx := context.Background()

		var ids []string
		for _, key := range []string{"one", "two", "three"} {
			job := model.NewJob("q-bucket", key)
			require.NoError(t, repo.Record(ctx, job))
			ids = append(ids, job.ID)
			clock.AddTime(time.Minute)
		}

		recs, err := repo.ListRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, ids[2], recs[0].JobID)
		assert.Equal(t, ids[1], recs[1].JobID)
	})
}

func TestScanLedgerRepo_Reaper(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		clock := NewFixedTimeProvider(testutil.TestTime())
		repo := NewScanLedgerRepo(db, LedgerRepoConfig{TimeProvider: clock})
		ctx := context.Background()

		stale := model.NewJob("q-bucket", "stale.bin")
		require.NoError(t, repo.Record(ctx, stale))
		done := model.NewJob("q-bucket", "done.bin")
		require.NoError(t, repo.Record(ctx, done))
		require.NoError(t, repo.Transition(ctx, model.TransitionRequest{JobID: done.ID, State: model.JobStateFailed}))

		clock.AddTime(2 * time.Hour)
		fresh := model.NewJob("q-bucket", "fresh.bin")
		require.NoError(t, repo.Record(ctx, fresh))

		count, err := repo.FailStaleJobs(ctx, time.Hour, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		rec, err := repo.Get(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStateFailed, rec.State)
		require.NotNil(t, rec.LastError)
		assert.Equal(t, "abandoned in state received", *rec.LastError)

		rec, err = repo.Get(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStateReceived, rec.State)

		deleted, err := repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
			State: model.JobStateFailed, MaxAge: time.Hour, BatchSize: 100,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted, "only the row failed two hours ago is old enough")

		_, err = repo.Get(ctx, done.ID)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestScanLedgerRepo_InputValidation(t *testing.T) {
	repo := NewScanLedgerRepo(nil, LedgerRepoConfig{})
	ctx := context.Background()

	_, err := repo.Get(ctx, "not-a-uuid")
	assert.True(t, apperrors.IsValidation(err))

	err = repo.Transition(ctx, model.TransitionRequest{JobID: "x", State: model.JobStateMoved})
	assert.True(t, apperrors.IsValidation(err))

	err = repo.Transition(ctx, model.TransitionRequest{JobID: model.NewJob("a", "b").ID, State: "bogus"})
	assert.True(t, apperrors.IsValidation(err))

	_, err = repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{State: model.JobStateScanned, BatchSize: 1})
	assert.True(t, apperrors.IsValidation(err))

	_, err = repo.FailStaleJobs(ctx, time.Hour, 0)
	assert.True(t, apperrors.IsValidation(err))
}
