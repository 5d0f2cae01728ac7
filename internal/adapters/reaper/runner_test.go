package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/quarantine-scanner/config"
	"github.com/target/quarantine-scanner/internal/mocks"
)

func TestNewRunner_RequiresDatabaseOrRepo(t *testing.T) {
	_, err := NewRunner(RunnerOptions{Config: config.ReaperConfig{BatchSize: 10}})
	require.Error(t, err)
}

func TestNewRunner_PropagatesServiceValidation(t *testing.T) {
	repo := mocks.NewMockLedgerReaperRepository(gomock.NewController(t))
	_, err := NewRunner(RunnerOptions{Repo: repo})
	require.ErrorContains(t, err, "wire reaper service")
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	repo := mocks.NewMockLedgerReaperRepository(gomock.NewController(t))
	repo.EXPECT().FailStaleJobs(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()
	repo.EXPECT().DeleteOldJobs(gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()

	r, err := NewRunner(RunnerOptions{
		Repo: repo,
		Config: config.ReaperConfig{
			Interval:     time.Hour,
			StaleMaxAge:  time.Hour,
			MovedMaxAge:  time.Hour,
			FailedMaxAge: time.Hour,
			BatchSize:    10,
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, r.Run(ctx))
}

func TestRunner_SweepRunsEveryStepOnce(t *testing.T) {
	repo := mocks.NewMockLedgerReaperRepository(gomock.NewController(t))
	gomock.InOrder(
		repo.EXPECT().FailStaleJobs(gomock.Any(), 30*time.Minute, 25).Return(int64(0), nil),
		repo.EXPECT().DeleteOldJobs(gomock.Any(), gomock.Any()).Return(int64(0), nil),
		repo.EXPECT().DeleteOldJobs(gomock.Any(), gomock.Any()).Return(int64(0), nil),
		repo.EXPECT().DeleteOldJobs(gomock.Any(), gomock.Any()).Return(int64(0), nil),
	)

	r, err := NewRunner(RunnerOptions{
		Repo: repo,
		Config: config.ReaperConfig{
			Interval:     time.Hour,
			StaleMaxAge:  30 * time.Minute,
			MovedMaxAge:  24 * time.Hour,
			FailedMaxAge: 72 * time.Hour,
			BatchSize:    25,
		},
	})
	require.NoError(t, err)
	require.NoError(t, r.Sweep(context.Background()))
}
