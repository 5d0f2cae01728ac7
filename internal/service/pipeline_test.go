package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/quarantine-scanner/internal/adapters/blobstore"
	"github.com/target/quarantine-scanner/internal/core"
	"github.com/target/quarantine-scanner/internal/domain/model"
	"github.com/target/quarantine-scanner/internal/mocks"
	"github.com/target/quarantine-scanner/internal/observability/statsd"
)

const (
	testSource = "q-bucket"
	testClean  = "clean-bucket"
	testFailed = "dmz-bucket"
	testTopic  = "scan-results"
)

// pipeline wires the real scan, notify and route services around a
// filesystem blob store and mocked process runner and publisher.
type pipeline struct {
	store      *blobstore.FS
	runner     *mocks.MockProcessRunner
	publisher  *mocks.MockPublisher
	metrics    *statsd.Recorder
	stagingDir string
	scanner    *ScanService
	notifier   *OutcomeNotifier
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	ctrl := gomock.NewController(t)

	store, err := blobstore.NewFS(t.TempDir())
	require.NoError(t, err)

	p := &pipeline{
		store:      store,
		runner:     mocks.NewMockProcessRunner(ctrl),
		publisher:  mocks.NewMockPublisher(ctrl),
		metrics:    &statsd.Recorder{},
		stagingDir: t.TempDir(),
	}
	p.scanner = MustNewScanService(ScanServiceOptions{
		Store:  store,
		Runner: p.runner,
		Config: ScanConfig{
			ScannerPath: "/usr/bin/clamscan",
			TempDir:     "/tmp",
			StagingDir:  p.stagingDir,
			Timeout:     time.Minute,
		},
		Metrics: p.metrics,
	})
	p.notifier, err = NewOutcomeNotifier(OutcomeNotifierOptions{Publisher: p.publisher, Topic: testTopic})
	require.NoError(t, err)
	return p
}

func (p *pipeline) router(t *testing.T, mutate func(*JobRouterOptions)) *JobRouter {
	t.Helper()
	opts := JobRouterOptions{
		Scanner:  p.scanner,
		Notifier: p.notifier,
		Store:    p.store,
		Config: RouterConfig{
			CleanArea:          testClean,
			FailedArea:         testFailed,
			NotifyFailureFatal: true,
		},
		Metrics: p.metrics,
	}
	if mutate != nil {
		mutate(&opts)
	}
	r, err := NewJobRouter(opts)
	require.NoError(t, err)
	return r
}

func (p *pipeline) put(t *testing.T, area, key, body string) {
	t.Helper()
	require.NoError(t, p.store.Put(context.Background(), area, key, strings.NewReader(body)))
}

func (p *pipeline) exists(t *testing.T, area, key string) bool {
	t.Helper()
	ok, err := p.store.Exists(context.Background(), area, key)
	require.NoError(t, err)
	return ok
}

func (p *pipeline) read(t *testing.T, area, key string) string {
	t.Helper()
	rc, err := p.store.Get(context.Background(), area, key)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

// expectScan makes the runner report exitCode. Output is produced by fn from
// the staged path so tests can check that staging paths are stripped.
func (p *pipeline) expectScan(t *testing.T, exitCode int, output func(staged string) string) *gomock.Call {
	t.Helper()
	return p.runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req core.ProcessRequest) (core.ProcessResult, error) {
			staged := req.Args[len(req.Args)-1]
			_, err := os.Stat(staged)
			require.NoError(t, err, "object must be staged while the scanner runs")
			return core.ProcessResult{Output: []byte(output(staged)), ExitCode: exitCode}, nil
		})
}

// assertStagingEmpty verifies no per-job staging directory survived.
func (p *pipeline) assertStagingEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(p.stagingDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// faultyStore injects Copy or Delete failures on top of a working store.
type faultyStore struct {
	core.BlobStore
	copyErr   error
	deleteErr error
}

func (f *faultyStore) Copy(ctx context.Context, srcArea, key, dstArea string) error {
	if f.copyErr != nil {
		return f.copyErr
	}
	return f.BlobStore.Copy(ctx, srcArea, key, dstArea)
}

func (f *faultyStore) Delete(ctx context.Context, area, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.BlobStore.Delete(ctx, area, key)
}

func TestScanService_RunsScannerWithExpectedArguments(t *testing.T) {
	t.Parallel()
	p := newPipeline(t)
	p.put(t, testSource, "docs/readme.md", "hello")

	var got core.ProcessRequest
	p.runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req core.ProcessRequest) (core.ProcessResult, error) {
			got = req
			data, err := os.ReadFile(req.Args[3])
			require.NoError(t, err)
			assert.Equal(t, "hello", string(data))
			return core.ProcessResult{Output: []byte("OK")}, nil
		})

	job := model.NewJob(testSource, "docs/readme.md")
	v, err := p.scanner.Scan(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, "/usr/bin/clamscan", got.Path)
	require.Len(t, got.Args, 4)
	assert.Equal(t, []string{"--tempdir=/tmp", "--stdout", "--archive-verbose"}, got.Args[:3])
	assert.Equal(t, "readme.md", filepath.Base(got.Args[3]))
	assert.True(t, strings.HasPrefix(got.Args[3], p.stagingDir+string(filepath.Separator)))

	assert.True(t, v.Clean())
	assert.Equal(t, model.JobStateScanned, job.State)
	assert.Len(t, p.metrics.Named("scan.verdict"), 1)
	p.assertStagingEmpty(t)
}

func TestScanService_StripsStagingPrefix(t *testing.T) {
	t.Parallel()
	p := newPipeline(t)
	p.put(t, testSource, "eicar.txt", "X5O!P%@AP")
	p.expectScan(t, 1, func(staged string) string {
		return staged + ": Win.Test.EICAR_HDB-1 FOUND\n/tmp/clamav-123.tmp: scanned\n"
	})

	v, err := p.scanner.Scan(context.Background(), model.NewJob(testSource, "eicar.txt"))
	require.NoError(t, err)
	assert.Equal(t, "eicar.txt: Win.Test.EICAR_HDB-1 FOUND\nclamav-123.tmp: scanned\n", v.Output)
	assert.NotContains(t, v.Output, p.stagingDir)
	assert.Equal(t, model.VerdictReasonInfected, v.Reason)
	p.assertStagingEmpty(t)
}

func TestScanService_MissingObjectIsStagingError(t *testing.T) {
	t.Parallel()
	p := newPipeline(t)

	_, err := p.scanner.Scan(context.Background(), model.NewJob(testSource, "missing.bin"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage q-bucket/missing.bin")
	p.assertStagingEmpty(t)
}

func TestScanService_RunnerErrorIsScanExecutionError(t *testing.T) {
	t.Parallel()
	p := newPipeline(t)
	p.put(t, testSource, "a.bin", "x")
	p.runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(core.ProcessResult{}, errors.New("exec format error"))

	job := model.NewJob(testSource, "a.bin")
	_, err := p.scanner.Scan(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run scanner on a.bin")
	assert.Equal(t, model.JobStateStaged, job.State)
	p.assertStagingEmpty(t)
}

func TestScanService_RejectsKeyWithoutFileName(t *testing.T) {
	t.Parallel()
	p := newPipeline(t)

	_, err := p.scanner.Scan(context.Background(), model.NewJob(testSource, "/"))
	require.Error(t, err)
}

func TestNewScanService_RequiresDependencies(t *testing.T) {
	t.Parallel()
	p := newPipeline(t)

	_, err := NewScanService(ScanServiceOptions{Runner: p.runner, Config: ScanConfig{ScannerPath: "x"}})
	require.Error(t, err)
	_, err = NewScanService(ScanServiceOptions{Store: p.store, Config: ScanConfig{ScannerPath: "x"}})
	require.Error(t, err)
	_, err = NewScanService(ScanServiceOptions{Store: p.store, Runner: p.runner})
	require.Error(t, err)
}
