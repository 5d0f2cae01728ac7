package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/quarantine-scanner/config"
	"github.com/target/quarantine-scanner/internal/domain/event"
	"github.com/target/quarantine-scanner/internal/domain/model"
	"github.com/target/quarantine-scanner/internal/service"
)

func newTestApp(cfg config.AppConfig) (*appContext, *bytes.Buffer) {
	var out bytes.Buffer
	return &appContext{Logger: slog.Default(), Config: cfg, Out: &out}, &out
}

func execute(app *appContext, args ...string) error {
	cmd := newRootCmd(app)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func TestRootCmd_Subcommands(t *testing.T) {
	app, _ := newTestApp(config.AppConfig{})
	cmd := newRootCmd(app)

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run-fixture", "enqueue", "migrate", "ledger"})
}

func TestRunFixture_RequiresAreas(t *testing.T) {
	app, _ := newTestApp(config.AppConfig{Services: "worker"})
	err := execute(app, "run-fixture", "../../internal/domain/event/testdata/example.json")
	require.ErrorContains(t, err, "Q_BUCKET is required")
}

func TestRunFixture_RequiresOneArg(t *testing.T) {
	app, _ := newTestApp(config.AppConfig{})
	require.Error(t, execute(app, "run-fixture"))
}

func TestEnqueue_RejectsEmptyBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Records": []}`), 0o600))

	app, _ := newTestApp(config.AppConfig{})
	err := execute(app, "enqueue", path)
	require.ErrorContains(t, err, "contains no records")
}

func sampleReport() service.BatchReport {
	return service.BatchReport{
		Records: 2,
		Jobs:    2,
		Outcomes: []model.Outcome{{
			SourceArea:      "q-bucket",
			Key:             "docs/readme.md",
			Classification:  model.ClassificationPass,
			DestinationArea: "clean-bucket",
		}, {
			SourceArea:      "q-bucket",
			Key:             "eicar.txt",
			DestinationArea: "dmz-bucket",
			Skipped:         true,
		}},
		Failures: []service.RecordFailure{{
			Index:     1,
			Record:    event.Record{MessageID: "m-2"},
			Err:       errors.New("copy q-bucket/eicar.txt: disk full"),
			Retryable: true,
		}},
	}
}

func TestPrintReport_Plain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, sampleReport(), false))

	out := buf.String()
	assert.Contains(t, out, "records: 2  jobs: 2  routed: 2  failed records: 1")
	assert.Contains(t, out, "pass   q-bucket/docs/readme.md -> clean-bucket")
	assert.Contains(t, out, "noop   q-bucket/eicar.txt -> dmz-bucket")
	assert.Contains(t, out, "record 1: copy q-bucket/eicar.txt: disk full")
}

func TestPrintReport_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, sampleReport(), true))

	var view reportView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &view))
	assert.Equal(t, 2, view.Records)
	require.Len(t, view.Failures, 1)
	assert.Equal(t, "m-2", view.Failures[0].MessageID)
	assert.True(t, view.Failures[0].Retryable)
}

func TestPrintReport_EmptyJSONUsesArrays(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, service.BatchReport{}, true))
	assert.Contains(t, buf.String(), `"outcomes": []`)
	assert.Contains(t, buf.String(), `"failures": []`)
}

func TestPrintRecords(t *testing.T) {
	pass := model.ClassificationPass
	dest := "clean-bucket"
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, printRecords(&buf, []*model.ScanRecord{
		{JobID: "j-1", SourceArea: "q-bucket", ObjectKey: "a.txt", State: model.JobStateMoved,
			Classification: &pass, DestinationArea: &dest, UpdatedAt: ts},
		{JobID: "j-2", SourceArea: "q-bucket", ObjectKey: "b.txt", State: model.JobStateReceived, UpdatedAt: ts},
	}))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[1]), "q-bucket/a.txt")
	assert.Contains(t, string(lines[1]), "clean-bucket")
	assert.Contains(t, string(lines[2]), "received")
	assert.Contains(t, string(lines[2]), "-")
}

func TestPrintRecord(t *testing.T) {
	code := 1
	failed := model.ClassificationFailed
	reason := model.VerdictReasonInfected

	var buf bytes.Buffer
	require.NoError(t, printRecord(&buf, &model.ScanRecord{
		JobID:          "j-1",
		SourceArea:     "q-bucket",
		ObjectKey:      "eicar.txt",
		State:          model.JobStateMoved,
		Classification: &failed,
		Reason:         &reason,
		ExitCode:       &code,
		Duplicated:     true,
	}))

	out := buf.String()
	assert.Contains(t, out, "infected")
	assert.Contains(t, out, "exit code:")
	assert.Contains(t, out, "duplicated:")
	assert.Contains(t, out, "true")
}
