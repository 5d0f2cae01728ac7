// Package model defines the core data types shared by the quarantine scanning pipeline.
package model

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// JobState represents where a scan job is in the pipeline.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobState string

const (
	// JobStateReceived indicates the job was unpacked from a batch record.
	JobStateReceived JobState = "received"
	// JobStateStaged indicates the object has been copied to local staging.
	JobStateStaged JobState = "staged"
	// JobStateScanned indicates a verdict has been produced.
	JobStateScanned JobState = "scanned"
	// JobStateNotified indicates the outcome notification was published.
	JobStateNotified JobState = "notified"
	// JobStateMoved indicates the object reached its destination area.
	JobStateMoved JobState = "moved"
	// JobStateFailed indicates the job aborted before reaching JobStateMoved.
	JobStateFailed JobState = "failed"
	// JobStateSkipped indicates a redelivered job whose object an earlier
	// delivery had already routed.
	JobStateSkipped JobState = "skipped"
)

// UnmarshalText implements encoding.TextUnmarshaler for JobState.
func (s *JobState) UnmarshalText(text []byte) error {
	v := JobState(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobState: %q", v)
	}
	*s = v
	return nil
}

// Valid returns true if the JobState is known.
func (s JobState) Valid() bool {
	switch s {
	case JobStateReceived, JobStateStaged, JobStateScanned, JobStateNotified,
		JobStateMoved, JobStateFailed, JobStateSkipped:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are allowed.
func (s JobState) Terminal() bool {
	return s == JobStateMoved || s == JobStateFailed || s == JobStateSkipped
}

var jobStateEdges = map[JobState]JobState{
	JobStateReceived: JobStateStaged,
	JobStateStaged:   JobStateScanned,
	JobStateScanned:  JobStateNotified,
	JobStateNotified: JobStateMoved,
}

// CanTransition reports whether a job may move from one state to another.
// Every non-terminal state may abort into JobStateFailed. Only a job that
// never staged its object may be skipped.
func CanTransition(from, to JobState) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case JobStateFailed:
		return true
	case JobStateSkipped:
		return from == JobStateReceived
	}
	return jobStateEdges[from] == to
}

// Job identifies one unit of scan work derived from a storage event.
type Job struct {
	ID         string   `json:"id"`
	SourceArea string   `json:"source_area"`
	Key        string   `json:"key"`
	FileName   string   `json:"file_name"`
	State      JobState `json:"state"`
}

// NewJob builds a received job for the object at (area, key).
func NewJob(area, key string) *Job {
	return &Job{
		ID:         uuid.NewString(),
		SourceArea: area,
		Key:        key,
		FileName:   BaseName(key),
		State:      JobStateReceived,
	}
}

// Advance moves the job to the next state, rejecting illegal transitions.
func (j *Job) Advance(to JobState) error {
	if !CanTransition(j.State, to) {
		return fmt.Errorf("invalid job transition %s -> %s", j.State, to)
	}
	j.State = to
	return nil
}

// BaseName returns the last element of an object key. Keys are slash separated
// regardless of the host OS.
func BaseName(key string) string {
	trimmed := strings.TrimRight(key, "/")
	if trimmed == "" {
		return ""
	}
	return path.Base(trimmed)
}
