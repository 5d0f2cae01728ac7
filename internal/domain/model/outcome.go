package model

import "time"

// Outcome is the record handed to both the notifier and the mover for one job.
type Outcome struct {
	JobID           string         `json:"job_id"`
	SourceArea      string         `json:"bucket"`
	Key             string         `json:"key"`
	FileName        string         `json:"filename"`
	Classification  Classification `json:"status"`
	Reason          VerdictReason  `json:"reason"`
	Output          string         `json:"output"`
	DestinationArea string         `json:"destination"`
	ScannedAt       time.Time      `json:"scanned_at"`
	// Skipped is set when an earlier delivery already routed the object.
	Skipped bool `json:"skipped,omitempty"`
}

// NewOutcome combines a job, its verdict and the chosen destination.
func NewOutcome(job *Job, verdict ScanVerdict, destination string, scannedAt time.Time) Outcome {
	return Outcome{
		JobID:           job.ID,
		SourceArea:      job.SourceArea,
		Key:             job.Key,
		FileName:        job.FileName,
		Classification:  verdict.Classification,
		Reason:          verdict.Reason,
		Output:          verdict.Output,
		DestinationArea: destination,
		ScannedAt:       scannedAt,
	}
}
