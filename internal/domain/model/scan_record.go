package model

import "time"

// ScanRecord is the ledger row tracking one job through the pipeline.
type ScanRecord struct {
	JobID           string          `json:"job_id"                     db:"job_id"`
	SourceArea      string          `json:"source_area"                db:"source_area"`
	ObjectKey       string          `json:"object_key"                 db:"object_key"`
	State           JobState        `json:"state"                      db:"state"`
	Classification  *Classification `json:"classification,omitempty"   db:"classification"`
	Reason          *VerdictReason  `json:"reason,omitempty"           db:"reason"`
	ExitCode        *int            `json:"exit_code,omitempty"        db:"exit_code"`
	DestinationArea *string         `json:"destination_area,omitempty" db:"destination_area"`
	LastError       *string         `json:"last_error,omitempty"       db:"last_error"`
	Duplicated      bool            `json:"duplicated"                 db:"duplicated"`
	CreatedAt       time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"                 db:"updated_at"`
}

// TransitionRequest describes a ledger state change for a job.
type TransitionRequest struct {
	JobID       string
	State       JobState
	Verdict     *ScanVerdict
	Destination string
	Err         error
	Duplicated  bool
}
