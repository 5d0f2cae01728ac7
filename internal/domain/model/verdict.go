package model

import "time"

// Classification is the binary routing decision derived from a scan.
type Classification string

const (
	// ClassificationPass marks an object the engine reported clean.
	ClassificationPass Classification = "pass"
	// ClassificationFailed marks an object that was infected or could not be scanned.
	ClassificationFailed Classification = "failed"
)

// Valid returns true if the Classification is known.
func (c Classification) Valid() bool {
	return c == ClassificationPass || c == ClassificationFailed
}

// VerdictReason refines a failed classification for reporting only; routing
// never looks at it.
type VerdictReason string

const (
	VerdictReasonClean    VerdictReason = "clean"
	VerdictReasonInfected VerdictReason = "infected"
	VerdictReasonError    VerdictReason = "error"
)

// Exit codes documented by clamscan.
const (
	ExitCodeClean    = 0
	ExitCodeInfected = 1
)

// ScanVerdict is the interpreted result of one scanner invocation.
type ScanVerdict struct {
	Classification Classification `json:"classification"`
	Reason         VerdictReason  `json:"reason"`
	Output         string         `json:"output"`
	ExitCode       int            `json:"exit_code"`
	Duration       time.Duration  `json:"duration"`
}

// Clean reports whether the object may be released to the clean area.
func (v ScanVerdict) Clean() bool {
	return v.Classification == ClassificationPass
}

// VerdictFromExitCode maps a scanner exit code to a verdict. Only exit code 0
// is clean; every other code, including scanner-internal errors, fails.
func VerdictFromExitCode(code int, output string) ScanVerdict {
	v := ScanVerdict{
		Classification: ClassificationFailed,
		Reason:         VerdictReasonError,
		Output:         output,
		ExitCode:       code,
	}
	switch code {
	case ExitCodeClean:
		v.Classification = ClassificationPass
		v.Reason = VerdictReasonClean
	case ExitCodeInfected:
		v.Reason = VerdictReasonInfected
	}
	return v
}
