// Package metrics emits the scan pipeline's StatsD metrics.
package metrics

import (
	"time"

	obserrors "github.com/target/quarantine-scanner/internal/observability/errors"
	"github.com/target/quarantine-scanner/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// VerdictMetric describes one completed scanner invocation.
type VerdictMetric struct {
	Classification string
	Reason         string
	Duration       time.Duration
}

// EmitScanVerdict counts verdicts and records scanner run time.
func EmitScanVerdict(sink statsd.Sink, in VerdictMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"status": in.Classification,
		"reason": in.Reason,
	}
	sink.Count("scan.verdict", 1, tags)
	if in.Duration > 0 {
		sink.Timing("scan.duration", in.Duration, CloneTags(tags))
	}
}

// BatchMetric summarises one dispatched batch.
type BatchMetric struct {
	Transport string
	Records   int
	Jobs      int
	Failed    int
	Duration  time.Duration
}

// EmitBatch emits batch throughput metrics.
func EmitBatch(sink statsd.Sink, in BatchMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{"transport": in.Transport}
	result := ResultSuccess
	if in.Failed > 0 {
		result = ResultError
	}

	sink.Gauge("batch.records", float64(in.Records), tags)
	sink.Count("batch.jobs", int64(in.Jobs), tags)
	if in.Failed > 0 {
		sink.Count("batch.failed_records", int64(in.Failed), tags)
	}
	if in.Duration > 0 {
		timingTags := CloneTags(tags)
		timingTags["result"] = result
		sink.Timing("batch.duration", in.Duration, timingTags)
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
