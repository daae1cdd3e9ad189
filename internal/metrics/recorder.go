package metrics

import "time"

// OutcomeLabel enumerates final build outcome categories for counters.
type OutcomeLabel string

const (
	OutcomeSuccess  OutcomeLabel = "success"
	OutcomeFailed   OutcomeLabel = "failed"
	OutcomeCanceled OutcomeLabel = "canceled"
)

// Recorder defines observability hooks for build, publish and linkcheck
// metrics. Implementations may forward to Prometheus, OpenTelemetry, etc.
// All methods must be safe on the NoopRecorder (allowing optional injection).
type Recorder interface {
	ObserveBuildDuration(target string, d time.Duration)
	IncBuildOutcome(target string, outcome OutcomeLabel)
	IncPublish(success bool)
	SetBrokenLinks(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(string, time.Duration) {}
func (NoopRecorder) IncBuildOutcome(string, OutcomeLabel)       {}
func (NoopRecorder) IncPublish(bool)                            {}
func (NoopRecorder) SetBrokenLinks(int)                         {}
