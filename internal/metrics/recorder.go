package metrics

import "time"

// GroupOutcome labels how a source group's evaluation ended.
type GroupOutcome string

const (
	GroupSuccess GroupOutcome = "success"
	GroupRetried GroupOutcome = "retried" // succeeded on the second session
	GroupFailed  GroupOutcome = "failed"
	GroupSkipped GroupOutcome = "skipped"
)

// Recorder defines observability hooks for evaluation passes.
type Recorder interface {
	ObservePassDuration(d time.Duration)
	ObserveExecuteDuration(platform string, d time.Duration)
	IncGroupOutcome(outcome GroupOutcome)
	IncResults(kind string, n int)
	IncKernelRetry(platform string)
	SetActiveWorkers(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObservePassDuration(time.Duration)            {}
func (NoopRecorder) ObserveExecuteDuration(string, time.Duration) {}
func (NoopRecorder) IncGroupOutcome(GroupOutcome)                 {}
func (NoopRecorder) IncResults(string, int)                       {}
func (NoopRecorder) IncKernelRetry(string)                        {}
func (NoopRecorder) SetActiveWorkers(int)                         {}
