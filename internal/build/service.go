package build

import (
	"time"

	"git.home.luguber.info/inful/sagecache/internal/evaluate"
)

// Status is the outcome of a build.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// IsSuccess reports whether the build completed without a fatal error.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess || s == StatusSkipped
}

// Result describes one build.
type Result struct {
	Status Status

	// Files is the number of content files found.
	Files int
	// Unchanged counts files whose fingerprint matched the previous discovery.
	Unchanged int
	// Failed lists files that could not be parsed or rendered.
	Failed []string

	Evaluation evaluate.Report
	Rendered   int

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

func (r *Result) finish(status Status) {
	r.Status = status
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}
