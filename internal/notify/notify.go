// Package notify publishes evaluation events so other services (site
// rebuilders, dashboards) can react to freshly cached results.
package notify

import (
	"context"
	"time"
)

// SourceEvaluated is emitted once per source group after its results are stored.
type SourceEvaluated struct {
	PassID    string    `json:"pass_id"`
	Source    string    `json:"source"`
	Blocks    int       `json:"blocks"`
	Results   int       `json:"results"`
	Errors    int       `json:"errors"`
	Timestamp time.Time `json:"timestamp"`
}

// PassCompleted summarizes one evaluation pass.
type PassCompleted struct {
	PassID     string        `json:"pass_id"`
	Groups     int           `json:"groups"`
	Evaluated  int           `json:"evaluated"`
	Failed     int           `json:"failed"`
	Touched    []string      `json:"touched,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Notifier publishes evaluation events.
type Notifier interface {
	SourceEvaluated(ctx context.Context, ev SourceEvaluated) error
	PassCompleted(ctx context.Context, ev PassCompleted) error
	Close() error
}

// NoopNotifier discards every event.
type NoopNotifier struct{}

func (NoopNotifier) SourceEvaluated(context.Context, SourceEvaluated) error { return nil }
func (NoopNotifier) PassCompleted(context.Context, PassCompleted) error     { return nil }
func (NoopNotifier) Close() error                                          { return nil }
