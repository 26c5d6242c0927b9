// Package evaluate runs evaluation passes: it finds the sources with
// unevaluated code blocks, executes each source's blocks in order on its own
// kernel session, stores the results and touches sources linked by references
// so their rendered output is rebuilt.
package evaluate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/sagecache/internal/evalstore"
	"git.home.luguber.info/inful/sagecache/internal/kernel"
	"git.home.luguber.info/inful/sagecache/internal/metrics"
	"git.home.luguber.info/inful/sagecache/internal/notify"
	"git.home.luguber.info/inful/sagecache/internal/result"
)

// State is the phase of the current pass.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateDispatching
	StateCollecting
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateDispatching:
		return "dispatching"
	case StateCollecting:
		return "collecting"
	case StateFinalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Client is one kernel session as the orchestrator uses it.
type Client interface {
	Execute(ctx context.Context, code string, opts ...kernel.ExecuteOption) (kernel.Response, error)
	Classify(resp kernel.Response) []result.Result
	Reset()
	Cleanup(ctx context.Context)
}

// NewClientFunc returns a fresh, unconnected client.
type NewClientFunc func() Client

// Store is the part of the evaluation cache a pass needs.
type Store interface {
	UnevaluatedGroups(ctx context.Context) ([]evalstore.Group, []evalstore.Reference, error)
	RecordEvaluation(ctx context.Context, codeID int64, rs []result.Result) error
	ComputePermalink(ctx context.Context, path string) (string, error)
}

// TouchFunc marks a source dirty so the next render rebuilds it.
type TouchFunc func(ctx context.Context, source string) error

// Orchestrator runs evaluation passes. Run is not re-entrant: a call made
// while a pass is in progress returns immediately.
type Orchestrator struct {
	store      Store
	backends   map[string]NewClientFunc
	touch      TouchFunc
	recorder   metrics.Recorder
	notifier   notify.Notifier
	maxWorkers int
	now        func() time.Time

	running atomic.Bool
	state   atomic.Int32
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBackend registers the client constructor for a platform.
func WithBackend(platform string, newClient NewClientFunc) Option {
	return func(o *Orchestrator) { o.backends[platform] = newClient }
}

// WithKernelFactory registers a kernel factory for its platform.
func WithKernelFactory(f *kernel.Factory) Option {
	return WithBackend(f.Platform(), func() Client { return f.New() })
}

// WithTouch sets the primitive used to mark referenced sources dirty.
func WithTouch(fn TouchFunc) Option {
	return func(o *Orchestrator) { o.touch = fn }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithNotifier sets where evaluation events are published.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithMaxWorkers bounds how many source groups run at once. Zero means one
// worker per group.
func WithMaxWorkers(n int) Option {
	return func(o *Orchestrator) { o.maxWorkers = n }
}

// New returns an orchestrator over store.
func New(store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		backends: map[string]NewClientFunc{},
		touch:    func(context.Context, string) error { return nil },
		recorder: metrics.NoopRecorder{},
		notifier: notify.NoopNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the phase of the pass in progress, or StateIdle.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}

// Platforms lists the platforms with a registered backend.
func (o *Orchestrator) Platforms() []string {
	out := make([]string, 0, len(o.backends))
	for p := range o.backends {
		out = append(out, p)
	}
	return out
}
