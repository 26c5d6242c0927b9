package evaluate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/sagecache/internal/evalstore"
	"git.home.luguber.info/inful/sagecache/internal/logfields"
	"git.home.luguber.info/inful/sagecache/internal/metrics"
	"git.home.luguber.info/inful/sagecache/internal/notify"
	"git.home.luguber.info/inful/sagecache/internal/observability"
	"git.home.luguber.info/inful/sagecache/internal/result"
)

// Report summarizes one pass.
type Report struct {
	PassID string
	// Skipped is set when another pass was already running.
	Skipped   bool
	Groups    int
	Evaluated []string
	Failed    []string
	Blocks    int
	Results   int
	Errors    int
	Touched   []string
	Duration  time.Duration
}

// Run performs one evaluation pass. Group failures are reported, not
// returned; the error is reserved for store failures and cancellation.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	if !o.running.CompareAndSwap(false, true) {
		slog.Info("Evaluation pass already in progress; ignoring trigger")
		return Report{Skipped: true}, nil
	}
	defer func() {
		o.setState(StateIdle)
		o.running.Store(false)
	}()

	sess := newBuildSession(o.now())
	ctx = observability.WithPhase(observability.WithPassID(ctx, sess.PassID), "evaluate")
	ctx, span := observability.StartPassSpan(ctx, sess.PassID)

	rep, err := o.pass(ctx, sess)
	rep.PassID = sess.PassID
	rep.Duration = o.now().Sub(sess.Started)
	o.recorder.ObservePassDuration(rep.Duration)
	observability.EndSpan(span, err)
	if err != nil {
		return rep, err
	}

	if nerr := o.notifier.PassCompleted(ctx, notify.PassCompleted{
		PassID:     rep.PassID,
		Groups:     rep.Groups,
		Evaluated:  len(rep.Evaluated),
		Failed:     len(rep.Failed),
		Touched:    rep.Touched,
		Duration:   rep.Duration,
		FinishedAt: o.now(),
	}); nerr != nil {
		observability.WarnContext(ctx, "Failed to publish pass summary", logfields.Error(nerr))
	}
	observability.InfoContext(ctx, "Evaluation pass complete",
		slog.Int("groups", rep.Groups),
		slog.Int("evaluated", len(rep.Evaluated)),
		slog.Int("failed", len(rep.Failed)),
		slog.Int("blocks", rep.Blocks),
		logfields.DurationMS(float64(rep.Duration.Milliseconds())))
	return rep, nil
}

func (o *Orchestrator) pass(ctx context.Context, sess *BuildSession) (Report, error) {
	var rep Report

	o.setState(StateScanning)
	groups, refs, err := o.store.UnevaluatedGroups(ctx)
	if err != nil {
		return rep, err
	}
	rep.Groups = len(groups)
	observability.InfoContext(ctx, "Scanned for unevaluated code",
		slog.Int("groups", len(groups)), slog.Int("references", len(refs)))

	o.setState(StateDispatching)
	type bound struct {
		group       evalstore.Group
		clients     map[string]Client
		unsupported []string
	}
	work := make([]bound, 0, len(groups))
	for _, g := range groups {
		clients, unsupported := sess.bind(g, o.backends)
		work = append(work, bound{group: g, clients: clients, unsupported: unsupported})
	}

	outcomes := make(chan groupOutcome)
	var wg sync.WaitGroup
	var sem chan struct{}
	if o.maxWorkers > 0 {
		sem = make(chan struct{}, o.maxWorkers)
	}
	var active sync.Mutex
	activeWorkers := 0
	setActive := func(delta int) {
		active.Lock()
		activeWorkers += delta
		o.recorder.SetActiveWorkers(activeWorkers)
		active.Unlock()
	}
	for _, w := range work {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					outcomes <- groupOutcome{group: w.group, err: ctx.Err()}
					return
				}
			}
			setActive(1)
			defer setActive(-1)
			gctx := observability.WithSource(ctx, w.group.Source.Path)
			out := o.runGroup(gctx, w.group, w.clients, w.unsupported)
			sess.release(context.WithoutCancel(gctx), w.group.Source.Path)
			outcomes <- out
		}()
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	o.setState(StateCollecting)
	for out := range outcomes {
		o.collect(ctx, sess, out, &rep)
	}
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	o.setState(StateFinalizing)
	for _, src := range sess.Touched() {
		if _, err := o.store.ComputePermalink(ctx, src); err != nil {
			observability.WarnContext(ctx, "Failed to compute permalink",
				logfields.Source(src), logfields.Error(err))
		}
	}
	touched := map[string]struct{}{}
	for _, ref := range refs {
		for _, src := range []string{ref.From, ref.To} {
			if _, done := touched[src]; done {
				continue
			}
			touched[src] = struct{}{}
			if err := o.touch(ctx, src); err != nil {
				observability.WarnContext(ctx, "Failed to touch referenced source",
					logfields.Source(src), logfields.Error(err))
				continue
			}
			rep.Touched = append(rep.Touched, src)
		}
	}
	return rep, nil
}

// collect persists one group's outcome. Stored results replace whatever the
// block had, so a retried group never leaves duplicates.
func (o *Orchestrator) collect(ctx context.Context, sess *BuildSession, out groupOutcome, rep *Report) {
	src := out.group.Source.Path
	gctx := observability.WithSource(ctx, src)
	logSkipped(gctx, out)

	if out.err != nil {
		rep.Failed = append(rep.Failed, src)
		o.recorder.IncGroupOutcome(metrics.GroupFailed)
		observability.ErrorContext(gctx, "Group evaluation failed; blocks stay unevaluated",
			logfields.Attempt(out.attempts), logfields.Error(out.err))
		return
	}
	if len(out.blocks) == 0 {
		o.recorder.IncGroupOutcome(metrics.GroupSkipped)
		return
	}

	ev := notify.SourceEvaluated{PassID: sess.PassID, Source: src}
	stored := 0
	for _, bo := range out.blocks {
		for _, r := range bo.results {
			if e, ok := r.(result.Error); ok {
				observability.WarnContext(gctx, "Code block raised an error",
					logfields.CodeID(bo.block.ID), logfields.Order(bo.block.Order),
					slog.String("ename", e.EName), slog.String("evalue", e.EValue))
				ev.Errors++
			}
			o.recorder.IncResults(r.Kind().String(), 1)
		}
		if err := o.store.RecordEvaluation(ctx, bo.block.ID, bo.results); err != nil {
			observability.ErrorContext(gctx, "Failed to store evaluation",
				logfields.CodeID(bo.block.ID), logfields.Error(err))
			continue
		}
		stored++
		ev.Results += len(bo.results)
	}
	if stored == 0 {
		rep.Failed = append(rep.Failed, src)
		o.recorder.IncGroupOutcome(metrics.GroupFailed)
		return
	}

	sess.markTouched(src)
	rep.Evaluated = append(rep.Evaluated, src)
	rep.Blocks += stored
	rep.Results += ev.Results
	rep.Errors += ev.Errors
	if out.attempts > 1 {
		o.recorder.IncGroupOutcome(metrics.GroupRetried)
	} else {
		o.recorder.IncGroupOutcome(metrics.GroupSuccess)
	}

	ev.Blocks = stored
	ev.Timestamp = o.now()
	if err := o.notifier.SourceEvaluated(ctx, ev); err != nil {
		observability.WarnContext(gctx, "Failed to publish source evaluation", logfields.Error(err))
	}
}
