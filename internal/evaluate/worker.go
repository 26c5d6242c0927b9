package evaluate

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/sagecache/internal/evalstore"
	"git.home.luguber.info/inful/sagecache/internal/foundation/errors"
	"git.home.luguber.info/inful/sagecache/internal/logfields"
	"git.home.luguber.info/inful/sagecache/internal/observability"
	"git.home.luguber.info/inful/sagecache/internal/result"
)

// maxAttempts is one run plus a single retry on a fresh session.
const maxAttempts = 2

type blockOutcome struct {
	block   evalstore.CodeBlock
	results []result.Result
}

type groupOutcome struct {
	group       evalstore.Group
	blocks      []blockOutcome
	skipped     []evalstore.CodeBlock
	unsupported []string
	attempts    int
	err         error
}

// runGroup executes a group's blocks in order on the group's own clients. A
// failure resets every client of the group and runs the whole group again
// once; results of a failed attempt are discarded.
func (o *Orchestrator) runGroup(ctx context.Context, g evalstore.Group, clients map[string]Client, unsupported []string) groupOutcome {
	out := groupOutcome{group: g, unsupported: unsupported}
	var runnable []evalstore.CodeBlock
	for _, b := range g.Blocks {
		if _, ok := clients[b.Platform]; ok {
			runnable = append(runnable, b)
		} else {
			out.skipped = append(out.skipped, b)
		}
	}
	if !anyRunnable(g.Pending(), clients) {
		// Re-running evaluated blocks cannot settle blocks nobody can run.
		return out
	}

	ctx, span := observability.StartGroupSpan(ctx, g.Source.Path, len(runnable))
	defer func() { observability.EndSpan(span, out.err) }()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out.attempts = attempt
		blocks, err := o.executeBlocks(ctx, runnable, clients, attempt)
		if err == nil {
			out.blocks = blocks
			out.err = nil
			return out
		}
		out.err = err
		if ctx.Err() != nil || attempt == maxAttempts {
			break
		}
		observability.WarnContext(ctx, "Session failed; retrying group on a fresh session",
			logfields.Attempt(attempt), logfields.Error(err))
		for platform, c := range clients {
			c.Reset()
			o.recorder.IncKernelRetry(platform)
		}
	}
	return out
}

func anyRunnable(blocks []evalstore.CodeBlock, clients map[string]Client) bool {
	for _, b := range blocks {
		if _, ok := clients[b.Platform]; ok {
			return true
		}
	}
	return false
}

func (o *Orchestrator) executeBlocks(ctx context.Context, blocks []evalstore.CodeBlock, clients map[string]Client, attempt int) ([]blockOutcome, error) {
	out := make([]blockOutcome, 0, len(blocks))
	for _, b := range blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := clients[b.Platform]
		bctx := observability.WithPlatform(ctx, b.Platform)
		observability.DebugContext(bctx, "Executing code block",
			logfields.CodeID(b.ID), logfields.Order(b.Order), logfields.Attempt(attempt))

		ectx, span := observability.StartExecuteSpan(bctx, b.Platform, b.ID, attempt)
		start := o.now()
		resp, err := c.Execute(ectx, b.Content)
		o.recorder.ObserveExecuteDuration(b.Platform, o.now().Sub(start))
		observability.EndSpan(span, err)
		if err != nil {
			return nil, errors.KernelError("execute code block").
				WithCause(err).
				WithContext("code_id", b.ID).
				WithContext("order", b.Order).
				Build()
		}
		out = append(out, blockOutcome{block: b, results: c.Classify(resp)})
	}
	return out, nil
}

func logSkipped(ctx context.Context, out groupOutcome) {
	for _, p := range out.unsupported {
		observability.WarnContext(ctx, "No backend for platform; blocks left unevaluated",
			logfields.Platform(p))
	}
	if len(out.skipped) > 0 {
		slog.Debug("Skipped blocks", logfields.Source(out.group.Source.Path), slog.Int("count", len(out.skipped)))
	}
}
