package commands

import (
	"context"
	"fmt"
	"strings"
)

// EvaluateCmd implements the 'evaluate' command.
type EvaluateCmd struct{}

func (e *EvaluateCmd) Run(g *Global, root *CLI) error {
	return withApp(root, appOptions{}, func(ctx context.Context, app *App) error {
		if _, failed, err := app.Driver.Discover(ctx); err != nil {
			return err
		} else if len(failed) > 0 {
			_, _ = fmt.Fprintf(g.Out, "unparsable: %s\n", strings.Join(failed, ", "))
		}
		rep, err := app.Orchestrator.Run(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(g.Out, "pass %s: %d groups, %d evaluated, %d failed, %d blocks, %d results, %d errors\n",
			rep.PassID, rep.Groups, len(rep.Evaluated), len(rep.Failed), rep.Blocks, rep.Results, rep.Errors)
		for _, src := range rep.Failed {
			_, _ = fmt.Fprintf(g.Out, "failed: %s\n", src)
		}
		return nil
	})
}
