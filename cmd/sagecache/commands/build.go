package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/sagecache/internal/build"
	"git.home.luguber.info/inful/sagecache/internal/foundation/errors"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Force bool `short:"f" help:"Render every file, not only changed ones"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	return withApp(root, appOptions{force: b.Force}, func(ctx context.Context, app *App) error {
		res, err := app.Driver.Run(ctx)
		if err != nil {
			return err
		}
		printBuild(g, res)
		if len(res.Failed) > 0 {
			return errors.BuildError(fmt.Sprintf("%d documents failed", len(res.Failed))).
				WithContext("failed", res.Failed).Build()
		}
		return nil
	})
}

func printBuild(g *Global, res *build.Result) {
	ev := res.Evaluation
	_, _ = fmt.Fprintf(g.Out, "%s: %d files, %d unchanged, %d rendered\n",
		res.Status, res.Files, res.Unchanged, res.Rendered)
	if len(ev.Evaluated) > 0 || len(ev.Failed) > 0 {
		_, _ = fmt.Fprintf(g.Out, "evaluated %d sources (%d blocks, %d results, %d errors), %d failed\n",
			len(ev.Evaluated), ev.Blocks, ev.Results, ev.Errors, len(ev.Failed))
	}
	for _, f := range res.Failed {
		_, _ = fmt.Fprintf(g.Out, "failed: %s\n", f)
	}
}
