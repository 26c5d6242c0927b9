package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// StatusCmd implements the 'status' command.
type StatusCmd struct {
	Discover bool `help:"Discover content before reporting"`
}

func (s *StatusCmd) Run(g *Global, root *CLI) error {
	return withApp(root, appOptions{}, func(ctx context.Context, app *App) error {
		if s.Discover {
			if _, _, err := app.Driver.Discover(ctx); err != nil {
				return err
			}
		}
		groups, refs, err := app.Store.UnevaluatedGroups(ctx)
		if err != nil {
			return err
		}
		if len(groups) == 0 {
			_, _ = fmt.Fprintln(g.Out, "all code blocks are evaluated")
			return nil
		}
		for _, grp := range groups {
			pending := 0
			platforms := map[string]bool{}
			for _, b := range grp.Blocks {
				if !b.Evaluated() {
					pending++
				}
				platforms[b.Platform] = true
			}
			names := make([]string, 0, len(platforms))
			for p := range platforms {
				names = append(names, p)
			}
			sort.Strings(names)
			_, _ = fmt.Fprintf(g.Out, "%s: %d of %d blocks pending [%s]\n",
				grp.Source.Path, pending, len(grp.Blocks), strings.Join(names, ", "))
		}
		_, _ = fmt.Fprintf(g.Out, "%d references\n", len(refs))
		return nil
	})
}
