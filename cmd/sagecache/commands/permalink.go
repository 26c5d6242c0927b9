package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/sagecache/internal/foundation/errors"
)

// PermalinkCmd implements the 'permalink' command.
type PermalinkCmd struct {
	Source string `arg:"" help:"Source path relative to the content directory"`
	Base   string `help:"Prefix printed before the encoded permalink" default:"https://sagecell.sagemath.org/?z="`
}

func (p *PermalinkCmd) Run(g *Global, root *CLI) error {
	return withApp(root, appOptions{}, func(ctx context.Context, app *App) error {
		link, err := app.Store.ComputePermalink(ctx, p.Source)
		if err != nil {
			return err
		}
		if link == "" {
			return errors.ValidationError("source has no code blocks").
				WithContext("source", p.Source).Build()
		}
		_, _ = fmt.Fprintln(g.Out, p.Base+link)
		return nil
	})
}
