package commands

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/sagecache/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct{}

func (w *WatchCmd) Run(_ *Global, root *CLI) error {
	return withApp(root, appOptions{}, func(ctx context.Context, app *App) error {
		cfg := app.Config
		watcher, err := watch.New(app.Driver, cfg.Content.Dir, watch.Options{
			Debounce: cfg.Watch.Debounce.Std(),
			Interval: cfg.Watch.Interval.Std(),
			Ignore:   []string{cfg.Content.Output},
		})
		if err != nil {
			return err
		}
		builds := watcher.Builds()
		go func() {
			for res := range builds {
				slog.Info("Build finished",
					slog.String("status", string(res.Status)),
					slog.Int("rendered", res.Rendered),
					slog.Int("evaluated", len(res.Evaluation.Evaluated)))
			}
		}()
		err = watcher.Run(ctx)
		slog.Info("Watcher stopped")
		return err
	})
}
