package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sagecache/internal/artifact"
	"git.home.luguber.info/inful/sagecache/internal/build"
	"git.home.luguber.info/inful/sagecache/internal/config"
	"git.home.luguber.info/inful/sagecache/internal/document"
	"git.home.luguber.info/inful/sagecache/internal/evalstore"
	"git.home.luguber.info/inful/sagecache/internal/evaluate"
	ferrors "git.home.luguber.info/inful/sagecache/internal/foundation/errors"
	"git.home.luguber.info/inful/sagecache/internal/kernel"
	"git.home.luguber.info/inful/sagecache/internal/logfields"
	"git.home.luguber.info/inful/sagecache/internal/metrics"
	"git.home.luguber.info/inful/sagecache/internal/notify"
)

const fetchTimeout = 30 * time.Second

// App holds the wired services for one command invocation.
type App struct {
	Config       *config.Config
	Store        *evalstore.Store
	Orchestrator *evaluate.Orchestrator
	Driver       *build.Driver

	notifier notify.Notifier
	metrics  *http.Server
}

// appOptions tweak wiring, mainly for tests.
type appOptions struct {
	force    bool
	backends []evaluate.Option
}

// OpenApp wires the store, kernels, orchestrator and build driver from cfg.
func OpenApp(ctx context.Context, cfg *config.Config, opts appOptions) (*App, error) {
	files, err := artifact.Open(ctx, cfg.ArtifactOptions())
	if err != nil {
		return nil, ferrors.ArtifactError("open artifact store").WithCause(err).
			WithContext("driver", string(cfg.Artifacts.Driver)).Build()
	}
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, ferrors.FileSystemError("create database directory").WithCause(err).
				WithContext("path", cfg.DBPath).Build()
		}
	}
	store, err := evalstore.Open(cfg.DBPath,
		evalstore.WithArtifacts(files),
		evalstore.WithFetcher(artifact.NewHTTPFetcher(fetchTimeout)))
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Store: store, notifier: notify.NoopNotifier{}}

	evalOpts := []evaluate.Option{evaluate.WithMaxWorkers(cfg.Evaluate.MaxWorkers)}
	for _, b := range cfg.Backends {
		f, err := kernel.NewFactory(kernel.Config{
			Platform:   b.Platform,
			Kind:       string(b.Kind),
			URL:        b.URL,
			Token:      b.Token,
			KernelName: b.KernelName,
			Timeout:    b.Timeout.Std(),
		})
		if err != nil {
			_ = app.Close(ctx)
			return nil, err
		}
		evalOpts = append(evalOpts, evaluate.WithKernelFactory(f))
	}
	evalOpts = append(evalOpts, opts.backends...)

	if cfg.Notify.NATSURL != "" {
		n, err := notify.NewNATSNotifier(ctx, cfg.Notify.NATSURL, cfg.Notify.Subject)
		if err != nil {
			_ = app.Close(ctx)
			return nil, ferrors.NetworkError("connect event notifier").WithCause(err).
				WithContext("url", cfg.Notify.NATSURL).Build()
		}
		app.notifier = n
		evalOpts = append(evalOpts, evaluate.WithNotifier(n))
	}

	if cfg.Metrics.Enabled {
		reg := prom.NewRegistry()
		evalOpts = append(evalOpts, evaluate.WithRecorder(metrics.NewPrometheusRecorder(reg)))
		app.metrics = &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           metrics.HTTPHandler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("Serving metrics", slog.String("addr", cfg.Metrics.Listen))
			if err := app.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", logfields.Error(err))
			}
		}()
	}

	app.Driver = build.NewDriver(store, document.NewRenderer(store), build.Options{
		ContentDir: cfg.Content.Dir,
		OutputDir:  cfg.Content.Output,
		Extensions: cfg.Content.Extensions,
		Force:      opts.force,
	})
	evalOpts = append(evalOpts, evaluate.WithTouch(app.Driver.Touch))
	app.Orchestrator = evaluate.New(store, evalOpts...)
	app.Driver.WithEvaluator(app.Orchestrator)
	return app, nil
}

// Close releases everything OpenApp acquired.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.metrics != nil {
		errs = append(errs, a.metrics.Shutdown(ctx))
	}
	if a.notifier != nil {
		errs = append(errs, a.notifier.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

// withApp loads configuration, wires the app and runs fn against it.
func withApp(root *CLI, opts appOptions, fn func(ctx context.Context, app *App) error) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	app, err := OpenApp(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			slog.Warn("Failed to close resources", logfields.Error(err))
		}
	}()
	return fn(ctx, app)
}
