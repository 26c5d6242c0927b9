// Package watch rebuilds the site when content changes and, optionally, on a
// fixed interval.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/sagecache/internal/build"
	"git.home.luguber.info/inful/sagecache/internal/logfields"
)

// Runner performs one build.
type Runner interface {
	Run(ctx context.Context) (*build.Result, error)
}

// Options configure a Watcher.
type Options struct {
	// Debounce is how long the content tree must be quiet before a build starts.
	Debounce time.Duration
	// Interval, when positive, schedules a build at that period regardless of
	// file events. Evaluation failures left for a later pass are retried this way.
	Interval time.Duration
	// Ignore lists directories whose events never trigger a build, typically
	// the output directory when it lives inside the content tree.
	Ignore []string
}

// Watcher runs builds in response to content changes. Builds never overlap:
// triggers arriving during a build coalesce into one follow-up build.
type Watcher struct {
	runner  Runner
	dir     string
	opts    Options
	fs      *fsnotify.Watcher
	sched   gocron.Scheduler
	trigger chan struct{}
	builds  chan *build.Result
}

// New creates a watcher over the content directory dir.
func New(runner Runner, dir string, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve content dir: %w", err)
	}
	for i, p := range opts.Ignore {
		if opts.Ignore[i], err = filepath.Abs(p); err != nil {
			return nil, fmt.Errorf("failed to resolve ignored dir: %w", err)
		}
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		runner:  runner,
		dir:     abs,
		opts:    opts,
		fs:      fw,
		trigger: make(chan struct{}, 1),
	}
	if opts.Interval > 0 {
		if w.sched, err = gocron.NewScheduler(); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
		}
		if _, err := w.sched.NewJob(
			gocron.DurationJob(opts.Interval),
			gocron.NewTask(w.Trigger),
			gocron.WithName("periodic-build"),
		); err != nil {
			_ = fw.Close()
			_ = w.sched.Shutdown()
			return nil, fmt.Errorf("failed to create periodic build job: %w", err)
		}
	}
	return w, nil
}

// Builds, when called before Run, returns a channel receiving the result of
// every build. Results are dropped when the channel is not drained.
func (w *Watcher) Builds() <-chan *build.Result {
	if w.builds == nil {
		w.builds = make(chan *build.Result, 16)
	}
	return w.builds
}

// Trigger requests a build.
func (w *Watcher) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
		// already pending
	}
}

// Run builds once, then rebuilds on every trigger until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fs.Close() }()
	if err := w.addTree(w.dir); err != nil {
		return err
	}
	if w.sched != nil {
		w.sched.Start()
		defer func() {
			if err := w.sched.Shutdown(); err != nil {
				slog.Warn("Failed to stop scheduler", logfields.Error(err))
			}
		}()
	}
	slog.Info("Watching content", logfields.Path(w.dir),
		slog.Duration("debounce", w.opts.Debounce),
		slog.Duration("interval", w.opts.Interval))

	go w.eventLoop(ctx)

	w.build(ctx)
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case <-w.trigger:
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
			} else {
				timer.Reset(w.opts.Debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.build(ctx)
		}
	}
}

func (w *Watcher) build(ctx context.Context) {
	res, err := w.runner.Run(ctx)
	if err != nil && ctx.Err() == nil {
		slog.Error("Build failed", logfields.Error(err))
	}
	if w.builds != nil && res != nil {
		select {
		case w.builds <- res:
		default:
		}
	}
}

func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Error("Content watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	// Attribute changes include the modification-time bumps builds make
	// themselves; reacting to them would loop.
	if ev.Op == fsnotify.Chmod || w.ignored(ev.Name) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				slog.Warn("Failed to watch new directory", logfields.Path(ev.Name), logfields.Error(err))
			}
		}
	}
	slog.Debug("Content change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
	w.Trigger()
}

func (w *Watcher) ignored(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return true
	}
	for _, dir := range w.opts.Ignore {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// addTree watches root and every non-hidden directory below it.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if p != root && w.ignored(p) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}
