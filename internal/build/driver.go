package build

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/sagecache/internal/document"
	"git.home.luguber.info/inful/sagecache/internal/evaluate"
	"git.home.luguber.info/inful/sagecache/internal/foundation/errors"
	"git.home.luguber.info/inful/sagecache/internal/logfields"
	"git.home.luguber.info/inful/sagecache/internal/observability"
)

// Store is the evaluation cache as the build phases use it.
type Store interface {
	document.Registry
	document.Reader
}

// Evaluator runs one evaluation pass.
type Evaluator interface {
	Run(ctx context.Context) (evaluate.Report, error)
}

// Options locate content and output.
type Options struct {
	ContentDir string
	OutputDir  string
	Extensions []string
	// Force renders every file, not only the ones that changed.
	Force bool
}

// Driver runs builds. Only one build runs at a time; a build requested while
// another is running is skipped.
type Driver struct {
	store     Store
	renderer  *document.Renderer
	evaluator Evaluator
	opts      Options
	now       func() time.Time

	mu sync.Mutex
}

// NewDriver returns a driver over store. Set the evaluator with WithEvaluator.
func NewDriver(store Store, renderer *document.Renderer, opts Options) *Driver {
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".md"}
	}
	return &Driver{store: store, renderer: renderer, opts: opts, now: time.Now}
}

// WithEvaluator sets the evaluation pass run between discovery and rendering.
func (d *Driver) WithEvaluator(e Evaluator) *Driver {
	d.evaluator = e
	return d
}

// Run performs Discover, Evaluate and Render.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	res := &Result{StartTime: time.Now()}
	if !d.mu.TryLock() {
		slog.Info("Build already running; skipping")
		res.finish(StatusSkipped)
		return res, nil
	}
	defer d.mu.Unlock()

	files, err := d.Files()
	if err != nil {
		res.finish(StatusFailed)
		return res, err
	}
	res.Files = len(files)

	dctx := observability.WithPhase(ctx, "discover")
	unchanged, failed, err := d.discover(dctx, files)
	res.Unchanged = unchanged
	res.Failed = append(res.Failed, failed...)
	if err != nil {
		return res, d.abort(ctx, res, err)
	}

	dirty := map[string]bool{}
	if d.evaluator != nil {
		rep, err := d.evaluator.Run(ctx)
		res.Evaluation = rep
		if err != nil {
			return res, d.abort(ctx, res, err)
		}
		for _, src := range rep.Evaluated {
			dirty[src] = true
		}
	}

	renderable := slices.DeleteFunc(slices.Clone(files), func(f string) bool {
		return slices.Contains(res.Failed, f)
	})
	rctx := observability.WithPhase(ctx, "render")
	rendered, failed, err := d.render(rctx, renderable, dirty)
	res.Rendered = rendered
	res.Failed = append(res.Failed, failed...)
	if err != nil {
		return res, d.abort(ctx, res, err)
	}

	res.finish(StatusSuccess)
	observability.InfoContext(ctx, "Build complete",
		slog.Int("files", res.Files),
		slog.Int("unchanged", res.Unchanged),
		slog.Int("rendered", res.Rendered),
		slog.Int("failed", len(res.Failed)),
		logfields.DurationMS(float64(res.Duration.Milliseconds())))
	return res, nil
}

func (d *Driver) abort(ctx context.Context, res *Result, err error) error {
	if ctx.Err() != nil {
		res.finish(StatusCancelled)
		return ctx.Err()
	}
	res.finish(StatusFailed)
	return err
}

// Discover records the code blocks of every content file.
func (d *Driver) Discover(ctx context.Context) (unchanged int, failed []string, err error) {
	files, err := d.Files()
	if err != nil {
		return 0, nil, err
	}
	return d.discover(observability.WithPhase(ctx, "discover"), files)
}

func (d *Driver) discover(ctx context.Context, files []string) (unchanged int, failed []string, err error) {
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return unchanged, failed, err
		}
		content, err := os.ReadFile(d.contentPath(rel))
		if err != nil {
			return unchanged, failed, errors.FileSystemError("read content file").
				WithCause(err).WithContext("source", rel).Build()
		}
		out, err := document.Discover(ctx, d.store, rel, content)
		if err != nil {
			if errors.HasCategory(err, errors.CategoryDocument) {
				observability.WarnContext(ctx, "Skipping unparsable document",
					logfields.Source(rel), logfields.Error(err))
				failed = append(failed, rel)
				continue
			}
			return unchanged, failed, err
		}
		if out.Unchanged {
			unchanged++
		}
	}
	return unchanged, failed, nil
}

// Render writes every content file that changed, or all with Force.
func (d *Driver) Render(ctx context.Context) (int, []string, error) {
	files, err := d.Files()
	if err != nil {
		return 0, nil, err
	}
	return d.render(observability.WithPhase(ctx, "render"), files, nil)
}

func (d *Driver) render(ctx context.Context, files []string, dirty map[string]bool) (int, []string, error) {
	var (
		rendered int
		failed   []string
	)
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return rendered, failed, err
		}
		src, dst := d.contentPath(rel), d.outputPath(rel)
		if !d.opts.Force && !dirty[rel] && upToDate(src, dst) {
			continue
		}
		content, err := os.ReadFile(src)
		if err != nil {
			return rendered, failed, errors.FileSystemError("read content file").
				WithCause(err).WithContext("source", rel).Build()
		}
		out, err := d.renderer.Render(ctx, rel, content)
		if err != nil {
			if errors.HasCategory(err, errors.CategoryDocument) {
				observability.WarnContext(ctx, "Skipping unrenderable document",
					logfields.Source(rel), logfields.Error(err))
				failed = append(failed, rel)
				continue
			}
			return rendered, failed, err
		}
		if err := writeFile(dst, out); err != nil {
			return rendered, failed, err
		}
		rendered++
	}
	return rendered, failed, nil
}

// Touch marks a source dirty by bumping its modification time, so the next
// render rewrites its output. Sources without a content file are ignored.
func (d *Driver) Touch(_ context.Context, source string) error {
	now := d.now()
	err := os.Chtimes(d.contentPath(source), now, now)
	if err != nil && os.IsNotExist(err) {
		slog.Debug("Touched source has no content file", logfields.Source(source))
		return nil
	}
	if err != nil {
		return errors.FileSystemError("touch source").WithCause(err).WithContext("source", source).Build()
	}
	return nil
}

// Files lists content files relative to the content directory, slash
// separated and sorted. Hidden directories are skipped.
func (d *Driver) Files() ([]string, error) {
	var files []string
	root := d.opts.ContentDir
	err := filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if p != root && strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !slices.Contains(d.opts.Extensions, strings.ToLower(filepath.Ext(p))) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.FileSystemError("list content files").
			WithCause(err).WithContext("dir", root).Build()
	}
	sort.Strings(files)
	return files, nil
}

func (d *Driver) contentPath(rel string) string {
	return filepath.Join(d.opts.ContentDir, filepath.FromSlash(rel))
}

func (d *Driver) outputPath(rel string) string {
	return filepath.Join(d.opts.OutputDir, filepath.FromSlash(rel))
}

func upToDate(src, dst string) bool {
	si, err := os.Stat(src)
	if err != nil {
		return false
	}
	di, err := os.Stat(dst)
	if err != nil {
		return false
	}
	return !si.ModTime().After(di.ModTime())
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.FileSystemError("create output directory").WithCause(err).WithContext("path", path).Build()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.FileSystemError("write output").WithCause(err).WithContext("path", path).Build()
	}
	return nil
}
