package build

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sagecache/internal/document"
	"git.home.luguber.info/inful/sagecache/internal/evalstore"
	"git.home.luguber.info/inful/sagecache/internal/evaluate"
	"git.home.luguber.info/inful/sagecache/internal/result"
)

const page = "# Page\n\n```sage\nprint(1)\n```\n"

type fakeEvaluator struct {
	store   *evalstore.Store
	calls   int
	block   chan struct{}
	started chan struct{}
}

// Run records a stream result for every block of every unevaluated group.
func (f *fakeEvaluator) Run(ctx context.Context) (evaluate.Report, error) {
	f.calls++
	if f.started != nil {
		close(f.started)
		<-f.block
	}
	groups, _, err := f.store.UnevaluatedGroups(ctx)
	if err != nil {
		return evaluate.Report{}, err
	}
	var rep evaluate.Report
	for _, g := range groups {
		for _, b := range g.Blocks {
			if err := f.store.RecordEvaluation(ctx, b.ID, []result.Result{
				result.Stream{Order: 1, Mime: result.MimeTextPlain, Data: "1"},
			}); err != nil {
				return rep, err
			}
		}
		rep.Evaluated = append(rep.Evaluated, g.Source.Path)
	}
	return rep, nil
}

func setup(t *testing.T) (*Driver, *fakeEvaluator, string, string) {
	t.Helper()
	s, err := evalstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	content, out := t.TempDir(), t.TempDir()
	write(t, content, "a.md", page)
	write(t, content, "sub/b.md", "# B\n\nNo code here.\n")
	write(t, content, "notes.txt", "ignored")
	write(t, content, ".hidden/c.md", page)

	ev := &fakeEvaluator{store: s}
	drv := NewDriver(s, document.NewRenderer(s), Options{ContentDir: content, OutputDir: out}).WithEvaluator(ev)
	return drv, ev, content, out
}

func write(t *testing.T, dir, rel, body string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
}

func TestDriver_Files(t *testing.T) {
	drv, _, _, _ := setup(t)
	files, err := drv.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "sub/b.md"}, files)
}

func TestDriver_RunRendersOutput(t *testing.T) {
	drv, ev, _, out := setup(t)

	res, err := drv.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 2, res.Rendered)
	assert.Equal(t, []string{"a.md"}, res.Evaluation.Evaluated)
	assert.Equal(t, 1, ev.calls)

	got, err := os.ReadFile(filepath.Join(out, "a.md"))
	require.NoError(t, err)
	assert.Contains(t, string(got), `<pre class="sage-stream">1</pre>`)
	_, err = os.Stat(filepath.Join(out, "sub", "b.md"))
	require.NoError(t, err)
}

func TestDriver_SecondRunIsIncremental(t *testing.T) {
	drv, _, _, _ := setup(t)
	_, err := drv.Run(t.Context())
	require.NoError(t, err)

	res, err := drv.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Unchanged)
	assert.Equal(t, 0, res.Rendered)
	assert.Empty(t, res.Evaluation.Evaluated)

	drv.opts.Force = true
	res, err = drv.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rendered)
}

func TestDriver_EditedSourceIsRerendered(t *testing.T) {
	drv, _, content, out := setup(t)
	_, err := drv.Run(t.Context())
	require.NoError(t, err)

	write(t, content, "a.md", strings.Replace(page, "print(1)", "print(2)", 1))
	// Force the source to be newer than its output regardless of clock granularity.
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(content, "a.md"), future, future))

	res, err := drv.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unchanged)
	assert.Equal(t, []string{"a.md"}, res.Evaluation.Evaluated)
	assert.Equal(t, 1, res.Rendered)

	got, err := os.ReadFile(filepath.Join(out, "a.md"))
	require.NoError(t, err)
	assert.Contains(t, string(got), "print(2)")
}

func TestDriver_UnparsableDocumentIsReported(t *testing.T) {
	drv, _, content, _ := setup(t)
	write(t, content, "broken.md", "---\ntitle: never closed\n")

	res, err := drv.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, []string{"broken.md"}, res.Failed)
	assert.Equal(t, 2, res.Rendered)
}

func TestDriver_Touch(t *testing.T) {
	drv, _, content, _ := setup(t)
	stamp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	drv.now = func() time.Time { return stamp }

	require.NoError(t, drv.Touch(t.Context(), "a.md"))
	fi, err := os.Stat(filepath.Join(content, "a.md"))
	require.NoError(t, err)
	assert.True(t, fi.ModTime().Equal(stamp))

	require.NoError(t, drv.Touch(t.Context(), "missing.md"))
}

func TestDriver_ConcurrentRunIsSkipped(t *testing.T) {
	drv, ev, _, _ := setup(t)
	ev.block = make(chan struct{})
	ev.started = make(chan struct{})

	done := make(chan *Result)
	go func() {
		res, _ := drv.Run(context.Background())
		done <- res
	}()
	<-ev.started

	res, err := drv.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.True(t, res.Status.IsSuccess())

	close(ev.block)
	first := <-done
	assert.Equal(t, StatusSuccess, first.Status)
}

func TestDriver_CancelledRun(t *testing.T) {
	drv, _, _, _ := setup(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	res, err := drv.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusCancelled, res.Status)
}
