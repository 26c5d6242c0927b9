package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sagecache/internal/build"
	"git.home.luguber.info/inful/sagecache/internal/config"
	"git.home.luguber.info/inful/sagecache/internal/evaluate"
	"git.home.luguber.info/inful/sagecache/internal/kernel"
	"git.home.luguber.info/inful/sagecache/internal/result"
)

const page = "# Page\n\n```sage\nprint(6 * 7)\n```\n"

// echoClient answers every block with one stream result.
type echoClient struct{}

func (echoClient) Execute(context.Context, string, ...kernel.ExecuteOption) (kernel.Response, error) {
	return kernel.Response{}, nil
}

func (echoClient) Classify(kernel.Response) []result.Result {
	return []result.Result{result.Stream{Order: 1, Mime: result.MimeTextPlain, Data: "42"}}
}
func (echoClient) Reset()                  {}
func (echoClient) Cleanup(context.Context) {}

func project(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := filepath.Join(dir, "content")
	require.NoError(t, os.MkdirAll(content, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(content, "page.md"), []byte(page), 0o644))

	cfg := "db_path: " + filepath.Join(dir, "state", "content.db") + "\n" +
		"file_base_path: " + filepath.Join(dir, "files") + "\n" +
		"content:\n  dir: " + content + "\n  output: " + filepath.Join(dir, "out") + "\n"
	path := filepath.Join(dir, "sagecache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Vars{"version": "test"}, kong.Exit(func(int) {}))
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	require.NoError(t, err)
	var out bytes.Buffer
	err = ctx.Run(&Global{Out: &out}, &cli)
	return out.String(), err
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sagecache.yaml")
	out, err := run(t, "-c", path, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	_, err = run(t, "-c", path, "init")
	require.Error(t, err)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Backends)
}

func TestStatus_ListsPendingSources(t *testing.T) {
	path := project(t)

	out, err := run(t, "-c", path, "status")
	require.NoError(t, err)
	assert.Equal(t, "all code blocks are evaluated\n", out)

	out, err = run(t, "-c", path, "status", "--discover")
	require.NoError(t, err)
	assert.Contains(t, out, "page.md: 1 of 1 blocks pending [sage]")
}

func TestPermalink(t *testing.T) {
	path := project(t)
	_, err := run(t, "-c", path, "status", "--discover")
	require.NoError(t, err)

	out, err := run(t, "-c", path, "permalink", "page.md", "--base", "z=")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "z="))

	_, err = run(t, "-c", path, "permalink", "missing.md")
	require.Error(t, err)
}

func TestOpenApp_BuildWithBackend(t *testing.T) {
	cfg, err := config.Load(project(t))
	require.NoError(t, err)

	app, err := OpenApp(t.Context(), cfg, appOptions{
		backends: []evaluate.Option{evaluate.WithBackend("sage", func() evaluate.Client { return echoClient{} })},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	res, err := app.Driver.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, build.StatusSuccess, res.Status)
	assert.Equal(t, []string{"page.md"}, res.Evaluation.Evaluated)

	got, err := os.ReadFile(filepath.Join(cfg.Content.Output, "page.md"))
	require.NoError(t, err)
	assert.Contains(t, string(got), `<pre class="sage-stream">42</pre>`)
}
