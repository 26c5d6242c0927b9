// Package commands implements the sagecache command line.
package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sagecache/internal/config"
	"git.home.luguber.info/inful/sagecache/internal/observability"
)

// Global is shared with every subcommand.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path (YAML or TOML)" default:"sagecache.yaml" env:"SAGECACHE_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build     BuildCmd     `cmd:"" help:"Discover, evaluate and render all content"`
	Evaluate  EvaluateCmd  `cmd:"" help:"Discover content and run one evaluation pass without rendering"`
	Status    StatusCmd    `cmd:"" help:"List sources with unevaluated code blocks"`
	Watch     WatchCmd     `cmd:"" help:"Rebuild whenever content changes"`
	Permalink PermalinkCmd `cmd:"" help:"Compute the shareable permalink of a source"`
	Init      InitCmd      `cmd:"" help:"Write an example configuration file"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(observability.NewLogger(os.Stderr, level, "text"))
	return nil
}

// loadConfig loads the configuration and switches the default logger to the
// configured level and format. --verbose keeps debug logging.
func loadConfig(root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	level := observability.ParseLevel(string(cfg.Logging.Level))
	if root.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(observability.NewLogger(os.Stderr, level, string(cfg.Logging.Format)))
	return cfg, nil
}
