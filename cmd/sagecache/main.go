package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sagecache/cmd/sagecache/commands"
	"git.home.luguber.info/inful/sagecache/internal/foundation/errors"
	"git.home.luguber.info/inful/sagecache/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("sagecache"),
		kong.Description("Evaluate code blocks in Markdown through remote Sage and Jupyter kernels and cache the results."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)
	err := parser.Run(&commands.Global{Logger: slog.Default(), Out: os.Stdout}, cli)
	os.Exit(errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).Report(os.Stderr, err))
}
