// Command deckform reads presentations, applies pending edits to them and
// snapshots editing sessions.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/tsawler/deckform/internal/config"
	"github.com/tsawler/deckform/internal/logging"
)

const version = "0.1.0"

// CLI defines the command-line interface for deckform.
var CLI struct {
	// Global flags
	EnvFile  string `name:"env-file" help:"Read settings from this file instead of .env" type:"existingfile"`
	LogLevel string `name:"log-level" help:"Override DECKFORM_LOG_LEVEL (debug, info, warn, error)"`

	Extract ExtractCmd `cmd:"" help:"Print the shapes of a presentation as JSON"`
	Apply   ApplyCmd   `cmd:"" help:"Write changes into a presentation"`
	Bundle  BundleCmd  `cmd:"" help:"Snapshot a presentation with its changes and images"`
	Restore RestoreCmd `cmd:"" help:"Export a presentation from a snapshot"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// app is what every command runs with.
type app struct {
	cfg config.Config
	log *slog.Logger
	out io.Writer
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run(a *app) error {
	fmt.Fprintf(a.out, "deckform %s\n", version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("deckform"),
		kong.Description("Presentation editing engine"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	var files []string
	if CLI.EnvFile != "" {
		files = append(files, CLI.EnvFile)
	}
	cfg, err := config.Load(files...)
	ctx.FatalIfErrorf(err)
	if CLI.LogLevel != "" {
		cfg.LogLevel = CLI.LogLevel
	}
	log := logging.InitLogger(logging.ParseLevel(cfg.LogLevel), logging.ParseFormat(cfg.LogFormat))

	err = ctx.Run(&app{cfg: cfg, log: log, out: os.Stdout})
	ctx.FatalIfErrorf(err)
}
