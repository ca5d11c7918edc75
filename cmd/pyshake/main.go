package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/pyshake/pkg/config"
)

var (
	version = "dev"
	commit  = "none"    // set via ldflags at build time
	date    = "unknown" // set via ldflags at build time
)

const (
	metaConfig = "config"
	metaSource = "configSource"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:     "pyshake",
		Usage:    "Bundle and tree-shake Python packages",
		Version:  fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Metadata: make(map[string]interface{}),
		Description: `pyshake resolves the static import graph of a Python package, copies it
with every third-party dependency vendored under the package, and removes
the module-level code nothing references.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (TOML, YAML, or JSON)",
				EnvVars: []string{"PYSHAKE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json, markdown, toon, yaml (default from config)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write output to file",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Disable the reference table cache",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Hide progress bars",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			res, err := config.LoadFrom(c.String("config"), ".")
			if err != nil {
				return err
			}
			c.App.Metadata[metaConfig] = res.Config
			c.App.Metadata[metaSource] = res.Source

			verbose := c.Bool("verbose") || res.Config.Output.Verbose
			return setupLogger(c.App.ErrWriter, verbose, os.Getenv("PYSHAKE_LOG_LEVEL"))
		},
		Commands: []*cli.Command{
			bundleCmd(),
			treeshakeCmd(),
			collectCmd(),
			graphCmd(),
			referencesCmd(),
			rewriteCmd(),
			configCmd(),
			cacheCmd(),
			mcpCmd(),
		},
	}
}

// setupLogger installs the default slog logger. verbose wins over level.
func setupLogger(w io.Writer, verbose bool, level string) error {
	if w == nil {
		w = os.Stderr
	}
	var lvl slog.Level
	switch {
	case verbose:
		lvl = slog.LevelDebug
	case level != "":
		if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
			return fmt.Errorf("invalid PYSHAKE_LOG_LEVEL %q: %w", level, err)
		}
	default:
		lvl = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
	return nil
}
