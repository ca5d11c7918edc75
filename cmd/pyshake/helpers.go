package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/pyshake/internal/cache"
	"github.com/panbanda/pyshake/internal/output"
	"github.com/panbanda/pyshake/internal/progress"
	"github.com/panbanda/pyshake/pkg/config"
)

// appConfig returns the configuration loaded by the Before hook.
func appConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[metaConfig].(*config.Config); ok {
		return cfg
	}
	return config.DefaultConfig()
}

// getPath returns the first positional argument, defaulting to ".".
func getPath(c *cli.Context) string {
	if c.Args().Len() > 0 {
		return c.Args().First()
	}
	return "."
}

// requireArg returns the first positional argument or a usage error.
func requireArg(c *cli.Context, name string) (string, error) {
	if c.Args().Len() == 0 {
		return "", fmt.Errorf("missing %s argument (usage: %s %s %s)", name, c.App.Name, c.Command.Name, c.Command.ArgsUsage)
	}
	return c.Args().First(), nil
}

func newFormatter(c *cli.Context) (*output.Formatter, error) {
	cfg := appConfig(c)
	format := c.String("format")
	if format == "" {
		format = cfg.Output.Format
	}
	colored := cfg.Output.Color && !c.Bool("no-color")
	return output.NewFormatterTo(c.App.Writer, output.ParseFormat(format), c.String("output"), colored)
}

// newTracker returns a progress bar on stderr, or a silent one when the
// output is machine-readable or --quiet is set.
func newTracker(c *cli.Context, f *output.Formatter, label string, total int) *progress.Tracker {
	if c.Bool("quiet") || f.Format().Machine() {
		return progress.Discard(total)
	}
	return progress.NewTracker(label, total)
}

// openCache opens the configured cache, or returns nil when caching is off.
func openCache(c *cli.Context, cfg *config.Config) (*cache.Cache, error) {
	if c.Bool("no-cache") || !cfg.Cache.Enabled {
		return nil, nil
	}
	ch, err := cache.New(cfg.Cache.Dir, cfg.Cache.TTL, true)
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", cfg.Cache.Dir, err)
	}
	return ch, nil
}

// searchPaths prefers paths given on the command line over configured ones.
func searchPaths(c *cli.Context, cfg *config.Config) []string {
	if paths := c.StringSlice("search-path"); len(paths) > 0 {
		return paths
	}
	if env := os.Getenv("PYTHONPATH"); env != "" && c.Bool("pythonpath") {
		return append(strings.Split(env, string(os.PathListSeparator)), cfg.Python.SearchPaths...)
	}
	return cfg.Python.SearchPaths
}

func searchPathFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "search-path",
			Aliases: []string{"p"},
			Usage:   "Directory imports are resolved against (repeatable, default from config)",
		},
		&cli.BoolFlag{
			Name:  "pythonpath",
			Usage: "Also search the directories listed in PYTHONPATH",
		},
	}
}
