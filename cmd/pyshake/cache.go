package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/pyshake/internal/cache"
	"github.com/panbanda/pyshake/internal/output"
)

func cacheCmd() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear the reference table cache",
		Subcommands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "Show the number, size and age of cached entries",
				Action: runCacheStatsCmd,
			},
			{
				Name:   "clear",
				Usage:  "Remove every cached entry",
				Action: runCacheClearCmd,
			},
		},
	}
}

// configuredCache opens the cache directory named by the config, ignoring
// --no-cache and the enabled setting.
func configuredCache(c *cli.Context) (*cache.Cache, error) {
	cfg := appConfig(c)
	return cache.New(cfg.Cache.Dir, cfg.Cache.TTL, true)
}

func runCacheStatsCmd(c *cli.Context) error {
	ch, err := configuredCache(c)
	if err != nil {
		return err
	}
	stats, err := ch.GetStats()
	if err != nil {
		return err
	}

	formatter, err := newFormatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	return formatter.Output(output.NewTable(
		"Cache",
		[]string{"Directory", "Entries", "Size", "Oldest", "Newest"},
		[][]string{{
			stats.Dir,
			fmt.Sprintf("%d", stats.Entries),
			fmt.Sprintf("%d B", stats.TotalSize),
			stats.OldestAge.Round(time.Second).String(),
			stats.NewestAge.Round(time.Second).String(),
		}},
		nil,
		stats,
	))
}

func runCacheClearCmd(c *cli.Context) error {
	ch, err := configuredCache(c)
	if err != nil {
		return err
	}
	if err := ch.Clear(); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	color.New(color.FgGreen).Fprintf(c.App.Writer, "Cleared %s\n", appConfig(c).Cache.Dir)
	return nil
}
