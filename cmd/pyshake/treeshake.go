package main

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/pyshake/internal/output"
	"github.com/panbanda/pyshake/pkg/remover"
	"github.com/panbanda/pyshake/pkg/treeshake"
)

func treeshakeCmd() *cli.Command {
	return &cli.Command{
		Name:      "treeshake",
		Aliases:   []string{"shake"},
		Usage:     "Remove module-level code nothing references",
		ArgsUsage: "[path]",
		Description: `Counts references across every Python module under [path] until no sweep
finds a new one, then removes unreferenced classes, functions, assignments
and imports in place. Emptied modules are deleted; a package __init__.py
that is the last file of its directory is truncated instead.

Examples:
  pyshake treeshake build/mypkg --dry-run
  pyshake treeshake . --preserve 'mypkg.plugins.*' --entry mypkg.hooks`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"n"},
				Usage:   "Report what would be removed without writing",
			},
			&cli.StringSliceFlag{
				Name:  "preserve",
				Usage: "FQN or glob pattern to keep (repeatable, added to config)",
			},
			&cli.StringSliceFlag{
				Name:  "entry",
				Usage: "Module whose whole body is live (repeatable, added to config)",
			},
			&cli.IntFlag{
				Name:  "max-sweeps",
				Usage: "Give up after this many counting sweeps (default from config)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Parallel workers (default: number of CPUs)",
			},
			&cli.BoolFlag{
				Name:  "require-clean-git",
				Usage: "Refuse to modify files with uncommitted changes",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "List unchanged modules too",
			},
		},
		Action: runTreeshakeCmd,
	}
}

func runTreeshakeCmd(c *cli.Context) error {
	root := getPath(c)
	cfg := appConfig(c)

	formatter, err := newFormatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	ch, err := openCache(c, cfg)
	if err != nil {
		return err
	}
	opts := treeshake.OptionsFromConfig(cfg)
	opts.Cache = ch
	opts.DryRun = c.Bool("dry-run")
	opts.PreserveSymbols = slices.Concat(opts.PreserveSymbols, c.StringSlice("preserve"))
	opts.EntryModules = slices.Concat(opts.EntryModules, c.StringSlice("entry"))
	if n := c.Int("max-sweeps"); n > 0 {
		opts.MaxSweeps = n
	}
	if n := c.Int("workers"); n > 0 {
		opts.Workers = n
	}
	if c.Bool("require-clean-git") {
		opts.RequireCleanGit = true
	}
	tracker := newTracker(c, formatter, "Scanning...", 0)
	opts.Progress = tracker

	res, err := treeshake.Run(c.Context, root, opts)
	if err != nil {
		tracker.FinishError(err)
		return err
	}
	tracker.FinishSuccess()

	if res.Modules == 0 && formatter.Format() == output.FormatText {
		formatter.Warning("No Python modules found under %s", root)
		return nil
	}

	if err := formatter.Output(treeshakeTable(res, c.Bool("all"))); err != nil {
		return err
	}
	if formatter.Format() == output.FormatText {
		for _, e := range res.Errors {
			formatter.Warning("%s", e)
		}
		if res.DryRun {
			formatter.Info("Dry run: no files were changed.")
		}
	}
	return nil
}

// treeshakeTable lists changed modules, or every module when all is set.
func treeshakeTable(res *treeshake.Result, all bool) *output.Table {
	rows := make([][]string, 0, len(res.Summary.Results))
	for _, r := range res.Summary.Results {
		if r.Action == remover.Unchanged && !all {
			continue
		}
		path := r.Path
		if rel, err := filepath.Rel(res.Root, r.Path); err == nil {
			path = rel
		}
		removed := 0
		for _, n := range r.Removed {
			removed += n
		}
		rows = append(rows, []string{
			r.Module,
			path,
			output.ActionColor(string(r.Action)),
			fmt.Sprintf("%d", removed),
		})
	}

	sweeps := make([]string, len(res.Sweeps))
	for i, s := range res.Sweeps {
		sweeps[i] = fmt.Sprintf("%d", s.NewReferences)
	}
	cached := ""
	if res.CacheHit {
		cached = color.CyanString(" (cached)")
	}

	footer := []string{
		fmt.Sprintf("Modules: %d", res.Modules),
		fmt.Sprintf("Sweeps: %d [%s]%s", len(res.Sweeps), strings.Join(sweeps, " "), cached),
		fmt.Sprintf("References: %d", res.References),
		fmt.Sprintf("Statements removed: %d", res.Summary.StatementsRemoved()),
		fmt.Sprintf("Rewritten: %d", res.Summary.Rewritten),
		fmt.Sprintf("Deleted: %d", res.Summary.Deleted),
		fmt.Sprintf("Truncated: %d", res.Summary.Truncated),
	}
	for _, kind := range remover.SortedKinds(res.Summary.Removed) {
		footer = append(footer, fmt.Sprintf("%s: %d", kind, res.Summary.Removed[kind]))
	}
	if len(res.Unparsed) > 0 {
		footer = append(footer, fmt.Sprintf("Unparsed: %d", len(res.Unparsed)))
	}

	return output.NewTable(
		"Tree Shake",
		[]string{"Module", "Path", "Action", "Removed"},
		rows,
		footer,
		res,
	)
}
