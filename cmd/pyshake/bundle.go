package main

import (
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/pyshake/internal/output"
	"github.com/panbanda/pyshake/internal/scanner"
	"github.com/panbanda/pyshake/pkg/bundle"
	"github.com/panbanda/pyshake/pkg/config"
	"github.com/panbanda/pyshake/pkg/treeshake"
)

func bundleCmd() *cli.Command {
	return &cli.Command{
		Name:      "bundle",
		Usage:     "Copy a package and every module it imports, vendoring third-party code",
		ArgsUsage: "<module>",
		Description: `Collects the static import graph of <module> and every module file of its
package, then writes first-party files under --dest and third-party files
under --dest/<top>/<vendor>, rewriting imports to the vendored names.

Examples:
  pyshake bundle mypkg
  pyshake bundle mypkg --dest build/mypkg -p src -p .venv/lib/python3.12/site-packages
  pyshake bundle mypkg --shake`,
		Flags: append(searchPathFlags(),
			&cli.StringFlag{
				Name:    "dest",
				Aliases: []string{"d"},
				Value:   "bundle",
				Usage:   "Destination directory",
			},
			&cli.StringFlag{
				Name:  "vendor",
				Usage: "Name of the vendored subpackage (default from config)",
			},
			&cli.BoolFlag{
				Name:  "no-gitignore",
				Usage: "Do not write a .gitignore into the destination",
			},
			&cli.BoolFlag{
				Name:  "shake",
				Usage: "Tree-shake the destination after bundling",
			},
		),
		Action: runBundleCmd,
	}
}

func runBundleCmd(c *cli.Context) error {
	entry, err := requireArg(c, "module")
	if err != nil {
		return err
	}
	cfg := appConfig(c)

	formatter, err := newFormatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	opts := bundle.OptionsFromConfig(cfg)
	opts.SearchPaths = searchPaths(c, cfg)
	if v := c.String("vendor"); v != "" {
		opts.VendorName = v
	}
	if c.Bool("no-gitignore") {
		opts.Gitignore = false
	}
	tracker := newTracker(c, formatter, "Bundling...", 0)
	opts.Progress = tracker

	res, err := bundle.Run(c.Context, entry, c.String("dest"), opts)
	if err != nil {
		tracker.FinishError(err)
		return err
	}
	tracker.FinishSuccess()

	report := &output.Report{
		Title:    fmt.Sprintf("Bundle of %s", res.Entry),
		Sections: []output.Renderable{bundleTable(res)},
		Data:     res,
	}

	if c.Bool("shake") {
		shaken, err := shakeBundle(c, cfg, formatter, res)
		if err != nil {
			return err
		}
		report.Sections = append(report.Sections, treeshakeTable(shaken, false))
		report.Data = map[string]any{"bundle": res, "treeshake": shaken}
	}

	if err := formatter.Output(report); err != nil {
		return err
	}
	for _, e := range res.Errors {
		formatter.Warning("%s", e)
	}
	return nil
}

// shakeBundle tree-shakes a fresh bundle. Bundles are usually gitignored,
// so the scan does not consult gitignore files.
func shakeBundle(c *cli.Context, cfg *config.Config, f *output.Formatter, res *bundle.Result) (*treeshake.Result, error) {
	ch, err := openCache(c, cfg)
	if err != nil {
		return nil, err
	}
	scanCfg := *cfg
	scanCfg.Exclude.Gitignore = false

	opts := treeshake.OptionsFromConfig(cfg)
	opts.Scanner = scanner.NewScanner(&scanCfg)
	opts.Cache = ch
	opts.RequireCleanGit = false
	tracker := newTracker(c, f, "Shaking...", 0)
	opts.Progress = tracker

	shaken, err := treeshake.Run(c.Context, res.Dest, opts)
	if err != nil {
		tracker.FinishError(err)
		return nil, err
	}
	tracker.FinishSuccess()
	return shaken, nil
}

func bundleTable(res *bundle.Result) *output.Table {
	rows := make([][]string, 0, len(res.Files))
	for _, f := range res.Files {
		target := f.Target
		if rel, err := filepath.Rel(res.Dest, f.Target); err == nil {
			target = rel
		}
		vendored := ""
		if f.Vendored {
			vendored = "yes"
		}
		rows = append(rows, []string{f.Module, target, string(f.Action), vendored})
	}
	return output.NewTable(
		"Files",
		[]string{"Module", "Target", "Action", "Vendored"},
		rows,
		[]string{
			fmt.Sprintf("Files: %d", len(res.Files)),
			fmt.Sprintf("Vendored: %d", res.Vendored),
			fmt.Sprintf("Imports: %d", res.Imports),
			fmt.Sprintf("Errors: %d", len(res.Errors)),
		},
		res,
	)
}
