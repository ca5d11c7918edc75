package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/pyshake/pkg/rewrite"
)

func rewriteCmd() *cli.Command {
	return &cli.Command{
		Name:      "rewrite",
		Usage:     "Vendor the imports of a single Python file",
		ArgsUsage: "[file|-]",
		Description: `Prefixes every import that is neither standard library nor part of --top
with <top>.<vendor>, along with every use of the imported names. Reads
stdin when no file or "-" is given and writes the result to stdout.

Examples:
  pyshake rewrite --top mypkg mypkg/cli.py
  cat script.py | pyshake rewrite --top mypkg --vendor third_party`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "top",
				Aliases:  []string{"t"},
				Usage:    "First-party top-level package",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "vendor",
				Usage: "Name of the vendored subpackage (default from config)",
			},
			&cli.BoolFlag{
				Name:    "in-place",
				Aliases: []string{"i"},
				Usage:   "Overwrite the file instead of printing",
			},
		},
		Action: runRewriteCmd,
	}
}

func runRewriteCmd(c *cli.Context) error {
	cfg := appConfig(c)
	top := c.String("top")
	if strings.Contains(top, ".") {
		return fmt.Errorf("--top %q must be a single module name", top)
	}
	vendor := c.String("vendor")
	if vendor == "" {
		vendor = cfg.Bundle.VendorName
	}

	path := getPath(c)
	if path == "." {
		path = "-"
	}
	var src []byte
	var err error
	if path == "-" {
		src, err = io.ReadAll(c.App.Reader)
	} else {
		src, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	rw := rewrite.New(top, vendor, cfg.Classifier())
	out, err := rw.Rewrite(c.Context, path, src)
	if err != nil {
		return err
	}

	if c.Bool("in-place") {
		if path == "-" {
			return fmt.Errorf("--in-place needs a file argument")
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
			return err
		}
		if !c.Bool("quiet") {
			color.New(color.FgGreen).Fprintf(c.App.ErrWriter, "Rewrote %s\n", path)
		}
		return nil
	}

	w := c.App.Writer
	if o := c.String("output"); o != "" {
		return os.WriteFile(o, out, 0644)
	}
	_, err = w.Write(out)
	return err
}
