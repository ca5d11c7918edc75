// Package bundle copies a package together with every module it imports
// into a destination directory, vendoring third-party modules under the
// package so the copy is self-contained.
package bundle

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/panbanda/pyshake/internal/fileproc"
	"github.com/panbanda/pyshake/pkg/collector"
	"github.com/panbanda/pyshake/pkg/config"
	"github.com/panbanda/pyshake/pkg/modspec"
	"github.com/panbanda/pyshake/pkg/pyast"
	"github.com/panbanda/pyshake/pkg/rewrite"
)

// ErrModuleNotFound is returned when the entry module does not resolve.
var ErrModuleNotFound = errors.New("module not found")

// Action says how a file reached the destination.
type Action string

const (
	// Rewritten files are sources written with their imports vendored.
	Rewritten Action = "rewritten"
	// Copied files are opaque files copied byte for byte.
	Copied Action = "copied"
	// Created files are package __init__ files the import graph skipped.
	Created Action = "created"
)

// Progress receives phase changes and per-file ticks.
type Progress interface {
	Phase(label string, total int)
	Tick()
}

// Options configures a bundle run.
type Options struct {
	// VendorName is the subpackage of the top-level package third-party
	// modules move into.
	VendorName    string
	PythonVersion string
	ImportAliases map[string]string
	// Resolver finds module files. A PathResolver over SearchPaths is used
	// when nil.
	Resolver    collector.Resolver
	SearchPaths []string
	// Gitignore writes a .gitignore ignoring the whole destination.
	Gitignore bool
	Workers   int
	Progress  Progress
	Logger    *slog.Logger
}

// OptionsFromConfig maps configuration onto bundle options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		VendorName:    cfg.Bundle.VendorName,
		PythonVersion: cfg.Python.Version,
		ImportAliases: cfg.Treeshake.ImportAliases,
		SearchPaths:   cfg.Python.SearchPaths,
		Gitignore:     cfg.Bundle.Gitignore,
		Workers:       cfg.Treeshake.Workers,
	}
}

func (o Options) withDefaults() Options {
	if o.VendorName == "" {
		o.VendorName = config.DefaultConfig().Bundle.VendorName
	}
	if o.PythonVersion == "" {
		o.PythonVersion = modspec.DefaultVersion
	}
	if o.Resolver == nil {
		paths := o.SearchPaths
		if len(paths) == 0 {
			paths = []string{"."}
		}
		o.Resolver = collector.NewPathResolver(paths...)
	}
	if o.Progress == nil {
		o.Progress = nopProgress{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type nopProgress struct{}

func (nopProgress) Phase(string, int) {}
func (nopProgress) Tick()             {}

// File is one file written to the destination.
type File struct {
	Module   string `json:"module"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	Action   Action `json:"action"`
	Vendored bool   `json:"vendored,omitempty"`
}

// Result describes a bundle run.
type Result struct {
	Entry    string   `json:"entry"`
	Dest     string   `json:"dest"`
	Top      string   `json:"top"`
	Vendor   string   `json:"vendor"`
	Files    []File   `json:"files"`
	Imports  int      `json:"imports"`
	Vendored int      `json:"vendored"`
	Errors   []string `json:"errors,omitempty"`
}

// job is a collected file and where it goes.
type job struct {
	key      collector.ModuleKey
	source   *string
	target   string
	action   Action
	vendored bool
}

// Run bundles entry into dest.
func Run(ctx context.Context, entry, dest string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	dest, err := filepath.Abs(dest)
	if err != nil {
		return nil, err
	}
	key, ok := opts.Resolver.Resolve(entry)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, entry)
	}

	entries, err := packageModules(entry, key.Path)
	if err != nil {
		return nil, err
	}
	collected, err := collector.Collect(ctx, collector.Options{
		Resolver:      opts.Resolver,
		Classifier:    modspec.NewClassifier(opts.PythonVersion),
		ImportAliases: opts.ImportAliases,
		Logger:        opts.Logger,
	}, entries...)
	if err != nil {
		return nil, fmt.Errorf("collecting %s: %w", entry, err)
	}

	top := modspec.TopLevelPackage(entry)
	res := &Result{
		Entry:   entry,
		Dest:    dest,
		Top:     top,
		Vendor:  opts.VendorName,
		Imports: len(collected.Edges),
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, err
	}
	if opts.Gitignore {
		if err := writeGitignore(dest); err != nil {
			return nil, err
		}
	}

	files, created := addPackageInits(collected.Files)
	jobs := plan(files, created, dest, top, opts.VendorName)
	rw := rewrite.New(top, opts.VendorName, modspec.NewClassifier(opts.PythonVersion))

	opts.Progress.Phase("Writing", len(jobs))
	label := func(j job) string { return j.key.Path }
	written, errs := fileproc.Map(ctx, jobs, opts.Workers, label, func(ctx context.Context, j job) (File, error) {
		return writeJob(ctx, rw, j, opts.Logger)
	}, opts.Progress.Tick)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Files = written
	for _, f := range written {
		if f.Vendored {
			res.Vendored++
		}
	}
	if errs.HasErrors() {
		for _, e := range errs.Errors {
			res.Errors = append(res.Errors, e.Error())
		}
		slices.Sort(res.Errors)
	}
	return res, nil
}

// packageModules lists the entry module and, for a package, every module
// file directly inside it.
func packageModules(entry, path string) ([]string, error) {
	mods := []string{entry}
	if !modspec.IsPackageEntry(path) {
		return mods, nil
	}
	dirEntries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("listing package %s: %w", entry, err)
	}
	for _, e := range dirEntries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".py" || name == modspec.InitFile {
			continue
		}
		mods = append(mods, entry+"."+strings.TrimSuffix(name, ".py"))
	}
	return mods, nil
}

func writeGitignore(dest string) error {
	path := filepath.Join(dest, ".gitignore")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte("*"), 0644)
}

// addPackageInits adds an empty source for every package __init__ file
// that exists next to a collected module but was never imported. It returns
// the paths it added.
func addPackageInits(files collector.CollectedFiles) (collector.CollectedFiles, map[string]bool) {
	created := make(map[string]bool)
	out := make(collector.CollectedFiles, len(files))
	paths := make(map[string]struct{}, len(files))
	for k, v := range files {
		out[k] = v
		paths[k.Path] = struct{}{}
	}
	for _, k := range files.Keys() {
		if filepath.Ext(k.Path) != ".py" || modspec.IsPackageEntry(k.Path) {
			continue
		}
		initPath := filepath.Join(filepath.Dir(k.Path), modspec.InitFile)
		if _, ok := paths[initPath]; ok {
			continue
		}
		if info, err := os.Stat(initPath); err != nil || !info.Mode().IsRegular() {
			continue
		}
		empty := ""
		out[collector.ModuleKey{Name: modspec.ParentPackage(k.Name), Path: initPath}] = &empty
		paths[initPath] = struct{}{}
		created[initPath] = true
	}
	return out, created
}

// plan maps every file to its destination. First-party modules mirror
// their dotted path under dest; everything else moves under
// dest/top/vendor.
func plan(files collector.CollectedFiles, created map[string]bool, dest, top, vendor string) []job {
	vendorDir := filepath.Join(dest, top, vendor)
	jobs := make([]job, 0, len(files))
	for _, k := range files.Keys() {
		modPath := filepath.Join(strings.Split(k.Name, ".")...)
		vendored := modspec.TopLevelPackage(k.Name) != top
		base := dest
		if vendored {
			base = vendorDir
		}

		var target string
		if modspec.IsPackageEntry(k.Path) && filepath.Base(filepath.Dir(k.Path)) == filepath.Base(modPath) {
			target = filepath.Join(base, modPath, filepath.Base(k.Path))
		} else {
			target = filepath.Join(base, filepath.Dir(modPath), filepath.Base(k.Path))
		}

		j := job{key: k, source: files[k], target: target, vendored: vendored, action: Rewritten}
		switch {
		case files[k] == nil:
			j.action = Copied
		case created[k.Path]:
			j.action = Created
		}
		jobs = append(jobs, j)
	}
	slices.SortFunc(jobs, func(a, b job) int { return cmp.Compare(a.target, b.target) })
	return jobs
}

func writeJob(ctx context.Context, rw *rewrite.Rewriter, j job, logger *slog.Logger) (File, error) {
	f := File{Module: j.key.Name, Source: j.key.Path, Target: j.target, Action: j.action, Vendored: j.vendored}
	if err := os.MkdirAll(filepath.Dir(j.target), 0755); err != nil {
		return f, err
	}
	if j.source == nil {
		if err := copyFile(j.key.Path, j.target); err != nil {
			return f, err
		}
		logger.Debug("copied file", "path", j.key.Path, "target", j.target)
		return f, nil
	}

	src := []byte(*j.source)
	out, err := rw.Rewrite(ctx, j.key.Path, src)
	if err != nil {
		if !errors.Is(err, pyast.ErrSyntax) {
			return f, err
		}
		logger.Warn("imports not rewritten", "module", j.key.Name, "path", j.key.Path, "error", err)
		out = src
	}
	if err := os.WriteFile(j.target, out, 0644); err != nil {
		return f, err
	}
	logger.Debug("wrote module", "path", j.key.Path, "target", j.target)
	return f, nil
}

// copyFile copies src to dst keeping the permission bits.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
