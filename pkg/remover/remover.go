// Package remover prunes statements that a converged reference table proves
// unused, rewriting, truncating or deleting module files accordingly.
package remover

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/panbanda/pyshake/internal/fileproc"
	"github.com/panbanda/pyshake/pkg/modspec"
	"github.com/panbanda/pyshake/pkg/pyast"
	"github.com/panbanda/pyshake/pkg/references"
)

// Action is what happened to a module file.
type Action string

const (
	Unchanged Action = "unchanged"
	Rewritten Action = "rewritten"
	Deleted   Action = "deleted"
	Truncated Action = "truncated"
)

// Options configures a Remover.
type Options struct {
	// KnownModules are module specs of the pruned tree. A known module with
	// a referenced member counts as referenced itself.
	KnownModules []string
	EntryModules []string
	// Root bounds the upward removal of emptied directories.
	Root   string
	DryRun bool
	Logger *slog.Logger
}

// Result describes the pruning of one module.
type Result struct {
	Module      string         `json:"module"`
	Path        string         `json:"path"`
	Action      Action         `json:"action"`
	Removed     map[string]int `json:"removed,omitempty"`
	RemovedDirs []string       `json:"removed_dirs,omitempty"`
}

// Module is a file to prune.
type Module struct {
	Spec string
	Path string
}

// Summary aggregates the results of RemoveAll.
type Summary struct {
	Results     []*Result      `json:"results"`
	Removed     map[string]int `json:"removed"`
	Rewritten   int            `json:"rewritten"`
	Deleted     int            `json:"deleted"`
	Truncated   int            `json:"truncated"`
	RemovedDirs []string       `json:"removed_dirs,omitempty"`
}

// StatementsRemoved returns the total number of removed statements.
func (s *Summary) StatementsRemoved() int {
	n := 0
	for _, c := range s.Removed {
		n += c
	}
	return n
}

// Remover prunes modules against a fixed reference snapshot. File system
// changes that can affect sibling files are serialized.
type Remover struct {
	lookup  references.Lookup
	entries map[string]struct{}
	opts    Options
	logger  *slog.Logger
	fsMu    sync.Mutex
}

// New creates a remover reading snap.
func New(snap *references.Snapshot, opts Options) *Remover {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := &Remover{
		lookup:  snap.WithKnownModules(opts.KnownModules),
		entries: make(map[string]struct{}, len(opts.EntryModules)),
		opts:    opts,
		logger:  opts.Logger,
	}
	for _, e := range opts.EntryModules {
		r.entries[e] = struct{}{}
	}
	return r
}

// Lookup returns the table view the remover decides with.
func (r *Remover) Lookup() references.Lookup { return r.lookup }

func (r *Remover) isEntry(spec, path string) bool {
	if modspec.IsMainEntry(path) {
		return true
	}
	_, ok := r.entries[spec]
	return ok
}

// RemoveModule prunes the module at path and applies the outcome to disk.
// Files that do not parse are left untouched.
func (r *Remover) RemoveModule(ctx context.Context, spec, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := &Result{Module: spec, Path: path, Action: Unchanged}

	mod, err := pyast.ParseFile(ctx, path)
	if err != nil {
		if errors.Is(err, pyast.ErrSyntax) {
			r.logger.Warn("module left unchanged", "module", spec, "path", path, "error", err)
			return res, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	pruned, err := Prune(r.lookup, spec, mod, r.isEntry(spec, path))
	if err != nil {
		return nil, fmt.Errorf("pruning %s: %w", path, err)
	}
	res.Removed = pruned.Removed
	if !pruned.Changed {
		return res, nil
	}

	if !pruned.Empty {
		res.Action = Rewritten
		if r.opts.DryRun {
			return res, nil
		}
		if err := writeFile(path, pruned.Source); err != nil {
			return nil, err
		}
		return res, nil
	}
	return r.removeEmpty(res)
}

// removeEmpty deletes an emptied module. An __init__ file that is the last
// file of its directory is truncated instead so the package survives.
// Subdirectories such as __pycache__ or subpackages do not count.
func (r *Remover) removeEmpty(res *Result) (*Result, error) {
	r.fsMu.Lock()
	defer r.fsMu.Unlock()

	dir := filepath.Dir(res.Path)
	if modspec.IsPackageEntry(res.Path) {
		lone, err := onlyFile(dir, filepath.Base(res.Path))
		if err != nil {
			return nil, err
		}
		if lone {
			res.Action = Truncated
			if r.opts.DryRun {
				return res, nil
			}
			return res, writeFile(res.Path, nil)
		}
	}

	res.Action = Deleted
	if r.opts.DryRun {
		return res, nil
	}
	if err := os.Remove(res.Path); err != nil {
		return nil, err
	}
	removed, err := removeEmptyDirs(dir, r.opts.Root)
	res.RemovedDirs = removed
	return res, err
}

// onlyFile reports whether name is the only non-directory entry of dir.
func onlyFile(dir, name string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if !e.IsDir() && e.Name() != name {
			return false, nil
		}
	}
	return true, nil
}

// removeEmptyDirs removes dir and then each emptied parent, stopping at
// root or at the first non-empty directory.
func removeEmptyDirs(dir, root string) ([]string, error) {
	var removed []string
	if root != "" {
		root = filepath.Clean(root)
	}
	for {
		dir = filepath.Clean(dir)
		if root == "" || dir == root || !within(dir, root) {
			return removed, nil
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return removed, err
		}
		if len(entries) > 0 {
			return removed, nil
		}
		if err := os.Remove(dir); err != nil {
			return removed, err
		}
		removed = append(removed, dir)
		dir = filepath.Dir(dir)
	}
}

func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

func writeFile(path string, content []byte) error {
	info, err := os.Stat(path)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode().Perm()
	}
	return os.WriteFile(path, content, mode)
}

// RemoveAll prunes every module: regular modules in parallel, then package
// __init__ files deepest first so that a package is judged after its
// children have been removed.
func (r *Remover) RemoveAll(ctx context.Context, mods []Module, workers int, onProgress fileproc.ProgressFunc) (*Summary, *fileproc.ProcessingErrors) {
	var regular, inits []Module
	for _, m := range mods {
		if modspec.IsPackageEntry(m.Path) {
			inits = append(inits, m)
		} else {
			regular = append(regular, m)
		}
	}
	slices.SortStableFunc(inits, func(a, b Module) int {
		return cmp.Or(
			cmp.Compare(depth(b.Path), depth(a.Path)),
			cmp.Compare(a.Path, b.Path),
		)
	})

	label := func(m Module) string { return m.Path }
	fn := func(ctx context.Context, m Module) (*Result, error) {
		return r.RemoveModule(ctx, m.Spec, m.Path)
	}
	results, errs := fileproc.Map(ctx, regular, workers, label, fn, onProgress)

	allErrs := errs
	for _, m := range inits {
		res, err := r.RemoveModule(ctx, m.Spec, m.Path)
		if onProgress != nil {
			onProgress()
		}
		if err != nil {
			if allErrs == nil {
				allErrs = &fileproc.ProcessingErrors{}
			}
			allErrs.Add(m.Path, err)
			continue
		}
		results = append(results, res)
	}
	return summarize(results), allErrs
}

func depth(path string) int {
	return strings.Count(filepath.ToSlash(filepath.Clean(path)), "/")
}

func summarize(results []*Result) *Summary {
	s := &Summary{Results: results, Removed: make(map[string]int)}
	for _, res := range results {
		for k, n := range res.Removed {
			s.Removed[k] += n
		}
		switch res.Action {
		case Rewritten:
			s.Rewritten++
		case Deleted:
			s.Deleted++
		case Truncated:
			s.Truncated++
		}
		s.RemovedDirs = append(s.RemovedDirs, res.RemovedDirs...)
	}
	slices.Sort(s.RemovedDirs)
	slices.SortFunc(s.Results, func(a, b *Result) int { return cmp.Compare(a.Path, b.Path) })
	return s
}

// RemoveDeadCode prunes one module against table.
func RemoveDeadCode(ctx context.Context, spec, path string, table *references.Table, opts Options) (*Result, error) {
	return New(table.Snapshot(), opts).RemoveModule(ctx, spec, path)
}

// SortedKinds returns the kinds of a removal count map in a stable order.
func SortedKinds(removed map[string]int) []string {
	return slices.Sorted(maps.Keys(removed))
}
