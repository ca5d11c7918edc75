// Package treeshake removes unreferenced code from a Python source tree.
//
// A run scans the tree, counts references in repeated sweeps until no
// sweep discovers a new referenced name, then prunes every module against
// the converged table.
package treeshake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/panbanda/pyshake/internal/cache"
	"github.com/panbanda/pyshake/internal/fileproc"
	"github.com/panbanda/pyshake/internal/scanner"
	"github.com/panbanda/pyshake/pkg/config"
	"github.com/panbanda/pyshake/pkg/modspec"
	"github.com/panbanda/pyshake/pkg/pyast"
	"github.com/panbanda/pyshake/pkg/references"
	"github.com/panbanda/pyshake/pkg/remover"
)

// ErrNoFixedPoint is returned when the reference table still grows after
// the configured number of sweeps.
var ErrNoFixedPoint = errors.New("reference counting did not reach a fixed point")

// Progress receives phase changes and per-module ticks.
type Progress interface {
	Phase(label string, total int)
	Tick()
}

// Options configures a run.
type Options struct {
	PythonVersion string
	// PreserveSymbols are FQNs or glob patterns kept live regardless of use.
	PreserveSymbols []string
	ImportAliases   map[string]string
	// SafeDecorators replaces the default list when non-nil.
	SafeDecorators []string
	EntryModules   []string
	MaxSweeps      int
	Workers        int
	// RequireCleanGit refuses to modify a tree with uncommitted changes.
	RequireCleanGit bool
	DryRun          bool

	Scanner    *scanner.Scanner
	Cache      *cache.Cache
	ParseCache *ParseCache
	Progress   Progress
	Logger     *slog.Logger
}

// OptionsFromConfig maps configuration onto run options.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		PythonVersion:   cfg.Python.Version,
		PreserveSymbols: cfg.Treeshake.PreserveSymbols,
		ImportAliases:   cfg.Treeshake.ImportAliases,
		EntryModules:    cfg.Treeshake.EntryModules,
		MaxSweeps:       cfg.Treeshake.MaxSweeps,
		Workers:         cfg.Treeshake.Workers,
		RequireCleanGit: cfg.Treeshake.RequireCleanGit,
		Scanner:         scanner.NewScanner(cfg),
	}
	if len(cfg.Treeshake.SafeDecorators) > 0 {
		opts.SafeDecorators = cfg.Treeshake.SafeDecorators
	}
	return opts
}

func (o Options) withDefaults() Options {
	if o.PythonVersion == "" {
		o.PythonVersion = modspec.DefaultVersion
	}
	if o.MaxSweeps <= 0 {
		o.MaxSweeps = config.DefaultConfig().Treeshake.MaxSweeps
	}
	if o.Scanner == nil {
		o.Scanner = scanner.NewScanner(nil)
	}
	if o.ParseCache == nil {
		o.ParseCache = sharedParseCache()
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

// Sweep records one counting pass.
type Sweep struct {
	Number        int `json:"sweep"`
	NewReferences int `json:"new_references"`
	// Contributors is the number of modules that referenced a new name.
	Contributors int `json:"contributors"`
}

// Result describes a run.
type Result struct {
	Root    string `json:"root"`
	Modules int    `json:"modules"`
	// Unparsed lists files left out of counting because they do not parse.
	Unparsed   []string          `json:"unparsed,omitempty"`
	Preserved  []string          `json:"preserved,omitempty"`
	Sweeps     []Sweep           `json:"sweeps"`
	CacheHit   bool              `json:"cache_hit"`
	References int               `json:"references"`
	DryRun     bool              `json:"dry_run"`
	Summary    *remover.Summary  `json:"summary"`
	Errors     []string          `json:"errors,omitempty"`
	Table      *references.Table `json:"-"`
}

type parsedModule struct {
	index int
	src   []byte
	mod   *pyast.Module
}

// Run tree-shakes the Python modules under root.
func Run(ctx context.Context, root string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	root, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}
	if opts.RequireCleanGit && !opts.DryRun {
		if err := CheckClean(root); err != nil {
			return nil, err
		}
	}

	mods, err := opts.Scanner.ScanModules(root)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	res := &Result{Root: root, Modules: len(mods), DryRun: opts.DryRun}
	specs := make([]string, 0, len(mods))
	for _, m := range mods {
		specs = append(specs, m.Spec)
	}
	slices.Sort(specs)
	specs = slices.Compact(specs)

	parsed, errs := parseAll(ctx, mods, opts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.Errors = append(res.Errors, errorStrings(errs)...)

	live := roaring.New()
	for i, p := range parsed {
		switch {
		case p == nil:
		case p.mod == nil:
			res.Unparsed = append(res.Unparsed, mods[i].Path)
		default:
			live.Add(uint32(i))
		}
	}

	table := references.NewTable(opts.ImportAliases)
	res.Table = table
	key := "treeshake:" + root
	hash := tableHash(opts, mods, parsed)
	cached, hit, err := loadTable(opts.Cache, key, hash)
	if err != nil {
		opts.Logger.Warn("ignoring unreadable table cache", "error", err)
	}
	if hit {
		table.Load(cached)
		res.CacheHit = true
		opts.Logger.Debug("reference table loaded from cache", "root", root, "names", len(cached))
	} else {
		if err := seedPreserved(table, res, mods, parsed, live, opts); err != nil {
			return nil, err
		}
		if err := sweep(ctx, table, res, mods, parsed, live, opts); err != nil {
			return nil, err
		}
		if err := storeTable(opts.Cache, key, hash, table); err != nil {
			opts.Logger.Warn("cannot cache reference table", "error", err)
		}
	}
	res.References = table.PositiveCount()

	rm := remover.New(table.Snapshot(), remover.Options{
		KnownModules: specs,
		EntryModules: opts.EntryModules,
		Root:         root,
		DryRun:       opts.DryRun,
		Logger:       opts.Logger,
	})
	targets := make([]remover.Module, 0, len(mods))
	for i, m := range mods {
		if parsed[i] != nil {
			targets = append(targets, remover.Module{Spec: m.Spec, Path: m.Path})
		}
	}
	opts.Progress.Phase("Removing", len(targets))
	summary, rmErrs := rm.RemoveAll(ctx, targets, opts.Workers, opts.Progress.Tick)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.Summary = summary
	res.Errors = append(res.Errors, errorStrings(rmErrs)...)
	return res, nil
}

func resolveRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", root)
	}
	return abs, nil
}

// parseAll reads and parses every module. The result is indexed like mods;
// unreadable files are nil, files with syntax errors have no module.
func parseAll(ctx context.Context, mods []scanner.Module, opts Options) ([]*parsedModule, *fileproc.ProcessingErrors) {
	indices := make([]int, len(mods))
	for i := range mods {
		indices[i] = i
	}
	opts.Progress.Phase("Parsing", len(mods))
	label := func(i int) string { return mods[i].Path }
	results, errs := fileproc.Map(ctx, indices, opts.Workers, label, func(ctx context.Context, i int) (*parsedModule, error) {
		src, err := os.ReadFile(mods[i].Path)
		if err != nil {
			return nil, err
		}
		p := &parsedModule{index: i, src: src}
		mod, err := opts.ParseCache.Parse(ctx, mods[i].Path, src)
		if err != nil {
			if !errors.Is(err, pyast.ErrSyntax) {
				return nil, err
			}
			opts.Logger.Warn("module not counted", "module", mods[i].Spec, "path", mods[i].Path, "error", err)
			return p, nil
		}
		p.mod = mod
		return p, nil
	}, opts.Progress.Tick)

	parsed := make([]*parsedModule, len(mods))
	for _, p := range results {
		parsed[p.index] = p
	}
	return parsed, errs
}

// tableHash digests every input the converged table depends on.
func tableHash(opts Options, mods []scanner.Module, parsed []*parsedModule) string {
	h := cache.NewHasher().AddString("treeshake/v1").AddString(opts.PythonVersion)
	addList := func(label string, items []string) {
		h.AddString(label).AddString(strconv.Itoa(len(items)))
		for _, s := range items {
			h.AddString(s)
		}
	}
	addList("preserve", opts.PreserveSymbols)
	addList("safe", opts.SafeDecorators)
	addList("entries", opts.EntryModules)
	for _, k := range slices.Sorted(maps.Keys(opts.ImportAliases)) {
		h.AddString("alias").AddString(k).AddString(opts.ImportAliases[k])
	}
	for i, m := range mods {
		h.AddString(m.Spec).AddString(m.Path)
		if parsed[i] != nil {
			h.Add(parsed[i].src)
		}
	}
	return h.Sum()
}

func loadTable(c *cache.Cache, key, hash string) (map[string]int, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	var counts map[string]int
	ok, err := c.Load(key, hash, &counts)
	if err != nil {
		return nil, false, errors.Join(err, c.Invalidate(key))
	}
	return counts, ok, nil
}

func storeTable(c *cache.Cache, key, hash string, table *references.Table) error {
	if c == nil {
		return nil
	}
	return c.Store(key, hash, table.Counts())
}

func seedPreserved(table *references.Table, res *Result, mods []scanner.Module, parsed []*parsedModule, live *roaring.Bitmap, opts Options) error {
	if len(opts.PreserveSymbols) == 0 {
		return nil
	}
	var defs []string
	it := live.Iterator()
	for it.HasNext() {
		i := it.Next()
		defs = append(defs, definitions(mods[i].Spec, parsed[i].mod)...)
	}
	slices.Sort(defs)
	preserved, err := expandPreserve(opts.PreserveSymbols, slices.Compact(defs), opts.ImportAliases)
	if err != nil {
		return err
	}
	for _, fqn := range preserved {
		table.Increase(fqn)
	}
	res.Preserved = preserved
	return nil
}

// sweep visits every parsed module against a snapshot of the table until
// a sweep adds no referenced name. Visits of one sweep run concurrently and
// merge into the table as they finish.
func sweep(ctx context.Context, table *references.Table, res *Result, mods []scanner.Module, parsed []*parsedModule, live *roaring.Bitmap, opts Options) error {
	counter := references.NewCounter(table, references.Options{
		SafeDecorators: opts.SafeDecorators,
		EntryModules:   opts.EntryModules,
		Classifier:     modspec.NewClassifier(opts.PythonVersion),
	})
	items := live.ToArray()
	label := func(i uint32) string { return mods[i].Path }

	for n := 1; ; n++ {
		if n > opts.MaxSweeps {
			return fmt.Errorf("%w after %d sweeps", ErrNoFixedPoint, opts.MaxSweeps)
		}
		snap := table.Snapshot()
		contributors := roaring.New()
		var mu sync.Mutex

		opts.Progress.Phase(fmt.Sprintf("Sweep %d", n), len(items))
		added, errs := fileproc.Map(ctx, items, opts.Workers, label, func(ctx context.Context, i uint32) (int, error) {
			d, err := counter.Visit(ctx, snap, mods[i].Spec, parsed[i].mod)
			if err != nil {
				return 0, err
			}
			added := table.Merge(d)
			if added > 0 {
				mu.Lock()
				contributors.Add(i)
				mu.Unlock()
			}
			return added, nil
		}, opts.Progress.Tick)
		if err := ctx.Err(); err != nil {
			return err
		}
		if errs.HasErrors() {
			return errs
		}

		s := Sweep{Number: n, Contributors: int(contributors.GetCardinality())}
		for _, a := range added {
			s.NewReferences += a
		}
		res.Sweeps = append(res.Sweeps, s)
		opts.Logger.Debug("sweep finished", "sweep", n, "new_references", s.NewReferences, "contributors", s.Contributors)
		if s.NewReferences == 0 {
			return nil
		}
	}
}

func errorStrings(errs *fileproc.ProcessingErrors) []string {
	if !errs.HasErrors() {
		return nil
	}
	out := make([]string, 0, len(errs.Errors))
	for _, e := range errs.Errors {
		out = append(out, e.Error())
	}
	slices.Sort(out)
	return out
}
