// Package collector discovers the transitive set of Python files an entry
// module imports, statically or through literal dynamic imports.
package collector

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/panbanda/pyshake/pkg/modspec"
	"github.com/panbanda/pyshake/pkg/names"
	"github.com/panbanda/pyshake/pkg/parser"
	"github.com/panbanda/pyshake/pkg/pyast"
)

// ModuleKey identifies a discovered file. Two keys with the same Path are
// the same module.
type ModuleKey struct {
	Name string `json:"module"`
	Path string `json:"path"`
}

// CollectedFiles maps every discovered module to its source text. A nil
// value marks an opaque file (native extension, unreadable file) whose path
// alone is recorded.
type CollectedFiles map[ModuleKey]*string

// Keys returns the keys sorted by module name, then path.
func (f CollectedFiles) Keys() []ModuleKey {
	return slices.SortedFunc(maps.Keys(f), func(a, b ModuleKey) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.Path, b.Path))
	})
}

// Edge is an import from one collected module to another.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Result is the outcome of a collection run.
type Result struct {
	Files CollectedFiles
	Edges []Edge
}

// Options configures a Collector.
type Options struct {
	Resolver   Resolver
	Classifier *modspec.Classifier
	// ImportAliases maps an FQN to an equivalent FQN. Modules on the alias
	// side are probed as well.
	ImportAliases map[string]string
	Logger        *slog.Logger
}

// Collector walks imports depth-first from entry modules. It is not safe
// for concurrent use.
type Collector struct {
	resolver      Resolver
	classifier    *modspec.Classifier
	importAliases map[string]string
	moduleAliases map[string][]string
	logger        *slog.Logger

	parser   *parser.Parser
	files    CollectedFiles
	paths    map[string]struct{}
	resolved map[string]*ModuleKey
	edges    map[Edge]struct{}
}

// New creates a collector.
func New(opts Options) *Collector {
	if opts.Classifier == nil {
		opts.Classifier = modspec.NewClassifier(modspec.DefaultVersion)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	moduleAliases := make(map[string][]string)
	for search, replacement := range opts.ImportAliases {
		from, to := modspec.ParentPackage(search), modspec.ParentPackage(replacement)
		if !slices.Contains(moduleAliases[from], to) {
			moduleAliases[from] = append(moduleAliases[from], to)
		}
	}
	for k := range moduleAliases {
		slices.Sort(moduleAliases[k])
	}
	return &Collector{
		resolver:      opts.Resolver,
		classifier:    opts.Classifier,
		importAliases: opts.ImportAliases,
		moduleAliases: moduleAliases,
		logger:        opts.Logger,
		files:         make(CollectedFiles),
		paths:         make(map[string]struct{}),
		resolved:      make(map[string]*ModuleKey),
		edges:         make(map[Edge]struct{}),
	}
}

// Collect discovers every file reachable from the entry modules. Earlier
// calls on the same collector are kept: a module is never collected twice.
func (c *Collector) Collect(ctx context.Context, entries ...string) (*Result, error) {
	if c.resolver == nil {
		return nil, errors.New("collector: no resolver configured")
	}
	c.parser = parser.New()
	defer func() {
		c.parser.Close()
		c.parser = nil
	}()

	for _, entry := range entries {
		if err := c.processModule(ctx, "", entry); err != nil {
			return nil, err
		}
	}

	edges := slices.SortedFunc(maps.Keys(c.edges), func(a, b Edge) int {
		return cmp.Or(cmp.Compare(a.From, b.From), cmp.Compare(a.To, b.To))
	})
	return &Result{Files: maps.Clone(c.files), Edges: edges}, nil
}

// Collect is a convenience wrapper around New(opts).Collect.
func Collect(ctx context.Context, opts Options, entries ...string) (*Result, error) {
	return New(opts).Collect(ctx, entries...)
}

func (c *Collector) resolve(spec string) (ModuleKey, bool) {
	if key, seen := c.resolved[spec]; seen {
		if key == nil {
			return ModuleKey{}, false
		}
		return *key, true
	}
	key, ok := c.resolver.Resolve(spec)
	if !ok {
		c.resolved[spec] = nil
		return ModuleKey{}, false
	}
	c.resolved[spec] = &key
	return key, true
}

// processModule collects spec and, for source files, everything it
// imports. from is the importing module, "" for entries.
func (c *Collector) processModule(ctx context.Context, from, spec string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if spec == "" || c.classifier.IsStdLib(spec) {
		return nil
	}

	key, ok := c.resolve(spec)
	if !ok {
		return nil
	}
	if from != "" && from != key.Name {
		c.edges[Edge{From: from, To: key.Name}] = struct{}{}
	}
	if _, done := c.paths[key.Path]; done {
		return nil
	}
	c.paths[key.Path] = struct{}{}

	if !parser.IsSource(key.Path) {
		c.files[key] = nil
		return nil
	}

	content, err := os.ReadFile(key.Path)
	if err != nil {
		c.logger.Warn("unreadable module recorded as opaque", "module", key.Name, "path", key.Path, "error", err)
		c.files[key] = nil
		return nil
	}
	text := string(content)
	c.files[key] = &text

	// importing a.b.c runs a and a.b first
	if parent := modspec.ParentPackage(key.Name); parent != key.Name {
		if err := c.processModule(ctx, "", parent); err != nil {
			return err
		}
	}

	res, err := c.parser.ParseCtx(ctx, content, key.Path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.Warn("module not followed", "module", key.Name, "path", key.Path, "error", err)
		return nil
	}
	mod, err := pyast.Build(res)
	res.Close()
	if err != nil {
		c.logger.Warn("module not followed", "module", key.Name, "path", key.Path, "error", err)
		return nil
	}

	v := &visitor{
		c:             c,
		module:        key.Name,
		parentPackage: modspec.NextParentPackage(key.Name, key.Path),
		dynamic:       names.NewDynamicImports(),
	}
	return v.visit(ctx, mod.Body)
}

// visitor holds the per-module state of a collection: the package relative
// imports resolve against and the importlib aliases seen so far.
type visitor struct {
	c             *Collector
	module        string
	parentPackage string
	dynamic       *names.DynamicImports
}

func (v *visitor) visit(ctx context.Context, body []pyast.Stmt) error {
	var firstErr error
	pyast.WalkStmts(body, func(s pyast.Stmt) bool {
		if firstErr != nil {
			return false
		}
		v.dynamic.Observe(s)
		var err error
		switch s := s.(type) {
		case *pyast.Import:
			err = v.visitImport(ctx, s)
		case *pyast.ImportFrom:
			err = v.visitImportFrom(ctx, s)
		default:
			err = v.visitExprs(ctx, pyast.StmtExprs(s))
		}
		if err != nil {
			firstErr = err
			return false
		}
		return true
	})
	return firstErr
}

func (v *visitor) visitImport(ctx context.Context, s *pyast.Import) error {
	var candidates []string
	for _, a := range s.Names {
		candidates = appendUnique(candidates, a.Name)
		for _, alias := range v.c.moduleAliases[a.Name] {
			candidates = appendUnique(candidates, alias)
		}
	}
	return v.process(ctx, candidates)
}

func (v *visitor) visitImportFrom(ctx context.Context, s *pyast.ImportFrom) error {
	if s.Future {
		return nil
	}
	specs, err := modspec.ImportFromModuleSpecs(s, v.parentPackage, true)
	if err != nil {
		v.c.logger.Warn("unresolvable import", "module", v.module, "error", err)
		return nil
	}
	for _, spec := range specs {
		// an imported name may itself be a submodule
		candidates := []string{spec}
		if alias, ok := v.c.importAliases[spec]; ok {
			candidates = appendUnique(candidates, alias)
		}
		for _, a := range s.Names {
			if a.IsWildcard() {
				continue
			}
			sub := spec + "." + a.Name
			candidates = appendUnique(candidates, sub)
			if alias, ok := v.c.importAliases[sub]; ok {
				candidates = appendUnique(candidates, alias)
			}
			for _, alias := range v.c.moduleAliases[sub] {
				candidates = appendUnique(candidates, alias)
			}
		}
		if err := v.process(ctx, candidates); err != nil {
			return err
		}
	}
	return nil
}

func (v *visitor) visitExprs(ctx context.Context, exprs []pyast.Expr) error {
	var found []string
	for _, e := range exprs {
		pyast.WalkExpr(e, func(e pyast.Expr) bool {
			if call, ok := e.(*pyast.Call); ok {
				if spec, ok := v.dynamic.Match(call); ok {
					found = appendUnique(found, spec)
				}
			}
			return true
		})
	}
	return v.process(ctx, found)
}

func (v *visitor) process(ctx context.Context, specs []string) error {
	for _, spec := range specs {
		if err := v.c.processModule(ctx, v.module, spec); err != nil {
			return fmt.Errorf("collecting %s from %s: %w", spec, v.module, err)
		}
	}
	return nil
}

func appendUnique(list []string, s string) []string {
	if slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}
