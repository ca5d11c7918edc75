package references

import (
	"context"
	"regexp"
	"strings"

	"github.com/panbanda/pyshake/pkg/fullname"
	"github.com/panbanda/pyshake/pkg/modspec"
	"github.com/panbanda/pyshake/pkg/names"
	"github.com/panbanda/pyshake/pkg/pyast"
)

// dottedRef matches dotted identifiers inside string annotations.
var dottedRef = regexp.MustCompile(`[A-Za-z_]\w*(?:\.[A-Za-z_]\w*)*`)

// Options configures a Counter.
type Options struct {
	// SafeDecorators lists decorator FQNs that do not make a definition
	// live. DefaultSafeDecorators is used when nil.
	SafeDecorators []string
	// EntryModules are modules whose whole body is live, in addition to
	// every __main__ file.
	EntryModules []string
	Classifier   *modspec.Classifier
}

// Counter grows a Table by visiting modules. A module visit marks as
// referenced every name used by code that is itself live; repeated sweeps
// over all modules reach a fixed point where nothing new is discovered.
type Counter struct {
	table      *Table
	safe       map[string]struct{}
	entries    map[string]struct{}
	classifier *modspec.Classifier
}

// NewCounter creates a counter feeding table.
func NewCounter(table *Table, opts Options) *Counter {
	if opts.SafeDecorators == nil {
		opts.SafeDecorators = DefaultSafeDecorators()
	}
	if opts.Classifier == nil {
		opts.Classifier = modspec.NewClassifier(modspec.DefaultVersion)
	}
	c := &Counter{
		table:      table,
		safe:       make(map[string]struct{}, len(opts.SafeDecorators)),
		entries:    make(map[string]struct{}, len(opts.EntryModules)),
		classifier: opts.Classifier,
	}
	for _, d := range opts.SafeDecorators {
		c.safe[d] = struct{}{}
	}
	for _, e := range opts.EntryModules {
		c.entries[e] = struct{}{}
	}
	return c
}

// Table returns the table the counter feeds.
func (c *Counter) Table() *Table { return c.table }

// IsEntry reports whether the module at path is an entry point whose
// statements are all live.
func (c *Counter) IsEntry(spec, path string) bool {
	if modspec.IsMainEntry(path) {
		return true
	}
	_, ok := c.entries[spec]
	return ok
}

// CountModule visits mod against the current table and merges the result.
// It returns the number of names that became referenced.
func (c *Counter) CountModule(ctx context.Context, spec string, mod *pyast.Module) (int, error) {
	d, err := c.Visit(ctx, c.table.Snapshot(), spec, mod)
	if err != nil {
		return 0, err
	}
	return c.table.Merge(d), nil
}

// Visit computes the references mod adds on top of snap without touching
// the table. Deltas of one sweep can be computed concurrently and merged in
// any order.
func (c *Counter) Visit(ctx context.Context, snap *Snapshot, spec string, mod *pyast.Module) (*Delta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := &visitor{
		c:      c,
		module: spec,
		view:   newView(snap, c.table.aliases),
		names:  names.NewProvider(spec, modspec.NextParentPackage(spec, mod.Path)),
	}
	v.stmts(mod.Body, c.IsEntry(spec, mod.Path))
	return v.view.delta, nil
}

// CountReferences counts a single module into table with a throwaway
// counter.
func CountReferences(ctx context.Context, spec string, mod *pyast.Module, table *Table, opts Options) (int, error) {
	return NewCounter(table, opts).CountModule(ctx, spec, mod)
}

type visitor struct {
	c      *Counter
	module string
	view   *view
	names  *names.Provider
}

// moduleLive reports whether the cursor is at module scope of a module
// something refers to, where top-level side effects must be preserved.
func (v *visitor) moduleLive() bool {
	return v.names.AtModuleScope() && v.view.Referenced(v.module)
}

func (v *visitor) increase(fqns ...string) {
	for _, f := range fqns {
		v.view.increase(f)
	}
}

func (v *visitor) stmts(body []pyast.Stmt, bump bool) {
	for _, s := range body {
		v.stmt(s, bump)
	}
}

func (v *visitor) stmt(s pyast.Stmt, bump bool) {
	v.names.VisitStmt(s)
	moduleLive := v.moduleLive()

	switch s := s.(type) {
	case *pyast.FunctionDef:
		v.definition(s, s.Name, s.Decorators, bump, moduleLive)
	case *pyast.ClassDef:
		v.definition(s, s.Name, s.Decorators, bump, moduleLive)
	case *pyast.Assign, *pyast.AnnAssign, *pyast.AugAssign:
		v.assignment(s, bump || (moduleLive && hasCall(pyast.StmtExprs(s))), moduleLive)
	case *pyast.TypeAlias:
		fqns := v.names.StmtFQNs(s)
		v.makeKnown(fqns)
		if bump || moduleLive || anyPositive(v.view, fqns) {
			v.increase(fqns...)
			v.exprs(s.TypeParams, true)
			v.expr(s.Value, true)
		}
	case *pyast.Import:
		v.importStmt(s, bump)
	case *pyast.ImportFrom:
		v.importFrom(s, bump, moduleLive)
	case *pyast.If:
		if v.names.AtModuleScope() && pyast.IsMainGuard(s.Test) {
			bump = true
		}
		testBump := bump || moduleLive
		v.expr(s.Test, testBump)
		for _, c := range s.Clauses {
			v.exprs(c.Test, testBump)
		}
		v.blocks(s, bump)
	case *pyast.For:
		if moduleLive {
			bump = true
		}
		v.expr(s.Iter, bump)
		v.expr(s.Target, bump)
		v.blocks(s, bump)
	case *pyast.While, *pyast.With, *pyast.Try, *pyast.Match:
		v.exprs(pyast.StmtExprs(s), bump || moduleLive)
		v.blocks(s, bump)
	case *pyast.Global:
		if bump {
			v.increase(v.names.ResolveAll(s.Names)...)
		}
	case *pyast.Nonlocal:
		if bump {
			v.increase(v.names.ResolveAll(s.Names)...)
		}
	case *pyast.ExprStmt, *pyast.SimpleStmt:
		v.exprs(pyast.StmtExprs(s), bump || moduleLive)
	}
}

func (v *visitor) blocks(s pyast.Stmt, bump bool) {
	for _, b := range pyast.Blocks(s) {
		v.stmts(b.Body, bump)
	}
}

func (v *visitor) makeKnown(fqns []string) {
	for _, f := range fqns {
		v.view.makeKnown(f)
	}
}

func (v *visitor) definition(s pyast.Stmt, name string, decorators []pyast.Expr, bump, moduleLive bool) {
	fqns := v.names.StmtFQNs(s)
	v.makeKnown(fqns)

	live := bump || anyPositive(v.view, fqns) || v.unsafeDecorator(decorators) ||
		(moduleLive && (name == "__getattr__" || name == "__dir__"))
	if !live {
		return
	}
	v.increase(fqns...)

	// decorators, defaults and bases evaluate in the enclosing scope
	var body []pyast.Stmt
	switch s := s.(type) {
	case *pyast.FunctionDef:
		v.exprs(s.Decorators, true)
		v.exprs(s.TypeParams, true)
		for _, p := range s.Params {
			v.annotation(p.Annotation)
			v.expr(p.Default, true)
		}
		v.annotation(s.Returns)
		body = s.Body.Body
	case *pyast.ClassDef:
		v.exprs(s.Decorators, true)
		v.exprs(s.TypeParams, true)
		v.exprs(s.Bases, true)
		for _, k := range s.Keywords {
			v.expr(k.Value, true)
		}
		body = s.Body.Body
	}

	scope := v.names.EnterScope(s)
	v.stmts(body, true)
	v.names.ExitScope(scope)
}

func (v *visitor) unsafeDecorator(decorators []pyast.Expr) bool {
	for _, d := range decorators {
		if !v.safeDecorator(d) {
			return true
		}
	}
	return false
}

func (v *visitor) safeDecorator(d pyast.Expr) bool {
	if call, ok := d.(*pyast.Call); ok {
		d = call.Func
	}
	dotted, ok := pyast.DottedName(d)
	if !ok {
		return false
	}
	candidates := v.names.Resolve(dotted)
	root := modspec.TopLevelPackage(dotted)
	if _, imported := v.names.Tracker().Lookup(root); !imported && modspec.IsBuiltinName(root) {
		candidates = append(candidates, BuiltinPrefix+"."+dotted)
	}
	for _, c := range candidates {
		if _, ok := v.c.safe[c]; ok {
			return true
		}
	}
	return false
}

func (v *visitor) assignment(s pyast.Stmt, bump, moduleLive bool) {
	bound, roots, _ := fullname.StmtTargets(s)
	fqns := v.names.DefinitionFQNs(bound)
	v.makeKnown(fqns)
	rootFQNs := v.names.ResolveAll(roots)

	live := bump || anyPositive(v.view, fqns) ||
		(moduleLive && anyPositive(v.view, rootFQNs)) ||
		(len(bound) == 0 && (len(roots) == 0 || anyPositive(v.view, rootFQNs)))
	if !live {
		return
	}

	v.increase(fqns...)
	switch s := s.(type) {
	case *pyast.Assign:
		v.expr(s.Value, true)
		v.exprs(s.Targets, true)
	case *pyast.AnnAssign:
		v.annotation(s.Annotation)
		v.expr(s.Value, true)
		v.expr(s.Target, true)
	case *pyast.AugAssign:
		v.expr(s.Value, true)
		v.expr(s.Target, true)
	}
}

func (v *visitor) importStmt(s *pyast.Import, bump bool) {
	for _, a := range s.Names {
		bound := a.AsName
		candidates := []string{a.Name}
		if bound == "" {
			bound = modspec.TopLevelPackage(a.Name)
			if bound != a.Name {
				candidates = append(candidates, bound)
			}
		}
		// importers of this module may reach the bound name through it
		candidates = append(candidates, v.module+"."+bound)
		if bump || anyPositive(v.view, candidates) {
			v.increase(a.Name)
		}
	}
}

func (v *visitor) importFrom(s *pyast.ImportFrom, bump, moduleLive bool) {
	if s.Future {
		return
	}
	specs, err := modspec.ImportFromModuleSpecs(s, v.names.Tracker().ParentPackage(), false)
	if err != nil {
		return
	}
	for _, spec := range specs {
		for _, a := range s.Names {
			if a.IsWildcard() {
				v.wildcard(spec, bump, moduleLive)
				continue
			}
			name := spec + "." + a.Name
			candidates := []string{name}
			bound := a.BoundName()
			// a stdlib import shadowing a builtin is not reachable as an
			// attribute of this module
			if !(v.c.classifier.IsStdLib(spec) && modspec.IsBuiltinName(bound)) {
				candidates = append(candidates, v.module+"."+bound)
			}
			if bump || anyPositive(v.view, candidates) {
				v.increase(name)
			}
		}
	}
}

// wildcard forwards references made through this module to the star
// import source: "from src import *" makes mod.X stand for src.X.
func (v *visitor) wildcard(src string, bump, moduleLive bool) {
	if !v.names.AtModuleScope() {
		return
	}
	if bump || moduleLive {
		v.increase(src)
	}
	prefix := v.module + "."
	seen := make(map[string]struct{})
	for _, key := range v.view.positiveWithPrefix(prefix) {
		bare, _, _ := strings.Cut(key[len(prefix):], ".")
		if _, ok := seen[bare]; ok {
			continue
		}
		seen[bare] = struct{}{}
		v.increase(src + "." + bare)
	}
}

func (v *visitor) exprs(es []pyast.Expr, bump bool) {
	for _, e := range es {
		v.expr(e, bump)
	}
}

func (v *visitor) expr(e pyast.Expr, bump bool) {
	switch e := e.(type) {
	case nil:
		return
	case *pyast.Call:
		if v.moduleLive() {
			bump = true
		}
		if bump {
			if spec, ok := v.names.Tracker().Dynamic().Match(e); ok {
				v.increase(spec)
			}
		}
	case *pyast.NamedExpr:
		if bump && e.Target != nil {
			v.increase(v.names.ExprFQNs(e)...)
		}
		v.expr(e.Value, bump)
		return
	case *pyast.Name, *pyast.Attribute:
		if bump {
			v.increase(v.names.ExprFQNs(e)...)
			if _, pure := pyast.DottedName(e); pure {
				return
			}
		}
	case *pyast.Lambda:
		for _, p := range e.Params {
			v.annotation(p.Annotation)
			v.expr(p.Default, bump)
		}
		v.expr(e.Body, bump)
		return
	}
	for _, c := range pyast.Children(e) {
		v.expr(c, bump)
	}
}

// annotation visits a live annotation, treating string literals that spell
// dotted names as references.
func (v *visitor) annotation(e pyast.Expr) {
	if e == nil {
		return
	}
	v.expr(e, true)
	pyast.WalkExpr(e, func(x pyast.Expr) bool {
		lit, ok := x.(*pyast.StringLit)
		if !ok || len(lit.Interpolations) > 0 {
			return true
		}
		for _, ref := range dottedRef.FindAllString(lit.Value, -1) {
			v.increase(v.names.DottedFQNs(ref)...)
		}
		return true
	})
}

func hasCall(es []pyast.Expr) bool {
	found := false
	for _, e := range es {
		pyast.WalkExpr(e, func(x pyast.Expr) bool {
			if _, ok := x.(*pyast.Call); ok {
				found = true
			}
			return !found
		})
		if found {
			return true
		}
	}
	return false
}
