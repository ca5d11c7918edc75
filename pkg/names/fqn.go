package names

import (
	"github.com/panbanda/pyshake/pkg/fullname"
	"github.com/panbanda/pyshake/pkg/pyast"
)

// Provider resolves local names of one module to fully-qualified names,
// accounting for the enclosing class/function scope and active imports.
type Provider struct {
	module      string
	nameContext string
	tracker     *ImportTracker
}

// Scope is the saved state returned by EnterScope.
type Scope struct {
	pushed      bool
	nameContext string
	imports     ImportScope
}

// NewProvider creates a provider for module whose relative imports resolve
// against parentPackage.
func NewProvider(module, parentPackage string) *Provider {
	return &Provider{
		module:  module,
		tracker: NewImportTracker(parentPackage),
	}
}

// Module returns the dotted name of the visited module.
func (p *Provider) Module() string { return p.module }

// NameContext returns the dotted path of enclosing class/def names.
func (p *Provider) NameContext() string { return p.nameContext }

// AtModuleScope reports whether the cursor is outside every class and def.
func (p *Provider) AtModuleScope() bool { return p.nameContext == "" }

// Tracker exposes the underlying import tracker.
func (p *Provider) Tracker() *ImportTracker { return p.tracker }

// VisitStmt feeds import bindings of s into the tracker.
func (p *Provider) VisitStmt(s pyast.Stmt) { p.tracker.VisitStmt(s) }

// Qualify prefixes local with the current name context.
func (p *Provider) Qualify(local string) string {
	if p.nameContext == "" {
		return local
	}
	return p.nameContext + "." + local
}

// Resolve returns every plausible FQN for a (possibly qualified) local name.
// Each alias equal to the name, or a dotted prefix of it, substitutes its
// target; without a match the module itself is the fallback. Every active
// star-import source adds one more candidate.
func (p *Provider) Resolve(qualified string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(fqn string) {
		if _, ok := seen[fqn]; ok {
			return
		}
		seen[fqn] = struct{}{}
		out = append(out, fqn)
	}

	for _, key := range p.tracker.keys() {
		target := p.tracker.imports[key]
		switch {
		case qualified == key:
			add(target)
		case len(qualified) > len(key) && qualified[len(key)] == '.' && qualified[:len(key)] == key:
			add(target + qualified[len(key):])
		}
	}
	if len(out) == 0 {
		add(p.module + "." + qualified)
	}
	for _, star := range p.tracker.Stars() {
		add(star + "." + qualified)
	}
	return out
}

// ResolveAll resolves several names, dropping duplicates.
func (p *Provider) ResolveAll(locals []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, l := range locals {
		for _, fqn := range p.Resolve(l) {
			if _, ok := seen[fqn]; ok {
				continue
			}
			seen[fqn] = struct{}{}
			out = append(out, fqn)
		}
	}
	return out
}

// DefinitionFQNs qualifies definition names with the name context and
// resolves them.
func (p *Provider) DefinitionFQNs(locals []string) []string {
	qualified := make([]string, len(locals))
	for i, l := range locals {
		qualified[i] = p.Qualify(l)
	}
	return p.ResolveAll(qualified)
}

// ExprFQNs returns the FQNs an expression may refer to. Names and attribute
// chains are tried both qualified by the current scope and unqualified, since
// a reference inside a class or function may bind to either.
func (p *Provider) ExprFQNs(e pyast.Expr) []string {
	locals := fullname.ForExpr(e)
	switch e.(type) {
	case *pyast.NamedExpr:
		return p.DefinitionFQNs(locals)
	case *pyast.Name, *pyast.Attribute:
		return p.referenceFQNs(locals)
	}
	return p.ResolveAll(locals)
}

// DottedFQNs resolves a dotted reference given as text, such as the
// contents of a string annotation, like the equivalent attribute chain.
func (p *Provider) DottedFQNs(dotted string) []string {
	if dotted == "" {
		return nil
	}
	var locals []string
	for i := 0; i < len(dotted); i++ {
		if dotted[i] == '.' {
			locals = append(locals, dotted[:i])
		}
	}
	return p.referenceFQNs(append(locals, dotted))
}

func (p *Provider) referenceFQNs(locals []string) []string {
	if p.nameContext == "" {
		return p.ResolveAll(locals)
	}
	all := make([]string, 0, 2*len(locals))
	for _, l := range locals {
		all = append(all, p.Qualify(l), l)
	}
	return p.ResolveAll(all)
}

// StmtFQNs returns the FQNs a statement defines or references. Import
// statements return the imported dotted paths themselves.
func (p *Provider) StmtFQNs(s pyast.Stmt) []string {
	locals := fullname.ForStmt(s, p.tracker.parentPackage)
	switch s.(type) {
	case *pyast.Import, *pyast.ImportFrom:
		return locals
	case *pyast.Assign, *pyast.AnnAssign, *pyast.AugAssign,
		*pyast.ClassDef, *pyast.FunctionDef, *pyast.TypeAlias:
		return p.DefinitionFQNs(locals)
	}
	return p.ResolveAll(locals)
}

// EnterScope opens the scope of a class or function definition. Both the
// name context and the import tables are saved; ExitScope restores them.
func (p *Provider) EnterScope(s pyast.Stmt) Scope {
	scope := Scope{imports: p.tracker.EnterScope(s)}
	var name string
	switch s := s.(type) {
	case *pyast.ClassDef:
		name = s.Name
	case *pyast.FunctionDef:
		name = s.Name
	default:
		return scope
	}
	if name == "" {
		return scope
	}
	scope.pushed = true
	scope.nameContext = p.nameContext
	p.nameContext = p.Qualify(name)
	return scope
}

// ExitScope restores the state saved by EnterScope.
func (p *Provider) ExitScope(scope Scope) {
	if scope.pushed {
		p.nameContext = scope.nameContext
	}
	p.tracker.ExitScope(scope.imports)
}
