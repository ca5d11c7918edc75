// Package names resolves local Python names to fully-qualified names. The
// ImportTracker follows import statements as a module is visited and the
// Provider layers lexical scope qualification on top of it.
package names

import (
	"maps"
	"slices"

	"github.com/panbanda/pyshake/pkg/modspec"
	"github.com/panbanda/pyshake/pkg/pyast"
)

// ImportTracker maintains the alias table and star-import set visible at the
// current point of a module visit.
type ImportTracker struct {
	parentPackage string
	imports       map[string]string
	stars         map[string]struct{}
	sortedKeys    []string
	dirty         bool
	dynamic       *DynamicImports
}

// ImportScope is the saved state returned by EnterScope.
type ImportScope struct {
	saved   bool
	imports map[string]string
	stars   map[string]struct{}
}

// NewImportTracker creates a tracker resolving relative imports against
// parentPackage.
func NewImportTracker(parentPackage string) *ImportTracker {
	return &ImportTracker{
		parentPackage: parentPackage,
		imports:       make(map[string]string),
		stars:         make(map[string]struct{}),
		dynamic:       NewDynamicImports(),
	}
}

// ParentPackage returns the package relative imports resolve against.
func (t *ImportTracker) ParentPackage() string { return t.parentPackage }

// Lookup returns the absolute path bound to a local name.
func (t *ImportTracker) Lookup(local string) (string, bool) {
	v, ok := t.imports[local]
	return v, ok
}

// Imports returns a copy of the alias table.
func (t *ImportTracker) Imports() map[string]string {
	return maps.Clone(t.imports)
}

// Stars returns the active star-import sources in sorted order.
func (t *ImportTracker) Stars() []string {
	return slices.Sorted(maps.Keys(t.stars))
}

// Dynamic returns the importlib alias tracker fed by this tracker.
func (t *ImportTracker) Dynamic() *DynamicImports { return t.dynamic }

// VisitStmt records the bindings introduced by s. Non-import statements
// only matter when they bind the result of a literal dynamic import.
func (t *ImportTracker) VisitStmt(s pyast.Stmt) {
	switch s := s.(type) {
	case *pyast.Import:
		t.dynamic.Observe(s)
		for _, a := range s.Names {
			t.bind(a.BoundName(), a.Name)
			if a.AsName == "" {
				// "import a.b" also binds a
				if top := modspec.TopLevelPackage(a.Name); top != a.Name {
					t.bind(top, top)
				}
			}
		}
	case *pyast.ImportFrom:
		t.dynamic.Observe(s)
		specs, err := modspec.ImportFromModuleSpecs(s, t.parentPackage, false)
		if err != nil {
			return
		}
		for _, spec := range specs {
			for _, a := range s.Names {
				if a.IsWildcard() {
					t.stars[spec] = struct{}{}
					continue
				}
				t.bind(a.BoundName(), spec+"."+a.Name)
			}
		}
	case *pyast.Assign:
		if len(s.Targets) != 1 {
			return
		}
		target, ok := s.Targets[0].(*pyast.Name)
		if !ok {
			return
		}
		if call, ok := s.Value.(*pyast.Call); ok {
			if mod, ok := t.dynamic.Match(call); ok {
				t.bind(target.ID, mod)
			}
		}
	}
}

func (t *ImportTracker) bind(local, target string) {
	if _, exists := t.imports[local]; !exists {
		t.dirty = true
	}
	t.imports[local] = target
}

// keys returns the alias table keys in sorted order.
func (t *ImportTracker) keys() []string {
	if t.dirty || t.sortedKeys == nil {
		t.sortedKeys = slices.Sorted(maps.Keys(t.imports))
		t.dirty = false
	}
	return t.sortedKeys
}

// EnterScope snapshots the tables when s opens a class or function scope.
func (t *ImportTracker) EnterScope(s pyast.Stmt) ImportScope {
	switch s.(type) {
	case *pyast.ClassDef, *pyast.FunctionDef:
		return ImportScope{
			saved:   true,
			imports: maps.Clone(t.imports),
			stars:   maps.Clone(t.stars),
		}
	}
	return ImportScope{}
}

// ExitScope restores the tables saved by the matching EnterScope, dropping
// imports made inside the scope.
func (t *ImportTracker) ExitScope(scope ImportScope) {
	if !scope.saved {
		return
	}
	t.imports = scope.imports
	t.stars = scope.stars
	t.dirty = true
}
