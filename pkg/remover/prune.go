package remover

import (
	"slices"
	"strings"

	"github.com/panbanda/pyshake/pkg/fullname"
	"github.com/panbanda/pyshake/pkg/modspec"
	"github.com/panbanda/pyshake/pkg/names"
	"github.com/panbanda/pyshake/pkg/pyast"
	"github.com/panbanda/pyshake/pkg/references"
)

// Statement kinds reported in removal counts.
const (
	KindClass      = "class"
	KindFunction   = "function"
	KindAssign     = "assign"
	KindImport     = "import"
	KindImportFrom = "import_from"
	KindAlias      = "import_alias"
	KindCompound   = "compound"
)

// Pruned is the outcome of pruning one module in memory.
type Pruned struct {
	Source []byte
	// Empty is set when no statement survived.
	Empty   bool
	Changed bool
	Removed map[string]int
}

// Prune removes unreferenced statements from mod. Surviving statements keep
// their original bytes.
func Prune(lookup references.Lookup, spec string, mod *pyast.Module, entry bool) (*Pruned, error) {
	if entry {
		return &Pruned{Source: mod.Source, Removed: map[string]int{}}, nil
	}
	p := &pruner{
		lookup:  lookup,
		src:     mod.Source,
		names:   names.NewProvider(spec, modspec.NextParentPackage(spec, mod.Path)),
		removed: make(map[string]int),
	}
	edits, kept := p.block(mod.Body)
	if kept == 0 && len(mod.Body) > 0 {
		return &Pruned{Empty: true, Changed: true, Removed: p.removed}, nil
	}
	out, err := edits.Apply(mod.Source)
	if err != nil {
		return nil, err
	}
	return &Pruned{Source: out, Changed: len(edits) > 0, Removed: p.removed}, nil
}

// HasReferencesForStmt reports whether s survives pruning against lookup.
// provider must already have visited the statements preceding s. Statements
// of entry modules and non-prunable statements are always referenced; an
// import is referenced while any of its aliases is.
func HasReferencesForStmt(lookup references.Lookup, provider *names.Provider, s pyast.Stmt, entry bool) bool {
	if entry {
		return true
	}
	p := &pruner{lookup: lookup, names: provider}
	switch s := s.(type) {
	case *pyast.Import:
		for _, a := range s.Names {
			if lookup.Positive(a.Name) {
				return true
			}
		}
		return false
	case *pyast.ImportFrom:
		keep, ok := p.importFromKeep(s)
		return !ok || slices.Contains(keep, true)
	case *pyast.Assign, *pyast.AnnAssign, *pyast.AugAssign:
		return p.assignmentLive(s)
	case *pyast.FunctionDef, *pyast.ClassDef:
		return p.anyPositive(provider.StmtFQNs(s))
	}
	return true
}

type pruner struct {
	lookup  references.Lookup
	src     []byte
	names   *names.Provider
	removed map[string]int
}

// block prunes a suite and returns its edits and the number of surviving
// statements.
func (p *pruner) block(body []pyast.Stmt) (pyast.Edits, int) {
	var edits pyast.Edits
	kept := 0
	for _, s := range body {
		p.names.VisitStmt(s)
		e, keep := p.stmt(s)
		if !keep {
			edits.Delete(pyast.StatementRemoval(p.src, s.Pos()))
			continue
		}
		edits = append(edits, e...)
		kept++
	}
	return edits, kept
}

func (p *pruner) stmt(s pyast.Stmt) (pyast.Edits, bool) {
	switch s := s.(type) {
	case *pyast.Import:
		return p.importStmt(s)
	case *pyast.ImportFrom:
		return p.importFrom(s)
	case *pyast.Assign, *pyast.AnnAssign, *pyast.AugAssign:
		if p.assignmentLive(s) {
			return nil, true
		}
		p.removed[KindAssign]++
		return nil, false
	case *pyast.FunctionDef:
		return p.definition(s, &s.Body, KindFunction)
	case *pyast.ClassDef:
		return p.definition(s, &s.Body, KindClass)
	}
	return p.compound(s)
}

func (p *pruner) definition(s pyast.Stmt, body *pyast.Block, kind string) (pyast.Edits, bool) {
	if !p.anyPositive(p.names.StmtFQNs(s)) {
		p.removed[kind]++
		return nil, false
	}
	scope := p.names.EnterScope(s)
	edits, kept := p.block(body.Body)
	p.names.ExitScope(scope)
	if kept > 0 || len(body.Body) == 0 {
		return edits, true
	}
	if kind == KindClass {
		p.removed[kind]++
		return nil, false
	}
	var e pyast.Edits
	e.Replace(pyast.TrimSpace(p.src, body.Span), "pass")
	return e, true
}

// compound descends into the suites of any other statement. A statement
// whose every suite is emptied is dropped; emptied suites of a surviving
// one become "pass".
func (p *pruner) compound(s pyast.Stmt) (pyast.Edits, bool) {
	blocks := pyast.Blocks(s)
	if len(blocks) == 0 {
		return nil, true
	}
	var edits pyast.Edits
	var emptied []*pyast.Block
	for _, b := range blocks {
		e, kept := p.block(b.Body)
		if kept == 0 && len(b.Body) > 0 {
			emptied = append(emptied, b)
			continue
		}
		edits = append(edits, e...)
	}
	if len(emptied) == len(blocks) {
		p.removed[KindCompound]++
		return nil, false
	}
	for _, b := range emptied {
		edits.Replace(pyast.TrimSpace(p.src, b.Span), "pass")
	}
	return edits, true
}

func (p *pruner) assignmentLive(s pyast.Stmt) bool {
	bound, roots, _ := fullname.StmtTargets(s)
	if p.anyPositive(p.names.DefinitionFQNs(bound)) {
		return true
	}
	return len(bound) == 0 && (len(roots) == 0 || p.anyPositive(p.names.ResolveAll(roots)))
}

func (p *pruner) importStmt(s *pyast.Import) (pyast.Edits, bool) {
	keep := make([]bool, len(s.Names))
	for i, a := range s.Names {
		keep[i] = p.lookup.Positive(a.Name)
	}
	return p.aliases(s.Names, keep, KindImport)
}

func (p *pruner) importFrom(s *pyast.ImportFrom) (pyast.Edits, bool) {
	keep, ok := p.importFromKeep(s)
	if !ok {
		return nil, true
	}
	return p.aliases(s.Names, keep, KindImportFrom)
}

// importFromKeep decides each alias of an import-from. ok is false when the
// statement must be kept whole: future imports and unresolvable modules.
func (p *pruner) importFromKeep(s *pyast.ImportFrom) (keep []bool, ok bool) {
	if s.Future {
		return nil, false
	}
	specs, err := modspec.ImportFromModuleSpecs(s, p.names.Tracker().ParentPackage(), false)
	if err != nil {
		return nil, false
	}
	keep = make([]bool, len(s.Names))
	for i, a := range s.Names {
		if a.IsWildcard() {
			keep[i] = true
			continue
		}
		for _, spec := range specs {
			if p.lookup.Positive(spec + "." + a.Name) {
				keep[i] = true
			}
		}
	}
	return keep, true
}

// aliases applies per-alias decisions to an import list. Of several aliases
// binding the same name only the last survives.
func (p *pruner) aliases(list []pyast.Alias, keep []bool, kind string) (pyast.Edits, bool) {
	last := make(map[string]int, len(list))
	for i, a := range list {
		if !a.IsWildcard() {
			last[a.BoundName()] = i
		}
	}
	var texts []string
	for i, a := range list {
		if keep[i] && !a.IsWildcard() && last[a.BoundName()] != i {
			keep[i] = false
		}
		if keep[i] {
			texts = append(texts, string(p.src[a.Span.Start:a.Span.End]))
		}
	}
	if len(texts) == 0 {
		p.removed[kind]++
		return nil, false
	}
	if len(texts) == len(list) {
		return nil, true
	}
	p.removed[KindAlias] += len(list) - len(texts)
	var e pyast.Edits
	e.Replace(pyast.Span{Start: list[0].Span.Start, End: list[len(list)-1].Span.End}, strings.Join(texts, ", "))
	return e, true
}

func (p *pruner) anyPositive(fqns []string) bool {
	for _, f := range fqns {
		if p.lookup.Positive(f) {
			return true
		}
	}
	return false
}
