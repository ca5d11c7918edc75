// Package fullname maps syntax nodes to the local dotted names they define
// or reference, before any scope qualification or alias resolution.
package fullname

import (
	"github.com/panbanda/pyshake/pkg/modspec"
	"github.com/panbanda/pyshake/pkg/pyast"
)

// ForExpr returns the local names an expression refers to. Attribute chains
// yield every rooted prefix ("a", "a.b", "a.b.c") since later code may
// reference any intermediate segment.
func ForExpr(e pyast.Expr) []string {
	switch e := e.(type) {
	case *pyast.Name:
		return []string{e.ID}
	case *pyast.Attribute:
		base := ForExpr(e.Value)
		if len(base) == 0 {
			return nil
		}
		return append(base, base[len(base)-1]+"."+e.Attr)
	case *pyast.Call:
		return ForExpr(e.Func)
	case *pyast.Subscript:
		return ForExpr(e.Value)
	case *pyast.NamedExpr:
		if e.Target == nil {
			return nil
		}
		return []string{e.Target.ID}
	case *pyast.Tuple:
		var out []string
		for _, elt := range e.Elts {
			out = append(out, ForExpr(elt)...)
		}
		return out
	case *pyast.Starred:
		return ForExpr(e.Value)
	}
	return nil
}

// ForStmt returns the local names a statement defines or references.
// parentPackage is needed to resolve relative import-from statements.
func ForStmt(s pyast.Stmt, parentPackage string) []string {
	switch s := s.(type) {
	case *pyast.Assign:
		var out []string
		for _, t := range s.Targets {
			out = append(out, ForExpr(t)...)
		}
		return out
	case *pyast.AnnAssign:
		return ForExpr(s.Target)
	case *pyast.AugAssign:
		return ForExpr(s.Target)
	case *pyast.FunctionDef:
		return []string{s.Name}
	case *pyast.ClassDef:
		return []string{s.Name}
	case *pyast.TypeAlias:
		return []string{s.Name}
	case *pyast.ExprStmt:
		return ForExpr(s.Value)
	case *pyast.Global:
		return append([]string(nil), s.Names...)
	case *pyast.Nonlocal:
		return append([]string(nil), s.Names...)
	case *pyast.Import:
		out := make([]string, 0, len(s.Names))
		for _, a := range s.Names {
			out = append(out, a.Name)
		}
		return out
	case *pyast.ImportFrom:
		specs, err := modspec.ImportFromModuleSpecs(s, parentPackage, false)
		if err != nil {
			return nil
		}
		var out []string
		for _, spec := range specs {
			for _, a := range s.Names {
				out = append(out, spec+"."+a.Name)
			}
		}
		return out
	}
	return nil
}

// Targets splits an assignment target into the names it binds and the
// roots of objects it mutates. "x = ..." binds x; "obj.attr = ..." binds
// "obj.attr" and mutates root "obj"; "d[k] = ..." only mutates "d".
func Targets(e pyast.Expr) (bound []string, roots []string) {
	switch e := e.(type) {
	case *pyast.Name:
		return []string{e.ID}, nil
	case *pyast.Attribute:
		if name, ok := pyast.DottedName(e); ok {
			root := name
			if r, ok := pyast.ChainRoot(e).(*pyast.Name); ok {
				root = r.ID
			}
			return []string{name}, []string{root}
		}
		return nil, rootNames(e)
	case *pyast.Subscript:
		return nil, rootNames(e)
	case *pyast.Tuple:
		for _, elt := range e.Elts {
			b, r := Targets(elt)
			bound = append(bound, b...)
			roots = append(roots, r...)
		}
		return bound, roots
	case *pyast.Starred:
		return Targets(e.Value)
	}
	return nil, nil
}

func rootNames(e pyast.Expr) []string {
	if n, ok := pyast.ChainRoot(e).(*pyast.Name); ok {
		return []string{n.ID}
	}
	return nil
}

// StmtTargets applies Targets to every target of an assignment-like
// statement. ok is false for other statements.
func StmtTargets(s pyast.Stmt) (bound []string, roots []string, ok bool) {
	var targets []pyast.Expr
	switch s := s.(type) {
	case *pyast.Assign:
		targets = s.Targets
	case *pyast.AnnAssign:
		targets = []pyast.Expr{s.Target}
	case *pyast.AugAssign:
		targets = []pyast.Expr{s.Target}
	case *pyast.TypeAlias:
		return []string{s.Name}, nil, true
	default:
		return nil, nil, false
	}
	for _, t := range targets {
		b, r := Targets(t)
		bound = append(bound, b...)
		roots = append(roots, r...)
	}
	return bound, roots, true
}
