package names

import (
	"github.com/panbanda/pyshake/pkg/modspec"
	"github.com/panbanda/pyshake/pkg/pyast"
)

const (
	importlibModule = "importlib"
	importModule    = "import_module"
	builtinImport   = "__import__"
)

// DynamicImports recognises reflection-style imports:
// importlib.import_module("a.b"), an aliased importlib module or
// import_module function, and __import__("a.b"). Aliases are module-global:
// once observed they stay active for the rest of the visit.
type DynamicImports struct {
	modules   map[string]struct{}
	functions map[string]struct{}
}

// NewDynamicImports creates a tracker knowing only the unaliased forms.
func NewDynamicImports() *DynamicImports {
	return &DynamicImports{
		modules:   make(map[string]struct{}),
		functions: map[string]struct{}{builtinImport: {}},
	}
}

// Observe learns importlib aliases from an import statement.
func (d *DynamicImports) Observe(s pyast.Stmt) {
	switch s := s.(type) {
	case *pyast.Import:
		for _, a := range s.Names {
			switch {
			case a.Name == importlibModule:
				d.modules[a.BoundName()] = struct{}{}
			case a.AsName == "" && modspec.TopLevelPackage(a.Name) == importlibModule:
				// "import importlib.util" binds importlib as well
				d.modules[importlibModule] = struct{}{}
			}
		}
	case *pyast.ImportFrom:
		if s.Level != 0 || s.Module != importlibModule {
			return
		}
		for _, a := range s.Names {
			if a.Name == importModule {
				d.functions[a.BoundName()] = struct{}{}
			}
		}
	}
}

// Match returns the imported module when call is a dynamic import whose
// sole positional argument is a plain string literal.
func (d *DynamicImports) Match(call *pyast.Call) (string, bool) {
	if !d.IsImportCallee(call.Func) {
		return "", false
	}
	if len(call.Args) != 1 {
		return "", false
	}
	lit, ok := call.Args[0].(*pyast.StringLit)
	if !ok || len(lit.Interpolations) > 0 || lit.Value == "" {
		return "", false
	}
	return lit.Value, true
}

// IsImportCallee reports whether callee names a dynamic import function.
func (d *DynamicImports) IsImportCallee(callee pyast.Expr) bool {
	switch f := callee.(type) {
	case *pyast.Name:
		_, ok := d.functions[f.ID]
		return ok
	case *pyast.Attribute:
		if f.Attr != importModule {
			return false
		}
		mod, ok := f.Value.(*pyast.Name)
		if !ok {
			return false
		}
		_, ok = d.modules[mod.ID]
		return ok
	}
	return false
}
