package modspec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/panbanda/pyshake/pkg/pyast"
)

var (
	// ErrBeyondTopLevel is returned when a relative import climbs above the
	// top-level package.
	ErrBeyondTopLevel = errors.New("attempted relative import beyond top-level package")
	// ErrNoModuleSpec is returned for an import-from with neither a module
	// nor a relative level.
	ErrNoModuleSpec = errors.New("no absolute module spec could be found")
)

// ResolveRelativeName resolves name imported with the given relative level
// from inside enclosingPackage. Level 1 is the package itself, level 2 its
// parent, and so on.
func ResolveRelativeName(name, enclosingPackage string, level int) (string, error) {
	if level <= 0 {
		return name, nil
	}
	bits := strings.Split(enclosingPackage, ".")
	if enclosingPackage == "" || len(bits) < level {
		return "", fmt.Errorf("%s (level %d from %q): %w", name, level, enclosingPackage, ErrBeyondTopLevel)
	}
	base := strings.Join(bits[:len(bits)-(level-1)], ".")
	if name == "" {
		return base, nil
	}
	return base + "." + name, nil
}

// ImportFromModuleSpecs returns the absolute module path(s) an import-from
// statement refers to. With greedy set and no explicit module, every
// imported name is also returned as a potential submodule.
func ImportFromModuleSpecs(stmt *pyast.ImportFrom, parentPackage string, greedy bool) ([]string, error) {
	parentPackage = strings.TrimSuffix(parentPackage, ".__main__")
	if parentPackage == "__main__" {
		parentPackage = ""
	}

	if stmt.Level == 0 {
		if stmt.Module == "" {
			return nil, ErrNoModuleSpec
		}
		return []string{stmt.Module}, nil
	}

	target, err := ResolveRelativeName(stmt.Module, parentPackage, stmt.Level)
	if err != nil {
		return nil, err
	}
	specs := []string{target}
	if greedy && stmt.Module == "" {
		for _, a := range stmt.Names {
			if a.IsWildcard() {
				continue
			}
			specs = append(specs, target+"."+a.Name)
		}
	}
	return specs, nil
}
