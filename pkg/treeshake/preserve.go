package treeshake

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"github.com/panbanda/pyshake/pkg/fullname"
	"github.com/panbanda/pyshake/pkg/pyast"
)

// definitions returns the FQNs a module defines at module scope and inside
// its classes, the module itself included.
func definitions(spec string, mod *pyast.Module) []string {
	out := map[string]struct{}{spec: {}}
	collectDefinitions(spec, mod.Body, out)
	return slices.Sorted(maps.Keys(out))
}

func collectDefinitions(scope string, body []pyast.Stmt, out map[string]struct{}) {
	for _, s := range body {
		switch s := s.(type) {
		case *pyast.FunctionDef:
			out[scope+"."+s.Name] = struct{}{}
		case *pyast.ClassDef:
			name := scope + "." + s.Name
			out[name] = struct{}{}
			collectDefinitions(name, s.Body.Body, out)
		default:
			if bound, _, ok := fullname.StmtTargets(s); ok {
				for _, b := range bound {
					out[scope+"."+b] = struct{}{}
				}
			}
		}
	}
}

func isPattern(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

// expandPreserve resolves preserve entries to FQNs. Literal entries are
// kept as given; glob patterns match defined names, with "*" stopping at
// dots and "**" crossing them. The result is closed over aliases in both
// directions.
func expandPreserve(entries []string, defs []string, aliases map[string]string) ([]string, error) {
	set := make(map[string]struct{})
	for _, e := range entries {
		if !isPattern(e) {
			set[e] = struct{}{}
			continue
		}
		g, err := glob.Compile(e, '.')
		if err != nil {
			return nil, fmt.Errorf("preserve pattern %q: %w", e, err)
		}
		for _, d := range defs {
			if g.Match(d) {
				set[d] = struct{}{}
			}
		}
	}

	reverse := make(map[string][]string, len(aliases))
	for from, to := range aliases {
		reverse[to] = append(reverse[to], from)
	}
	queue := slices.Collect(maps.Keys(set))
	for len(queue) > 0 {
		name := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		next := reverse[name]
		if to, ok := aliases[name]; ok {
			next = append(next, to)
		}
		for _, n := range next {
			if _, ok := set[n]; !ok {
				set[n] = struct{}{}
				queue = append(queue, n)
			}
		}
	}
	return slices.Sorted(maps.Keys(set)), nil
}
