package collector

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/panbanda/pyshake/pkg/parser"
)

// Resolver maps a dotted module path to the file that defines it. ok is
// false when the module has no single file (unknown, namespace package).
type Resolver interface {
	Resolve(spec string) (key ModuleKey, ok bool)
}

// PathResolver resolves modules against an ordered list of source roots,
// the way a sys.path based finder does: package directories with an
// __init__ file first, then source modules, then native extensions.
type PathResolver struct {
	roots []string
}

// NewPathResolver creates a resolver searching roots in order.
func NewPathResolver(roots ...string) *PathResolver {
	abs := make([]string, 0, len(roots))
	for _, r := range roots {
		if a, err := filepath.Abs(r); err == nil {
			r = a
		}
		abs = append(abs, r)
	}
	return &PathResolver{roots: abs}
}

// Roots returns the search roots.
func (r *PathResolver) Roots() []string { return r.roots }

// Resolve implements Resolver.
func (r *PathResolver) Resolve(spec string) (ModuleKey, bool) {
	if spec == "" || strings.HasPrefix(spec, ".") || strings.HasSuffix(spec, ".") {
		return ModuleKey{}, false
	}
	rel := filepath.Join(strings.Split(spec, ".")...)
	for _, root := range r.roots {
		if path, ok := probe(filepath.Join(root, rel)); ok {
			return ModuleKey{Name: spec, Path: path}, true
		}
	}
	return ModuleKey{}, false
}

func probe(base string) (string, bool) {
	for _, init := range []string{"__init__.py", "__init__.pyi"} {
		if isFile(filepath.Join(base, init)) {
			return filepath.Join(base, init), true
		}
	}
	for _, ext := range parser.SourceExtensions {
		if isFile(base + ext) {
			return base + ext, true
		}
	}

	dir, name := filepath.Split(base)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fn := e.Name()
		if !strings.HasPrefix(fn, name+".") {
			continue
		}
		for _, suffix := range parser.ExtensionSuffixes {
			if strings.HasSuffix(fn, suffix) {
				return filepath.Join(dir, fn), true
			}
		}
	}
	return "", false
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
