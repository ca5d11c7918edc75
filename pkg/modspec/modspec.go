// Package modspec holds pure helpers over dotted Python module paths:
// parent/top-level package computation, standard-library classification and
// relative import resolution.
package modspec

import (
	"path/filepath"
	"strings"
)

const (
	// InitFile is the package entry file name.
	InitFile = "__init__.py"
	// MainFile is the package main/entry-point file name.
	MainFile = "__main__.py"
)

// ParentPackage returns all but the last dotted segment, or spec unchanged
// when it has no dot.
func ParentPackage(spec string) string {
	if i := strings.LastIndexByte(spec, '.'); i >= 0 {
		return spec[:i]
	}
	return spec
}

// TopLevelPackage returns the first dotted segment.
func TopLevelPackage(spec string) string {
	if i := strings.IndexByte(spec, '.'); i >= 0 {
		return spec[:i]
	}
	return spec
}

// LastSegment returns the last dotted segment.
func LastSegment(spec string) string {
	if i := strings.LastIndexByte(spec, '.'); i >= 0 {
		return spec[i+1:]
	}
	return spec
}

// HasPrefix reports whether spec equals prefix or lies below it.
func HasPrefix(spec, prefix string) bool {
	return spec == prefix || strings.HasPrefix(spec, prefix+".")
}

// Join joins non-empty dotted parts.
func Join(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ".")
}

// IsPackageEntry reports whether path is a package __init__ file.
func IsPackageEntry(path string) bool {
	base := filepath.Base(path)
	return base == InitFile || base == "__init__.pyi"
}

// IsMainEntry reports whether path is a package __main__ file.
func IsMainEntry(path string) bool {
	return filepath.Base(path) == MainFile
}

// SpecFromPath derives the dotted module name of a file relative to a
// source root. "__init__" and "__main__" segments are dropped so a package
// entry maps to the package itself.
func SpecFromPath(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if ext := filepath.Ext(rel); ext != "" {
		rel = strings.TrimSuffix(rel, ext)
	}
	// extension modules carry an ABI tag: mod.cpython-312-x86_64-linux-gnu
	if i := strings.IndexByte(filepath.Base(rel), '.'); i >= 0 {
		rel = rel[:len(rel)-len(filepath.Base(rel))+i]
	}
	spec := strings.ReplaceAll(rel, "/", ".")
	spec = strings.TrimSuffix(spec, ".__init__")
	spec = strings.TrimSuffix(spec, ".__main__")
	return spec, nil
}

// NextParentPackage is the package that relative imports inside the module
// file at path resolve against.
func NextParentPackage(spec, path string) string {
	if IsPackageEntry(path) || IsMainEntry(path) {
		return spec
	}
	return ParentPackage(spec)
}
