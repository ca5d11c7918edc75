package scanner

import (
	"cmp"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/panbanda/pyshake/pkg/config"
	"github.com/panbanda/pyshake/pkg/modspec"
	"github.com/panbanda/pyshake/pkg/parser"
)

// Scanner finds Python source files in a directory.
type Scanner struct {
	config   *config.Config
	matchers []gitignore.Matcher
}

// Module is a source file and the dotted module name it defines.
type Module struct {
	Spec string `json:"module"`
	Path string `json:"path"`
}

// NewScanner creates a new file scanner.
func NewScanner(cfg *config.Config) *Scanner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Scanner{config: cfg}
}

// FindGitRoot returns the closest directory at or above start that holds a
// .git directory, or "" outside a repository.
func FindGitRoot(start string) string {
	dir := start
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadExcludePatterns combines config patterns and directories with every
// .gitignore of the enclosing repository. Patterns are relative to root.
func (s *Scanner) loadExcludePatterns(root string) {
	s.matchers = nil
	var patterns []gitignore.Pattern

	for _, pattern := range s.config.Exclude.Patterns {
		patterns = append(patterns, gitignore.ParsePattern(pattern, nil))
	}
	for _, dir := range s.config.Exclude.Dirs {
		patterns = append(patterns, gitignore.ParsePattern(dir+"/", nil))
	}

	if s.config.Exclude.Gitignore {
		if gitRoot := FindGitRoot(root); gitRoot != "" {
			if gitPatterns, err := gitignore.ReadPatterns(osfs.New(gitRoot), nil); err == nil {
				if gitRoot == root {
					patterns = append(patterns, gitPatterns...)
				} else {
					// repository patterns are anchored at the repository root
					s.matchers = append(s.matchers, prefixed{
						matcher: gitignore.NewMatcher(gitPatterns),
						prefix:  relParts(gitRoot, root),
					})
				}
			}
		}
	}

	if len(patterns) > 0 {
		s.matchers = append(s.matchers, gitignore.NewMatcher(patterns))
	}
}

// prefixed evaluates paths relative to a subdirectory against a matcher
// rooted higher up.
type prefixed struct {
	matcher gitignore.Matcher
	prefix  []string
}

func (p prefixed) Match(path []string, isDir bool) bool {
	return p.matcher.Match(append(slices.Clone(p.prefix), path...), isDir)
}

func relParts(base, target string) []string {
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == "." {
		return nil
	}
	return strings.Split(rel, string(filepath.Separator))
}

// isExcluded checks if a path relative to the scan root matches any
// exclusion pattern.
func (s *Scanner) isExcluded(path string, isDir bool) bool {
	if len(s.matchers) == 0 || path == "." {
		return false
	}
	parts := strings.Split(path, string(filepath.Separator))
	for _, m := range s.matchers {
		if m.Match(parts, isDir) {
			return true
		}
	}
	return false
}

// ScanDir recursively scans a directory for Python source files. Symlinks
// resolving outside root are skipped.
func (s *Scanner) ScanDir(root string) ([]string, error) {
	files := make([]string, 0, 256)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	absRoot, err = filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, err
	}

	s.loadExcludePatterns(absRoot)

	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		relPath, _ := filepath.Rel(absRoot, path)

		if d.Type()&fs.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil || !isWithinRoot(resolved, absRoot) {
				return nil
			}
		}

		if d.IsDir() {
			if s.isExcluded(relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if s.isExcluded(relPath, false) {
			return nil
		}
		if parser.IsSource(path) {
			files = append(files, path)
		}
		return nil
	})

	return files, walkErr
}

// ScanModules scans root and names every file by its module spec relative
// to root. Package __init__ files sort after the other modules, deepest
// first, so their packages are complete when they are visited.
func (s *Scanner) ScanModules(root string) ([]Module, error) {
	files, err := s.ScanDir(root)
	if err != nil {
		return nil, err
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	absRoot, err = filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, err
	}

	mods := make([]Module, 0, len(files))
	for _, f := range files {
		spec, err := modspec.SpecFromPath(absRoot, f)
		if err != nil {
			return nil, err
		}
		// a root-level package entry has no importable name
		if spec == "" || spec == "__init__" {
			continue
		}
		mods = append(mods, Module{Spec: spec, Path: f})
	}
	SortModules(mods)
	return mods, nil
}

// SortModules orders regular modules by path, then package __init__ files
// deepest first.
func SortModules(mods []Module) {
	slices.SortStableFunc(mods, func(a, b Module) int {
		ai, bi := modspec.IsPackageEntry(a.Path), modspec.IsPackageEntry(b.Path)
		switch {
		case ai && !bi:
			return 1
		case !ai && bi:
			return -1
		case ai && bi:
			if c := cmp.Compare(depth(b.Path), depth(a.Path)); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.Path, b.Path)
	})
}

func depth(path string) int {
	return strings.Count(filepath.ToSlash(filepath.Clean(path)), "/")
}

// isWithinRoot checks if a path is contained within the root directory.
func isWithinRoot(path, root string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absPath = filepath.Clean(absPath)
	root = filepath.Clean(root)
	return absPath == root || strings.HasPrefix(absPath, root+string(filepath.Separator))
}
