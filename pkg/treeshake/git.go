package treeshake

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-git/v5"
)

// ErrDirtyWorktree is returned when tracked files under the tree-shaken
// directory have uncommitted changes.
var ErrDirtyWorktree = errors.New("working tree has uncommitted changes")

// CheckClean fails with ErrDirtyWorktree when tracked files under dir are
// modified or staged. Untracked files are not considered dirty.
func CheckClean(dir string) error {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return fmt.Errorf("opening repository at %s: %w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("reading worktree status: %w", err)
	}

	prefix := ""
	if rel, err := filepath.Rel(wt.Filesystem.Root(), dir); err == nil && rel != "." {
		prefix = filepath.ToSlash(rel) + "/"
	}

	var dirty []string
	for path, s := range status {
		if s.Staging == git.Untracked && s.Worktree == git.Untracked {
			continue
		}
		if s.Staging == git.Unmodified && s.Worktree == git.Unmodified {
			continue
		}
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		dirty = append(dirty, path)
	}
	if len(dirty) == 0 {
		return nil
	}
	slices.Sort(dirty)
	return fmt.Errorf("%w: %s", ErrDirtyWorktree, strings.Join(dirty, ", "))
}
