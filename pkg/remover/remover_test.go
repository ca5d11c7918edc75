package remover

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/pyshake/internal/testutil"
	"github.com/panbanda/pyshake/pkg/names"
	"github.com/panbanda/pyshake/pkg/pyast"
	"github.com/panbanda/pyshake/pkg/references"
)

func snapshot(positive ...string) *references.Snapshot {
	table := references.NewTable(nil)
	for _, p := range positive {
		table.Increase(p)
	}
	return table.Snapshot()
}

func prune(t *testing.T, lookup references.Lookup, spec, path, src string) *Pruned {
	t.Helper()
	mod, err := pyast.Parse(context.Background(), path, []byte(src))
	require.NoError(t, err)
	out, err := Prune(lookup, spec, mod, false)
	require.NoError(t, err)
	return out
}

const libSource = "import os\n\n\ndef used():\n    return helper()\n\n\ndef helper():\n    return 1\n\n\ndef unused():\n    return 2\n"

func TestPruneDeadFunction(t *testing.T) {
	out := prune(t, snapshot("lib.used", "lib.helper"), "lib", "lib.py", libSource)

	got := string(out.Source)
	assert.True(t, out.Changed)
	assert.False(t, out.Empty)
	assert.Contains(t, got, "def used():\n    return helper()\n")
	assert.Contains(t, got, "def helper():\n    return 1\n")
	assert.NotContains(t, got, "unused")
	assert.NotContains(t, got, "import os")
	assert.Equal(t, map[string]int{KindFunction: 1, KindImport: 1}, out.Removed)
}

func TestPruneIsIdempotent(t *testing.T) {
	lookup := snapshot("lib.used", "lib.helper")
	first := prune(t, lookup, "lib", "lib.py", libSource)
	second := prune(t, lookup, "lib", "lib.py", string(first.Source))

	assert.False(t, second.Changed)
	assert.Equal(t, string(first.Source), string(second.Source))
	assert.Empty(t, second.Removed)
}

func TestPruneImportAliases(t *testing.T) {
	src := "import os, sys as system, json\n" +
		"from pkg import a, b as bee, c\n" +
		"from x import *\n" +
		"from __future__ import annotations\n" +
		"from ....nowhere import y\n"
	out := prune(t, snapshot("sys", "pkg.b"), "m", "m.py", src)

	assert.Equal(t, "import sys as system\n"+
		"from pkg import b as bee\n"+
		"from x import *\n"+
		"from __future__ import annotations\n"+
		"from ....nowhere import y\n", string(out.Source))
	assert.Equal(t, 4, out.Removed[KindAlias])
}

func TestPruneDuplicateBoundNames(t *testing.T) {
	out := prune(t, snapshot("a", "b"), "m", "m.py", "import a as x, b as x\nprint(x)\n")
	assert.Equal(t, "import b as x\nprint(x)\n", string(out.Source))
}

func TestPruneParenthesizedImport(t *testing.T) {
	src := "from pkg import (\n    a,\n    b,\n)\n"
	out := prune(t, snapshot("pkg.b"), "m", "m.py", src)
	assert.Equal(t, "from pkg import (\n    b,\n)\n", string(out.Source))
}

func TestPrunePassInsertion(t *testing.T) {
	src := "if flag:\n    import json\nelse:\n    value = 1\n"
	out := prune(t, snapshot("m.value"), "m", "m.py", src)
	assert.Equal(t, "if flag:\n    pass\nelse:\n    value = 1\n", string(out.Source))
}

func TestPruneDropsEmptiedCompound(t *testing.T) {
	src := "from typing import TYPE_CHECKING\n\nif TYPE_CHECKING:\n    from pkg import Thing\n\nkeep = 1\n"
	out := prune(t, snapshot("typing.TYPE_CHECKING", "m.keep"), "m", "m.py", src)

	got := string(out.Source)
	assert.NotContains(t, got, "if TYPE_CHECKING")
	assert.Contains(t, got, "from typing import TYPE_CHECKING\n")
	assert.Contains(t, got, "keep = 1\n")
	assert.Equal(t, 1, out.Removed[KindCompound])
}

func TestPruneClassMembers(t *testing.T) {
	src := "class Box:\n    size = 1\n\n    def open(self):\n        pass\n\n    def close(self):\n        pass\n\n\nclass Empty:\n    x = 1\n"
	out := prune(t, snapshot("m.Box", "m.Box.size", "m.Box.open", "m.Empty"), "m", "m.py", src)

	got := string(out.Source)
	assert.Contains(t, got, "class Box:\n    size = 1\n")
	assert.Contains(t, got, "def open(self):")
	assert.NotContains(t, got, "def close")
	assert.NotContains(t, got, "class Empty", "a class without surviving members is dropped")
}

func TestPruneEmptiedFunctionGetsPass(t *testing.T) {
	src := "def f():\n    unused = 1\n"
	out := prune(t, snapshot("m.f"), "m", "m.py", src)
	assert.Equal(t, "def f():\n    pass\n", string(out.Source))
}

func TestPruneAttributeAndSubscriptTargets(t *testing.T) {
	src := "import registry\n\nregistry.items['a'] = 1\nconfig.debug = True\n"
	out := prune(t, snapshot("registry"), "m", "m.py", src)

	got := string(out.Source)
	assert.Contains(t, got, "registry.items['a'] = 1\n")
	assert.NotContains(t, got, "config.debug")
}

func TestPruneEmptyModule(t *testing.T) {
	out := prune(t, snapshot(), "m", "m.py", "import os\nx = 1\n")
	assert.True(t, out.Empty)
	assert.Equal(t, 1, out.Removed[KindImport])
	assert.Equal(t, 1, out.Removed[KindAssign])
}

func TestHasReferencesForStmt(t *testing.T) {
	mod, err := pyast.Parse(context.Background(), "pkg/__main__.py", []byte("def f():\n    pass\nimport os\n"))
	require.NoError(t, err)
	lookup := snapshot()
	provider := names.NewProvider("pkg", "pkg")

	for _, s := range mod.Body {
		provider.VisitStmt(s)
		assert.True(t, HasReferencesForStmt(lookup, provider, s, true), "entry statements are always referenced")
		assert.False(t, HasReferencesForStmt(lookup, provider, s, false))
	}

	entry, err := Prune(lookup, "pkg", mod, true)
	require.NoError(t, err)
	assert.False(t, entry.Changed)
}

func TestRemoveAllFileEffects(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"app/__main__.py":        "from app.lib import used\nused()\n",
		"app/__init__.py":        "",
		"app/lib.py":             libSource,
		"app/dead.py":            "def gone():\n    pass\n",
		"app/only/__init__.py":   "import os\n",
		"app/nested/deep/mod.py": "x = 1\n",
		"app/shared/__init__.py": "import os\n",
		"app/shared/keep.py":     "VALUE = 1\n",
		"app/broken.py":          "def broken(:\n",
	})
	table := references.NewTable(nil)
	for _, k := range []string{"app.lib.used", "app.lib.helper", "app.shared.keep.VALUE"} {
		table.Increase(k)
	}

	mods := []Module{
		{"app", filepath.Join(root, "app/__main__.py")},
		{"app", filepath.Join(root, "app/__init__.py")},
		{"app.lib", filepath.Join(root, "app/lib.py")},
		{"app.dead", filepath.Join(root, "app/dead.py")},
		{"app.only", filepath.Join(root, "app/only/__init__.py")},
		{"app.nested.deep.mod", filepath.Join(root, "app/nested/deep/mod.py")},
		{"app.shared", filepath.Join(root, "app/shared/__init__.py")},
		{"app.shared.keep", filepath.Join(root, "app/shared/keep.py")},
		{"app.broken", filepath.Join(root, "app/broken.py")},
	}
	r := New(table.Snapshot(), Options{Root: root})
	summary, errs := r.RemoveAll(context.Background(), mods, 2, nil)
	require.Nil(t, errs)

	assert.FileExists(t, filepath.Join(root, "app/__main__.py"))
	assert.NoFileExists(t, filepath.Join(root, "app/dead.py"))
	assert.NoDirExists(t, filepath.Join(root, "app/nested"), "emptied directories cascade")

	only, err := os.ReadFile(filepath.Join(root, "app/only/__init__.py"))
	require.NoError(t, err, "a lone __init__ keeps its package")
	assert.Empty(t, only)

	assert.NoFileExists(t, filepath.Join(root, "app/shared/__init__.py"))
	assert.FileExists(t, filepath.Join(root, "app/shared/keep.py"))

	broken, err := os.ReadFile(filepath.Join(root, "app/broken.py"))
	require.NoError(t, err)
	assert.Equal(t, "def broken(:\n", string(broken))

	lib, err := os.ReadFile(filepath.Join(root, "app/lib.py"))
	require.NoError(t, err)
	assert.NotContains(t, string(lib), "unused")

	assert.Equal(t, 1, summary.Rewritten)
	assert.Equal(t, 3, summary.Deleted)
	assert.Equal(t, 1, summary.Truncated)
	assert.Contains(t, summary.RemovedDirs, filepath.Join(root, "app/nested"))
	assert.Contains(t, summary.RemovedDirs, filepath.Join(root, "app/nested/deep"))
	assert.Positive(t, summary.StatementsRemoved())
}

func TestRemoveKeepsInitBesideDirectories(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"cached/__init__.py":       "import os\n",
		"cached/__pycache__/x.pyc": "",
		"parent/__init__.py":       "import os\n",
		"parent/sub/mod.py":        "VALUE = 1\n",
		"withfile/__init__.py":     "import os\n",
		"withfile/data.txt":        "payload\n",
	})
	table := references.NewTable(nil)
	table.Increase("parent.sub.mod.VALUE")
	r := New(table.Snapshot(), Options{Root: root})

	tests := []struct {
		spec   string
		action Action
	}{
		{"cached", Truncated},
		{"parent", Truncated},
		{"withfile", Deleted},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			path := filepath.Join(root, tt.spec, "__init__.py")
			res, err := r.RemoveModule(context.Background(), tt.spec, path)
			require.NoError(t, err)
			assert.Equal(t, tt.action, res.Action)
			if tt.action == Truncated {
				content, err := os.ReadFile(path)
				require.NoError(t, err, "the package keeps its __init__")
				assert.Empty(t, content)
			} else {
				assert.NoFileExists(t, path)
			}
		})
	}
	assert.FileExists(t, filepath.Join(root, "parent/sub/mod.py"))
}

func TestRemoveModuleDryRun(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{"lib.py": libSource, "dead.py": "x = 1\n"})
	table := references.NewTable(nil)
	table.Increase("lib.used")
	table.Increase("lib.helper")

	r := New(table.Snapshot(), Options{Root: root, DryRun: true})
	res, err := r.RemoveModule(context.Background(), "lib", filepath.Join(root, "lib.py"))
	require.NoError(t, err)
	assert.Equal(t, Rewritten, res.Action)

	res, err = r.RemoveModule(context.Background(), "dead", filepath.Join(root, "dead.py"))
	require.NoError(t, err)
	assert.Equal(t, Deleted, res.Action)

	content, err := os.ReadFile(filepath.Join(root, "lib.py"))
	require.NoError(t, err)
	assert.Equal(t, libSource, string(content))
	assert.FileExists(t, filepath.Join(root, "dead.py"))
}

func TestRemoveDeadCodeKnownModules(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{"m.py": "import pkg.sub\nfrom pkg import other\n"})
	table := references.NewTable(nil)
	table.Increase("pkg.sub.thing")
	table.MakeKnown("pkg.other")

	res, err := RemoveDeadCode(context.Background(), "m", filepath.Join(root, "m.py"), table, Options{
		Root:         root,
		KnownModules: []string{"pkg.sub"},
	})
	require.NoError(t, err)
	assert.Equal(t, Rewritten, res.Action)

	content, err := os.ReadFile(filepath.Join(root, "m.py"))
	require.NoError(t, err)
	assert.Equal(t, "import pkg.sub\n", string(content))
}
