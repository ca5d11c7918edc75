package references

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/pyshake/pkg/pyast"
)

type testModule struct {
	spec string
	mod  *pyast.Module
}

// modules parses sources keyed by relative path; specs derive from paths.
func modules(t *testing.T, files map[string]string) []testModule {
	t.Helper()
	var out []testModule
	for rel, src := range files {
		mod, err := pyast.Parse(context.Background(), filepath.FromSlash(rel), []byte(src))
		require.NoError(t, err, rel)
		spec := strings.TrimSuffix(rel, ".py")
		spec = strings.TrimSuffix(spec, "/__init__")
		spec = strings.TrimSuffix(spec, "/__main__")
		out = append(out, testModule{spec: strings.ReplaceAll(spec, "/", "."), mod: mod})
	}
	return out
}

func converge(t *testing.T, c *Counter, mods []testModule) int {
	t.Helper()
	for sweep := 1; sweep <= 20; sweep++ {
		newRefs := 0
		for _, m := range mods {
			n, err := c.CountModule(context.Background(), m.spec, m.mod)
			require.NoError(t, err)
			newRefs += n
		}
		if newRefs == 0 {
			return sweep
		}
	}
	t.Fatal("no fixed point after 20 sweeps")
	return 0
}

func TestTableIncreaseFollowsAliasChain(t *testing.T) {
	table := NewTable(map[string]string{
		"a.X": "b.X",
		"b.X": "c.X",
		"c.X": "a.X",
	})

	assert.Equal(t, 3, table.Increase("a.X"))
	assert.Equal(t, 0, table.Increase("a.X"), "only transitions to positive are new")
	for _, k := range []string{"a.X", "b.X", "c.X"} {
		assert.Equal(t, 2, table.Count(k), k)
	}
	assert.Equal(t, 1, table.Increase("b.X")+table.Increase("unrelated"))
}

func TestTableAbsentEqualsZero(t *testing.T) {
	table := NewTable(nil)
	table.MakeKnown("pkg.f")

	assert.True(t, table.Known("pkg.f"))
	assert.False(t, table.Known("pkg.g"))
	assert.Equal(t, table.Positive("pkg.f"), table.Positive("pkg.g"))
	assert.False(t, table.Referenced("pkg"))

	assert.Equal(t, 1, table.Increase("pkg.f"))
	assert.True(t, table.Referenced("pkg"))
	assert.False(t, table.Referenced("pk"))
	assert.Equal(t, 1, table.PositiveCount())
	assert.Equal(t, 1, table.Len())
}

func TestSnapshot(t *testing.T) {
	table := NewTable(nil)
	table.Increase("pkg.mod.f")
	table.Increase("pkg.other")
	table.MakeKnown("pkg.dead")
	snap := table.Snapshot()

	assert.True(t, snap.Referenced("pkg"))
	assert.True(t, snap.Referenced("pkg.mod"))
	assert.False(t, snap.Positive("pkg.mod"))
	assert.False(t, snap.Referenced("pkg.dead"))
	assert.True(t, snap.Known("pkg.dead"))
	assert.Equal(t, []string{"pkg.mod.f", "pkg.other"}, snap.PositiveWithPrefix("pkg."))
	assert.Empty(t, snap.PositiveWithPrefix("zzz"))

	known := snap.WithKnownModules([]string{"pkg.mod", "pkg.dead"})
	assert.True(t, known.Positive("pkg.mod"))
	assert.False(t, known.Positive("pkg.dead"))
	assert.False(t, snap.Positive("pkg.mod"), "original snapshot is unchanged")

	table.Increase("later")
	assert.False(t, snap.Positive("later"))
}

func TestMergeCountsTransitions(t *testing.T) {
	table := NewTable(nil)
	table.Increase("a")

	mods := modules(t, map[string]string{
		"m/__main__.py": "import a\nimport b\n",
	})
	d, err := NewCounter(table, Options{}).Visit(context.Background(), table.Snapshot(), mods[0].spec, mods[0].mod)
	require.NoError(t, err)
	assert.Positive(t, d.Len())
	assert.Zero(t, table.Count("b"), "visits do not touch the table")

	assert.Equal(t, 1, table.Merge(d))
	assert.Equal(t, 2, table.Count("a"))
	assert.Equal(t, 1, table.Count("b"))
	assert.Zero(t, table.Merge(nil))
}

func TestDeadFunctionIsNotReferenced(t *testing.T) {
	mods := modules(t, map[string]string{
		"main/__main__.py": "from lib import used\n\nused()\n",
		"lib.py":           "def used():\n    return helper()\n\n\ndef helper():\n    return 1\n\n\ndef unused():\n    return 2\n",
	})
	table := NewTable(nil)
	converge(t, NewCounter(table, Options{}), mods)

	assert.True(t, table.Positive("lib.used"))
	assert.True(t, table.Positive("lib.helper"))
	assert.False(t, table.Positive("lib.unused"))
	assert.True(t, table.Known("lib.unused"))
}

func TestWildcardReExportChain(t *testing.T) {
	mods := modules(t, map[string]string{
		"main/__main__.py": "from c import X\nprint(X)\n",
		"a.py":             "X = 1\nY = 2\n",
		"b.py":             "from a import *\n",
		"c.py":             "from b import X\n",
	})
	table := NewTable(nil)
	converge(t, NewCounter(table, Options{}), mods)

	assert.True(t, table.Positive("c.X"))
	assert.True(t, table.Positive("b.X"))
	assert.True(t, table.Positive("a.X"))
	assert.False(t, table.Positive("a.Y"))
}

func TestEntryModulesAreImmune(t *testing.T) {
	mods := modules(t, map[string]string{
		"app/__main__.py": "def never():\n    pass\n\nx = 1\n",
		"cli.py":          "def command():\n    pass\n",
		"idle.py":         "def idle():\n    pass\n",
	})
	table := NewTable(nil)
	converge(t, NewCounter(table, Options{EntryModules: []string{"cli"}}), mods)

	assert.True(t, table.Positive("app.never"))
	assert.True(t, table.Positive("app.x"))
	assert.True(t, table.Positive("cli.command"))
	assert.False(t, table.Positive("idle.idle"))
}

func TestMonotoneConvergence(t *testing.T) {
	mods := modules(t, map[string]string{
		"main/__main__.py": "import lib\nlib.run()\n",
		"lib/__init__.py":  "from .core import run\n",
		"lib/core.py":      "from .util import step\n\n\ndef run():\n    step()\n",
		"lib/util.py":      "def step():\n    pass\n\n\ndef spare():\n    pass\n",
	})
	table := NewTable(nil)
	c := NewCounter(table, Options{})
	sweeps := converge(t, c, mods)
	assert.GreaterOrEqual(t, sweeps, 2)

	before := table.Counts()
	for _, m := range mods {
		n, err := c.CountModule(context.Background(), m.spec, m.mod)
		require.NoError(t, err)
		assert.Zero(t, n, m.spec)
	}
	after := table.Counts()
	for k, n := range before {
		assert.GreaterOrEqual(t, after[k], n, k)
	}
	assert.True(t, table.Positive("lib.util.step"))
	assert.False(t, table.Positive("lib.util.spare"))
}

func TestImportAliasPropagation(t *testing.T) {
	mods := modules(t, map[string]string{
		"main/__main__.py": "from shim.api import Client\nClient()\n",
	})
	table := NewTable(map[string]string{"shim.api.Client": "real.api.Client"})
	converge(t, NewCounter(table, Options{}), mods)

	assert.True(t, table.Positive("shim.api.Client"))
	assert.True(t, table.Positive("real.api.Client"))
}

func TestDecorators(t *testing.T) {
	mods := modules(t, map[string]string{
		"main/__main__.py": "import lib\n",
		"lib.py": "import functools\n\n\n@functools.lru_cache\ndef cached():\n    pass\n\n\n" +
			"@register\ndef plugin():\n    pass\n\n\n@property\ndef prop(self):\n    pass\n\n\n" +
			"@functools.wraps(prop)\ndef wrapped():\n    pass\n",
	})
	table := NewTable(nil)
	converge(t, NewCounter(table, Options{}), mods)

	assert.False(t, table.Positive("lib.cached"))
	assert.True(t, table.Positive("lib.plugin"))
	assert.True(t, table.Positive("lib.register"))
	assert.False(t, table.Positive("lib.prop"))
	assert.False(t, table.Positive("lib.wrapped"))

	custom := NewTable(nil)
	converge(t, NewCounter(custom, Options{SafeDecorators: []string{"lib.register"}}), mods)
	assert.False(t, custom.Positive("lib.plugin"))
	assert.True(t, custom.Positive("lib.cached"), "only configured decorators are safe")
}

func TestModuleLevelSideEffects(t *testing.T) {
	mods := modules(t, map[string]string{
		"main/__main__.py": "import plugins\n",
		"plugins.py": "registry = {}\n\n\ndef plugin():\n    pass\n\n\nregister(plugin)\n" +
			"handlers = make_handlers()\n\n\ndef __getattr__(name):\n    pass\n",
		"tool.py": "def run():\n    pass\n\n\nif __name__ == \"__main__\":\n    run()\n",
	})
	table := NewTable(nil)
	converge(t, NewCounter(table, Options{}), mods)

	assert.True(t, table.Positive("plugins.plugin"))
	assert.True(t, table.Positive("plugins.handlers"))
	assert.True(t, table.Positive("plugins.__getattr__"))
	assert.False(t, table.Positive("plugins.registry"))
	assert.True(t, table.Positive("tool.run"), "main guard is always live")
}

func TestModuleLevelLoopsAndAttributeAssignments(t *testing.T) {
	body := "helpers = []\ncfg = Settings\n\n\ndef compute():\n    return 1\n\n\n" +
		"for name in helpers:\n    compute()\n\ncfg.debug = True\n"
	mods := modules(t, map[string]string{
		"main/__main__.py": "import lib\nprint(lib.cfg)\n",
		"lib.py":           body,
		"idle.py":          body,
	})
	table := NewTable(nil)
	converge(t, NewCounter(table, Options{}), mods)

	tests := []struct {
		name string
		want bool
	}{
		{"lib.helpers", true},
		{"lib.compute", true},
		{"lib.cfg", true},
		{"lib.cfg.debug", true},
		{"idle.helpers", false},
		{"idle.compute", false},
		{"idle.cfg", false},
		{"idle.cfg.debug", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Positive(tt.name))
		})
	}
}

func TestDottedImportKeepsTopLevelUse(t *testing.T) {
	mods := modules(t, map[string]string{
		"main/__main__.py": "from lib import f\nf()\n",
		"lib.py":           "import os.path\nimport json\n\n\ndef f():\n    return os.getcwd()\n",
	})
	table := NewTable(nil)
	converge(t, NewCounter(table, Options{}), mods)

	assert.True(t, table.Positive("os.path"))
	assert.False(t, table.Positive("json"))
}

func TestStringAnnotations(t *testing.T) {
	mods := modules(t, map[string]string{
		"main/__main__.py": "import lib\n\n\ndef f(x: \"lib.Thing\") -> 'Optional[lib.Other]':\n    pass\n",
	})
	table := NewTable(nil)
	converge(t, NewCounter(table, Options{}), mods)

	assert.True(t, table.Positive("lib.Thing"))
	assert.True(t, table.Positive("lib.Other"))
}

func TestVisitCancelled(t *testing.T) {
	mods := modules(t, map[string]string{"m.py": "x = 1\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	table := NewTable(nil)
	_, err := NewCounter(table, Options{}).Visit(ctx, table.Snapshot(), mods[0].spec, mods[0].mod)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultSafeDecorators(t *testing.T) {
	safe := DefaultSafeDecorators()
	assert.Contains(t, safe, "__builtin__.property")
	assert.Contains(t, safe, "dataclasses.dataclass")
	assert.Contains(t, safe, "pydantic.v1.class_validators.validator")
	assert.IsIncreasing(t, safe)
}
