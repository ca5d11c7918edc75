package importgraph

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/pyshake/pkg/collector"
)

func graphOf(edges ...string) *Graph {
	g := &Graph{}
	seen := map[string]bool{}
	node := func(id string) {
		if !seen[id] {
			seen[id] = true
			g.Nodes = append(g.Nodes, Node{ID: id})
		}
	}
	for i := 0; i+1 < len(edges); i += 2 {
		node(edges[i])
		node(edges[i+1])
		g.Edges = append(g.Edges, Edge{From: edges[i], To: edges[i+1]})
	}
	return g
}

func assertLoadOrder(t *testing.T, g *Graph, order []string, cyclic map[string]bool) {
	t.Helper()
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for _, e := range g.Edges {
		if cyclic[e.From] && cyclic[e.To] {
			continue
		}
		assert.Less(t, pos[e.To], pos[e.From], "%s imports %s and must load after it", e.From, e.To)
	}
}

func TestAnalyzeAcyclic(t *testing.T) {
	g := graphOf(
		"app", "app.cli",
		"app.cli", "app.core",
		"app", "app.core",
		"app.core", "app.util",
	)
	a := Analyze(g)

	assert.False(t, a.Summary.IsCyclic)
	assert.Empty(t, a.Cycles)
	assert.Equal(t, 4, a.Summary.Modules)
	assert.Equal(t, 1, a.Summary.Components)
	require.Len(t, a.LoadOrder, 4)
	assert.Equal(t, "app.util", a.LoadOrder[0])
	assert.Equal(t, "app", a.LoadOrder[3])
	assertLoadOrder(t, g, a.LoadOrder, nil)
}

func TestAnalyzeCycles(t *testing.T) {
	g := graphOf(
		"main", "a",
		"a", "b",
		"b", "a",
		"b", "leaf",
		"x", "y",
		"y", "z",
		"z", "x",
	)
	a := Analyze(g)

	assert.True(t, a.Summary.IsCyclic)
	assert.Equal(t, [][]string{{"a", "b"}, {"x", "y", "z"}}, a.Cycles)
	assert.Equal(t, 2, a.Summary.Components)

	cyclic := map[string]bool{"a": true, "b": true, "x": true, "y": true, "z": true}
	assertLoadOrder(t, g, a.LoadOrder, cyclic)
	ia := slices.Index(a.LoadOrder, "a")
	assert.Equal(t, "b", a.LoadOrder[ia+1], "cycle members are adjacent")

	for _, m := range a.Modules {
		assert.Equal(t, cyclic[m.ID], m.InCycle, m.ID)
	}
}

func TestAnalyzeMetrics(t *testing.T) {
	g := graphOf(
		"a", "shared",
		"b", "shared",
		"c", "shared",
		"shared", "shared",
	)
	a := Analyze(g)

	assert.Equal(t, 1, a.Summary.SelfImports)
	require.NotEmpty(t, a.Modules)
	top := a.Modules[0]
	assert.Equal(t, "shared", top.ID, "the most imported module ranks first")
	assert.Equal(t, 3, top.ImportedBy)
	assert.Equal(t, 0, top.Imports)
}

func TestAnalyzeEmpty(t *testing.T) {
	a := Analyze(&Graph{})
	assert.Zero(t, a.Summary.Modules)
	assert.Empty(t, a.LoadOrder)
}

func TestFromCollected(t *testing.T) {
	src := "import app.util\n"
	res := &collector.Result{
		Files: collector.CollectedFiles{
			{Name: "app", Path: "/src/app/__init__.py"}:    &src,
			{Name: "app", Path: "/src/app/__main__.py"}:    &src,
			{Name: "app.util", Path: "/src/app/util.py"}:   &src,
			{Name: "_speedups", Path: "/src/_speedups.so"}: nil,
		},
		Edges: []collector.Edge{{From: "app", To: "app.util"}, {From: "app.util", To: "_speedups"}},
	}

	g := FromCollected(res)
	require.Len(t, g.Nodes, 3)
	assert.Len(t, g.Edges, 2)

	byID := map[string]Node{}
	for _, n := range g.Nodes {
		byID[n.ID] = n
	}
	assert.True(t, byID["_speedups"].Opaque)
	assert.False(t, byID["app.util"].Opaque)
	assert.Equal(t, "/src/app/__init__.py", byID["app"].Path)
}

func TestReachable(t *testing.T) {
	g := graphOf(
		"app", "app.core",
		"app.core", "app.util",
		"tools", "app.util",
	)
	assert.Equal(t, []string{"app", "app.core", "app.util"}, Reachable(g, "app"))
	assert.Equal(t, []string{"app.util"}, Reachable(g, "app.util"))
	assert.Nil(t, Reachable(g, "missing"))
}
