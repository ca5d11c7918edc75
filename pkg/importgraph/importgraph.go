// Package importgraph analyzes the module import graph produced by the
// collector: import cycles, a dependency-first load order and import
// centrality.
package importgraph

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/panbanda/pyshake/pkg/collector"
)

// Node is a module of the graph.
type Node struct {
	ID     string `json:"id"`
	Path   string `json:"path,omitempty"`
	Opaque bool   `json:"opaque,omitempty"`
}

// Edge means From imports To.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is a directed import graph.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// FromCollected builds the graph of a collection run. A module found at
// several paths becomes one node carrying the first path.
func FromCollected(res *collector.Result) *Graph {
	g := &Graph{}
	seen := make(map[string]bool)
	for _, key := range res.Files.Keys() {
		if seen[key.Name] {
			continue
		}
		seen[key.Name] = true
		g.Nodes = append(g.Nodes, Node{
			ID:     key.Name,
			Path:   key.Path,
			Opaque: res.Files[key] == nil,
		})
	}
	for _, e := range res.Edges {
		g.Edges = append(g.Edges, Edge{From: e.From, To: e.To})
	}
	return g
}

// ModuleMetrics describes one module's place in the graph.
type ModuleMetrics struct {
	ID         string  `json:"id"`
	Imports    int     `json:"imports"`
	ImportedBy int     `json:"imported_by"`
	PageRank   float64 `json:"pagerank"`
	InCycle    bool    `json:"in_cycle,omitempty"`
}

// Summary aggregates graph-wide results.
type Summary struct {
	Modules     int  `json:"modules"`
	Imports     int  `json:"imports"`
	Components  int  `json:"components"`
	IsCyclic    bool `json:"is_cyclic"`
	SelfImports int  `json:"self_imports,omitempty"`
}

// Analysis is the result of Analyze.
type Analysis struct {
	Modules []ModuleMetrics `json:"modules"`
	// Cycles are the strongly connected components of more than one module,
	// each sorted by name.
	Cycles [][]string `json:"cycles,omitempty"`
	// LoadOrder lists modules so that every module comes after the modules
	// it imports. Modules of a cycle are adjacent, in name order.
	LoadOrder []string `json:"load_order"`

	Summary Summary `json:"summary"`
}

// gonumGraph holds the gonum representation and mappings.
type gonumGraph struct {
	directed   *simple.DirectedGraph
	undirected *simple.UndirectedGraph
	nodeIDToID map[string]int64
	idToNodeID map[int64]string
}

// toGonumGraph converts g to gonum graphs. Self-imports are dropped since
// simple graphs cannot hold loops; edges to unknown modules get nodes.
func toGonumGraph(g *Graph) (*gonumGraph, int) {
	gg := &gonumGraph{
		directed:   simple.NewDirectedGraph(),
		undirected: simple.NewUndirectedGraph(),
		nodeIDToID: make(map[string]int64),
		idToNodeID: make(map[int64]string),
	}
	add := func(name string) int64 {
		if id, ok := gg.nodeIDToID[name]; ok {
			return id
		}
		id := int64(len(gg.nodeIDToID))
		gg.nodeIDToID[name] = id
		gg.idToNodeID[id] = name
		gg.directed.AddNode(simple.Node(id))
		gg.undirected.AddNode(simple.Node(id))
		return id
	}
	for _, n := range g.Nodes {
		add(n.ID)
	}

	selfImports := 0
	for _, e := range g.Edges {
		from, to := add(e.From), add(e.To)
		if from == to {
			selfImports++
			continue
		}
		gg.directed.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
		if !gg.undirected.HasEdgeBetween(from, to) {
			gg.undirected.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
		}
	}
	return gg, selfImports
}

func (gg *gonumGraph) names(nodes []graph.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = gg.idToNodeID[n.ID()]
	}
	slices.Sort(out)
	return out
}

// Analyze computes cycles, load order and per-module metrics.
func Analyze(g *Graph) *Analysis {
	a := &Analysis{Summary: Summary{Imports: len(g.Edges)}}
	gg, selfImports := toGonumGraph(g)
	a.Summary.SelfImports = selfImports
	a.Summary.Modules = len(gg.nodeIDToID)
	if a.Summary.Modules == 0 {
		return a
	}

	sccs := topo.TarjanSCC(gg.directed)
	inCycle := make(map[string]bool)
	for _, scc := range sccs {
		if len(scc) < 2 {
			continue
		}
		names := gg.names(scc)
		a.Cycles = append(a.Cycles, names)
		for _, n := range names {
			inCycle[n] = true
		}
	}
	slices.SortFunc(a.Cycles, func(x, y []string) int { return cmp.Compare(x[0], y[0]) })
	a.Summary.IsCyclic = len(a.Cycles) > 0
	a.Summary.Components = len(topo.ConnectedComponents(gg.undirected))
	a.LoadOrder = loadOrder(gg, sccs)

	pageRank := network.PageRank(gg.directed, 0.85, 1e-6)
	for id, name := range gg.idToNodeID {
		a.Modules = append(a.Modules, ModuleMetrics{
			ID:         name,
			Imports:    gg.directed.From(id).Len(),
			ImportedBy: gg.directed.To(id).Len(),
			PageRank:   pageRank[id],
			InCycle:    inCycle[name],
		})
	}
	slices.SortFunc(a.Modules, func(x, y ModuleMetrics) int {
		return cmp.Or(cmp.Compare(y.PageRank, x.PageRank), cmp.Compare(x.ID, y.ID))
	})
	return a
}

// loadOrder sorts the condensation of the graph, whose nodes are the
// strongly connected components, and emits imported components first.
func loadOrder(gg *gonumGraph, sccs [][]graph.Node) []string {
	component := make(map[int64]int64, len(gg.idToNodeID))
	members := make(map[int64][]string, len(sccs))
	cond := simple.NewDirectedGraph()
	for i, scc := range sccs {
		cid := int64(i)
		cond.AddNode(simple.Node(cid))
		members[cid] = gg.names(scc)
		for _, n := range scc {
			component[n.ID()] = cid
		}
	}
	edges := gg.directed.Edges()
	for edges.Next() {
		e := edges.Edge()
		from, to := component[e.From().ID()], component[e.To().ID()]
		if from != to {
			cond.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
		}
	}

	byFirstMember := func(nodes []graph.Node) {
		slices.SortFunc(nodes, func(x, y graph.Node) int {
			return cmp.Compare(members[x.ID()][0], members[y.ID()][0])
		})
	}
	// the condensation is acyclic, so sorting cannot fail
	sorted, _ := topo.SortStabilized(cond, byFirstMember)

	order := make([]string, 0, len(gg.idToNodeID))
	for i := len(sorted) - 1; i >= 0; i-- {
		order = append(order, members[sorted[i].ID()]...)
	}
	return order
}

// Reachable returns the modules reachable from root, root included, sorted
// by name. An unknown root yields nil.
func Reachable(g *Graph, root string) []string {
	gg, _ := toGonumGraph(g)
	id, ok := gg.nodeIDToID[root]
	if !ok {
		return nil
	}
	var out []string
	dfs := traverse.DepthFirst{
		Visit: func(n graph.Node) { out = append(out, gg.idToNodeID[n.ID()]) },
	}
	dfs.Walk(gg.directed, simple.Node(id), nil)
	slices.Sort(out)
	return out
}
