package importgraph

import (
	"strings"
)

// MermaidOptions controls diagram generation.
type MermaidOptions struct {
	MaxNodes  int    `json:"max_nodes"`
	MaxEdges  int    `json:"max_edges"`
	Direction string `json:"direction"`
	// Cycles marks every module of a cycle.
	Cycles [][]string `json:"-"`
}

// DefaultMermaidOptions returns sensible defaults.
func DefaultMermaidOptions() MermaidOptions {
	return MermaidOptions{
		MaxNodes:  100,
		MaxEdges:  300,
		Direction: "TD",
	}
}

// ToMermaid renders g as a Mermaid flowchart. Opaque modules get a
// stadium shape and modules of a cycle the "cycle" class.
func ToMermaid(g *Graph, opts MermaidOptions) string {
	var b strings.Builder
	direction := opts.Direction
	if direction == "" {
		direction = "TD"
	}
	b.WriteString("graph " + direction + "\n")

	nodes, edges := g.Nodes, g.Edges
	if opts.MaxNodes > 0 && len(nodes) > opts.MaxNodes {
		nodes = nodes[:opts.MaxNodes]
		keep := make(map[string]bool, len(nodes))
		for _, n := range nodes {
			keep[n.ID] = true
		}
		var filtered []Edge
		for _, e := range edges {
			if keep[e.From] && keep[e.To] {
				filtered = append(filtered, e)
			}
		}
		edges = filtered
	}
	if opts.MaxEdges > 0 && len(edges) > opts.MaxEdges {
		edges = edges[:opts.MaxEdges]
	}

	inCycle := make(map[string]bool)
	for _, c := range opts.Cycles {
		for _, m := range c {
			inCycle[m] = true
		}
	}

	for _, n := range nodes {
		id, label := SanitizeMermaidID(n.ID), EscapeMermaidLabel(n.ID)
		open, close := "[\"", "\"]"
		if n.Opaque {
			open, close = "([\"", "\"])"
		}
		b.WriteString("    " + id + open + label + close)
		if inCycle[n.ID] {
			b.WriteString(":::cycle")
		}
		b.WriteString("\n")
	}
	for _, e := range edges {
		b.WriteString("    " + SanitizeMermaidID(e.From) + " --> " + SanitizeMermaidID(e.To) + "\n")
	}
	if len(inCycle) > 0 {
		b.WriteString("    classDef cycle fill:#FF6347\n")
	}
	return b.String()
}

// SanitizeMermaidID makes a module name safe as a Mermaid node ID.
func SanitizeMermaidID(id string) string {
	if id == "" {
		return "empty"
	}
	out := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			out = append(out, c)
		} else {
			out = append(out, '_')
		}
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = append([]byte{'n'}, out...)
	}
	return string(out)
}

var labelEscaper = strings.NewReplacer(
	"&", "&amp;",
	`"`, "&quot;",
	"<", "&lt;",
	">", "&gt;",
	"|", "&#124;",
	"[", "&#91;",
	"]", "&#93;",
	"{", "&#123;",
	"}", "&#125;",
)

// EscapeMermaidLabel escapes characters Mermaid treats as syntax in labels.
func EscapeMermaidLabel(s string) string {
	return labelEscaper.Replace(s)
}
