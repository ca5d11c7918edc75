package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/pyshake/internal/output"
	"github.com/panbanda/pyshake/pkg/collector"
	"github.com/panbanda/pyshake/pkg/importgraph"
	"github.com/panbanda/pyshake/pkg/modspec"
	"github.com/panbanda/pyshake/pkg/treeshake"
)

func collectCmd() *cli.Command {
	return &cli.Command{
		Name:      "collect",
		Usage:     "List every module file a module statically imports",
		ArgsUsage: "<module>",
		Flags:     searchPathFlags(),
		Action:    runCollectCmd,
	}
}

// collectModules runs the collector for the module named by the first
// argument.
func collectModules(c *cli.Context) (*collector.Result, error) {
	entry, err := requireArg(c, "module")
	if err != nil {
		return nil, err
	}
	cfg := appConfig(c)
	res, err := collector.Collect(c.Context, collector.Options{
		Resolver:      collector.NewPathResolver(searchPaths(c, cfg)...),
		Classifier:    cfg.Classifier(),
		ImportAliases: cfg.Treeshake.ImportAliases,
	}, entry)
	if err != nil {
		return nil, err
	}
	if len(res.Files) == 0 {
		return nil, fmt.Errorf("module %s not found on the search paths", entry)
	}
	return res, nil
}

type collectedModule struct {
	Module string `json:"module" toon:"module"`
	Path   string `json:"path" toon:"path"`
	Opaque bool   `json:"opaque,omitempty" toon:"opaque"`
}

func runCollectCmd(c *cli.Context) error {
	res, err := collectModules(c)
	if err != nil {
		return err
	}
	formatter, err := newFormatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	data := make([]collectedModule, 0, len(res.Files))
	var rows [][]string
	opaque := 0
	for _, k := range res.Files.Keys() {
		m := collectedModule{Module: k.Name, Path: k.Path, Opaque: res.Files[k] == nil}
		data = append(data, m)
		kind := "source"
		if m.Opaque {
			kind = color.MagentaString("opaque")
			opaque++
		}
		rows = append(rows, []string{m.Module, m.Path, kind})
	}

	table := output.NewTable(
		"Collected Modules",
		[]string{"Module", "Path", "Kind"},
		rows,
		[]string{
			fmt.Sprintf("Files: %d", len(data)),
			fmt.Sprintf("Opaque: %d", opaque),
			fmt.Sprintf("Imports: %d", len(res.Edges)),
		},
		data,
	)
	return formatter.Output(table)
}

func graphCmd() *cli.Command {
	return &cli.Command{
		Name:      "graph",
		Aliases:   []string{"dag"},
		Usage:     "Analyze the import graph of a module: cycles, load order, PageRank",
		ArgsUsage: "<module>",
		Flags: append(searchPathFlags(),
			&cli.BoolFlag{
				Name:  "mermaid",
				Usage: "Print a Mermaid diagram instead of the analysis",
			},
			&cli.StringFlag{
				Name:  "direction",
				Value: "TD",
				Usage: "Mermaid direction: TD, LR, BT, RL",
			},
			&cli.StringFlag{
				Name:  "from",
				Usage: "Restrict the graph to modules reachable from this module",
			},
		),
		Action: runGraphCmd,
	}
}

func runGraphCmd(c *cli.Context) error {
	res, err := collectModules(c)
	if err != nil {
		return err
	}
	g := importgraph.FromCollected(res)
	if from := c.String("from"); from != "" {
		reach := importgraph.Reachable(g, from)
		if reach == nil {
			return fmt.Errorf("module %s is not in the graph", from)
		}
		g = subgraph(g, reach)
	}
	analysis := importgraph.Analyze(g)

	formatter, err := newFormatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if c.Bool("mermaid") {
		opts := importgraph.DefaultMermaidOptions()
		opts.Direction = strings.ToUpper(c.String("direction"))
		opts.Cycles = analysis.Cycles
		_, err := fmt.Fprint(formatter.Writer(), importgraph.ToMermaid(g, opts))
		return err
	}

	metrics := slices.Clone(analysis.Modules)
	slices.SortStableFunc(metrics, func(a, b importgraph.ModuleMetrics) int {
		switch {
		case a.PageRank > b.PageRank:
			return -1
		case a.PageRank < b.PageRank:
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	rows := make([][]string, 0, len(metrics))
	for _, m := range metrics {
		cycle := ""
		if m.InCycle {
			cycle = color.RedString("yes")
		}
		rows = append(rows, []string{
			m.ID,
			fmt.Sprintf("%d", m.Imports),
			fmt.Sprintf("%d", m.ImportedBy),
			fmt.Sprintf("%.4f", m.PageRank),
			cycle,
		})
	}

	sections := []output.Renderable{
		output.NewTable(
			"Modules",
			[]string{"Module", "Imports", "Imported By", "PageRank", "Cycle"},
			rows,
			[]string{
				fmt.Sprintf("Modules: %d", analysis.Summary.Modules),
				fmt.Sprintf("Imports: %d", analysis.Summary.Imports),
				fmt.Sprintf("Components: %d", analysis.Summary.Components),
				fmt.Sprintf("Cycles: %d", len(analysis.Cycles)),
			},
			nil,
		),
	}
	if len(analysis.Cycles) > 0 {
		cycles := make([]string, len(analysis.Cycles))
		for i, cyc := range analysis.Cycles {
			cycles[i] = "- " + strings.Join(cyc, " <-> ")
		}
		sections = append(sections, &output.Section{Title: "Cycles", Content: strings.Join(cycles, "\n")})
	}
	sections = append(sections, &output.Section{
		Title:   "Load Order",
		Content: strings.Join(analysis.LoadOrder, "\n"),
	})

	return formatter.Output(&output.Report{
		Title:    "Import Graph",
		Sections: sections,
		Data:     analysis,
	})
}

// subgraph keeps the nodes in ids and the edges between them.
func subgraph(g *importgraph.Graph, ids []string) *importgraph.Graph {
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	out := &importgraph.Graph{}
	for _, n := range g.Nodes {
		if keep[n.ID] {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, e := range g.Edges {
		if keep[e.From] && keep[e.To] {
			out.Edges = append(out.Edges, e)
		}
	}
	return out
}

func referencesCmd() *cli.Command {
	return &cli.Command{
		Name:      "references",
		Aliases:   []string{"refs"},
		Usage:     "Print the converged reference counts of every name under a directory",
		ArgsUsage: "[path]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "Only names under this dotted prefix",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Include known names that were never referenced",
			},
		},
		Action: runReferencesCmd,
	}
}

type referenceCount struct {
	Name  string `json:"name" toon:"name"`
	Count int    `json:"count" toon:"count"`
}

func runReferencesCmd(c *cli.Context) error {
	root := getPath(c)
	cfg := appConfig(c)

	formatter, err := newFormatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	ch, err := openCache(c, cfg)
	if err != nil {
		return err
	}
	opts := treeshake.OptionsFromConfig(cfg)
	opts.Cache = ch
	opts.DryRun = true
	tracker := newTracker(c, formatter, "Counting...", 0)
	opts.Progress = tracker

	res, err := treeshake.Run(c.Context, root, opts)
	if err != nil {
		tracker.FinishError(err)
		return err
	}
	tracker.FinishSuccess()

	prefix := c.String("prefix")
	counts := res.Table.Counts()
	names := make([]string, 0, len(counts))
	for name, n := range counts {
		if n == 0 && !c.Bool("all") {
			continue
		}
		if prefix != "" && !modspec.HasPrefix(name, prefix) {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)

	data := make([]referenceCount, len(names))
	rows := make([][]string, len(names))
	for i, name := range names {
		data[i] = referenceCount{Name: name, Count: counts[name]}
		count := fmt.Sprintf("%d", counts[name])
		if counts[name] == 0 {
			count = color.RedString(count)
		}
		rows[i] = []string{name, count}
	}

	return formatter.Output(output.NewTable(
		"References",
		[]string{"Name", "Count"},
		rows,
		[]string{
			fmt.Sprintf("Names: %d", len(names)),
			fmt.Sprintf("Referenced: %d", res.References),
			fmt.Sprintf("Sweeps: %d", len(res.Sweeps)),
		},
		data,
	))
}
