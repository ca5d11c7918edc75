package mcpserver

import (
	"bytes"
	"context"
	"slices"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/panbanda/pyshake/internal/output"
	"github.com/panbanda/pyshake/pkg/collector"
	"github.com/panbanda/pyshake/pkg/importgraph"
	"github.com/panbanda/pyshake/pkg/remover"
	"github.com/panbanda/pyshake/pkg/rewrite"
	"github.com/panbanda/pyshake/pkg/treeshake"
)

// CollectInput selects the entry module to collect from.
type CollectInput struct {
	Module      string   `json:"module" jsonschema:"Dotted name of the entry module, e.g. mypkg.cli."`
	SearchPaths []string `json:"search_paths,omitempty" jsonschema:"Directories imports are resolved against. Defaults to the configured search paths."`
	Format      string   `json:"format,omitempty" jsonschema:"Output format: toon (default), json, or markdown."`
}

// RewriteInput is a source to vendor.
type RewriteInput struct {
	Source          string `json:"source" jsonschema:"Python source code to rewrite."`
	TopLevelPackage string `json:"top_level_package" jsonschema:"First-party top-level package the vendored namespace lives in."`
	Vendor          string `json:"vendor,omitempty" jsonschema:"Name of the vendored subpackage. Defaults to the configured vendor name."`
	Format          string `json:"format,omitempty" jsonschema:"Output format: toon (default), json, or markdown."`
}

// TreeshakeInput configures a dry-run tree shake.
type TreeshakeInput struct {
	Path            string   `json:"path,omitempty" jsonschema:"Directory holding the Python modules. Defaults to the current directory."`
	PreserveSymbols []string `json:"preserve_symbols,omitempty" jsonschema:"Extra FQNs or glob patterns to keep, e.g. mypkg.plugins.*."`
	EntryModules    []string `json:"entry_modules,omitempty" jsonschema:"Extra modules whose whole body is live."`
	Format          string   `json:"format,omitempty" jsonschema:"Output format: toon (default), json, or markdown."`
}

type collectedFile struct {
	Module string `json:"module" toon:"module"`
	Path   string `json:"path" toon:"path"`
	Opaque bool   `json:"opaque,omitempty" toon:"opaque"`
}

type importEdge struct {
	From string `json:"from" toon:"from"`
	To   string `json:"to" toon:"to"`
}

type collectSummary struct {
	Modules    int `json:"modules" toon:"modules"`
	Imports    int `json:"imports" toon:"imports"`
	Components int `json:"components" toon:"components"`
	Cycles     int `json:"cycles" toon:"cycles"`
}

type collectOutput struct {
	Files     []collectedFile `json:"files" toon:"files"`
	Edges     []importEdge    `json:"edges" toon:"edges"`
	Cycles    [][]string      `json:"cycles,omitempty" toon:"cycles"`
	LoadOrder []string        `json:"load_order" toon:"load_order"`
	Summary   collectSummary  `json:"summary" toon:"summary"`
}

type rewriteOutput struct {
	Source string `json:"source" toon:"source"`
}

type kindCount struct {
	Kind  string `json:"kind" toon:"kind"`
	Count int    `json:"count" toon:"count"`
}

type moduleChange struct {
	Module  string `json:"module" toon:"module"`
	Path    string `json:"path" toon:"path"`
	Action  string `json:"action" toon:"action"`
	Removed int    `json:"removed" toon:"removed"`
}

type previewOutput struct {
	Root       string         `json:"root" toon:"root"`
	Modules    int            `json:"modules" toon:"modules"`
	Sweeps     []int          `json:"sweeps" toon:"sweeps"`
	References int            `json:"references" toon:"references"`
	Removed    []kindCount    `json:"removed" toon:"removed"`
	Rewritten  int            `json:"rewritten" toon:"rewritten"`
	Deleted    int            `json:"deleted" toon:"deleted"`
	Truncated  int            `json:"truncated" toon:"truncated"`
	Changes    []moduleChange `json:"changes" toon:"changes"`
	Unparsed   []string       `json:"unparsed,omitempty" toon:"unparsed"`
	Errors     []string       `json:"errors,omitempty" toon:"errors"`
}

func getFormat(format string) output.Format {
	switch strings.ToLower(format) {
	case "json":
		return output.FormatJSON
	case "markdown", "md":
		return output.FormatMarkdown
	default:
		return output.FormatTOON
	}
}

func formatOutput(data any, format output.Format) (string, error) {
	var buf bytes.Buffer
	f, err := output.NewFormatterTo(&buf, format, "", false)
	if err != nil {
		return "", err
	}
	if err := f.Output(data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func toolResult(data any, format output.Format) (*mcp.CallToolResult, any, error) {
	text, err := formatOutput(data, format)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}, nil, nil
}

func toolError(msg string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Error: " + msg},
		},
		IsError: true,
	}, nil, nil
}

func (s *Server) handleCollectModules(ctx context.Context, req *mcp.CallToolRequest, input CollectInput) (*mcp.CallToolResult, any, error) {
	if input.Module == "" {
		return toolError("module is required")
	}
	paths := input.SearchPaths
	if len(paths) == 0 {
		paths = s.config.Python.SearchPaths
	}

	res, err := collector.Collect(ctx, collector.Options{
		Resolver:      collector.NewPathResolver(paths...),
		Classifier:    s.config.Classifier(),
		ImportAliases: s.config.Treeshake.ImportAliases,
	}, input.Module)
	if err != nil {
		return toolError(err.Error())
	}
	if len(res.Files) == 0 {
		return toolError("module " + input.Module + " not found on the search paths")
	}

	out := collectOutput{}
	for _, k := range res.Files.Keys() {
		out.Files = append(out.Files, collectedFile{Module: k.Name, Path: k.Path, Opaque: res.Files[k] == nil})
	}
	for _, e := range res.Edges {
		out.Edges = append(out.Edges, importEdge{From: e.From, To: e.To})
	}
	analysis := importgraph.Analyze(importgraph.FromCollected(res))
	out.Cycles = analysis.Cycles
	out.LoadOrder = analysis.LoadOrder
	out.Summary = collectSummary{
		Modules:    analysis.Summary.Modules,
		Imports:    analysis.Summary.Imports,
		Components: analysis.Summary.Components,
		Cycles:     len(analysis.Cycles),
	}
	return toolResult(out, getFormat(input.Format))
}

func (s *Server) handleRewriteImports(ctx context.Context, req *mcp.CallToolRequest, input RewriteInput) (*mcp.CallToolResult, any, error) {
	if input.TopLevelPackage == "" || strings.Contains(input.TopLevelPackage, ".") {
		return toolError("top_level_package must be a single module name")
	}
	vendor := input.Vendor
	if vendor == "" {
		vendor = s.config.Bundle.VendorName
	}

	rw := rewrite.New(input.TopLevelPackage, vendor, s.config.Classifier())
	out, err := rw.Rewrite(ctx, "<source>", []byte(input.Source))
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(rewriteOutput{Source: string(out)}, getFormat(input.Format))
}

func (s *Server) handleTreeshakePreview(ctx context.Context, req *mcp.CallToolRequest, input TreeshakeInput) (*mcp.CallToolResult, any, error) {
	path := input.Path
	if path == "" {
		path = "."
	}
	opts := treeshake.OptionsFromConfig(s.config)
	opts.DryRun = true
	opts.PreserveSymbols = slices.Concat(opts.PreserveSymbols, input.PreserveSymbols)
	opts.EntryModules = slices.Concat(opts.EntryModules, input.EntryModules)

	res, err := treeshake.Run(ctx, path, opts)
	if err != nil {
		return toolError(err.Error())
	}
	if res.Modules == 0 {
		return toolError("no Python modules found under " + path)
	}
	return toolResult(preview(res), getFormat(input.Format))
}

func preview(res *treeshake.Result) previewOutput {
	out := previewOutput{
		Root:       res.Root,
		Modules:    res.Modules,
		References: res.References,
		Rewritten:  res.Summary.Rewritten,
		Deleted:    res.Summary.Deleted,
		Truncated:  res.Summary.Truncated,
		Unparsed:   res.Unparsed,
		Errors:     res.Errors,
	}
	for _, sw := range res.Sweeps {
		out.Sweeps = append(out.Sweeps, sw.NewReferences)
	}
	for _, kind := range remover.SortedKinds(res.Summary.Removed) {
		out.Removed = append(out.Removed, kindCount{Kind: kind, Count: res.Summary.Removed[kind]})
	}
	for _, r := range res.Summary.Results {
		if r.Action == remover.Unchanged {
			continue
		}
		n := 0
		for _, c := range r.Removed {
			n += c
		}
		out.Changes = append(out.Changes, moduleChange{Module: r.Module, Path: r.Path, Action: string(r.Action), Removed: n})
	}
	return out
}
