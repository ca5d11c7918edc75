package main

import (
	"github.com/urfave/cli/v2"

	"github.com/panbanda/pyshake/internal/mcpserver"
)

func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Start MCP (Model Context Protocol) server for LLM tool integration",
		Description: `Starts an MCP server over stdio transport that exposes pyshake as tools
that LLMs can invoke.

To use with an MCP client, add to its config:
  {
    "mcpServers": {
      "pyshake": {
        "command": "pyshake",
        "args": ["mcp"]
      }
    }
  }

Available tools:
  - collect_modules     Files an entry module statically imports, cycles, load order
  - rewrite_imports     Vendor the imports of a Python source
  - treeshake_preview   Dry-run tree shake of a directory`,
		Action: runMCPCmd,
		Subcommands: []*cli.Command{
			{
				Name:   "manifest",
				Usage:  "Print the MCP registry manifest (server.json)",
				Action: runMCPManifestCmd,
			},
		},
	}
}

func runMCPCmd(c *cli.Context) error {
	server := mcpserver.NewServer(version, appConfig(c))
	return server.Run(c.Context)
}

func runMCPManifestCmd(c *cli.Context) error {
	data, err := mcpserver.GenerateManifest(version)
	if err != nil {
		return err
	}
	_, err = c.App.Writer.Write(append(data, '\n'))
	return err
}
