// Package mcpserver exposes module collection, import rewriting and
// tree-shake previews as Model Context Protocol tools.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/panbanda/pyshake/pkg/config"
)

// Server wraps the MCP server and registers all pyshake tools.
type Server struct {
	server *mcp.Server
	config *config.Config
}

// NewServer creates a new MCP server with all pyshake tools registered.
// Tool defaults come from cfg; nil uses the default configuration.
func NewServer(version string, cfg *config.Config) *Server {
	if version == "" {
		version = "dev"
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "pyshake",
			Version: version,
		},
		nil,
	)

	s := &Server{server: server, config: cfg}
	s.registerTools()
	s.registerPrompts()
	return s
}

// Run starts the MCP server over stdio transport.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "collect_modules",
		Description: describeCollectModules(),
	}, s.handleCollectModules)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "rewrite_imports",
		Description: describeRewriteImports(),
	}, s.handleRewriteImports)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "treeshake_preview",
		Description: describeTreeshakePreview(),
	}, s.handleTreeshakePreview)
}
