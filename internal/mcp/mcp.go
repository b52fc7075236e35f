// Package mcp implements the Model Context Protocol server for Apparatus.
//
// It exposes the read side of the tracking API as MCP tools so
// MCP-compatible agents can inspect experiments, runs, params, metric
// series, and artifacts without scraping the HTTP API. All tools are
// read-only; logging data still goes through the ingestion endpoints.
package mcp

import (
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/apparatuslabs/apparatus/internal/storage"
)

// Server wraps the MCP server with the storage layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	store     storage.Store
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all tools registered.
func New(store storage.Store, version string, logger *slog.Logger) *Server {
	s := &Server{
		store:  store,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"apparatus",
		version,
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		IsError: true,
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
	}
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}
