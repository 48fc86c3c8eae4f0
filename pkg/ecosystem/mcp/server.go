// Package mcp exposes the tool engine over the Model Context Protocol
// so agent hosts can validate, test, and run tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/toolmint/toolmint/pkg/harness"
	"github.com/toolmint/toolmint/pkg/store"
)

// Handlers binds the MCP tool handlers to a store and harness.
type Handlers struct {
	Store   *store.Store
	Harness *harness.Harness
}

// NewServer creates an MCP server with the toolmint tools registered.
func NewServer(version string, h *Handlers) *server.MCPServer {
	s := server.NewMCPServer(
		"toolmint",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("toolmint/validate",
			mcp.WithDescription("Validate a tool definition YAML file"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the .tool.yaml file")),
		),
		h.HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("toolmint/schema",
			mcp.WithDescription("Export the tool definition JSON Schema"),
		),
		h.HandleSchema,
	)

	s.AddTool(
		mcp.NewTool("toolmint/list",
			mcp.WithDescription("List stored tools with their lifecycle status"),
		),
		h.HandleList,
	)

	s.AddTool(
		mcp.NewTool("toolmint/test",
			mcp.WithDescription("Execute a stored tool (any status) against test input"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Tool id")),
			mcp.WithObject("input", mcp.Description("Test input keyed by field id")),
		),
		h.HandleTest,
	)

	s.AddTool(
		mcp.NewTool("toolmint/run",
			mcp.WithDescription("Run a published tool against user input"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Tool id")),
			mcp.WithObject("input", mcp.Description("Input keyed by field id")),
		),
		h.HandleRun,
	)

	return s
}
