package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/toolmint/toolmint/pkg/schema"
)

// HandleValidate implements the toolmint/validate MCP tool.
func (h *Handlers) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	t, errs := schema.ValidateFile(path)
	if hasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}
	return textResult(fmt.Sprintf("✓ tool %s is valid (%d fields, %d steps)", t.ID, len(t.Inputs), len(t.Logic))), nil
}

// HandleSchema implements the toolmint/schema MCP tool.
func (h *Handlers) HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// HandleList implements the toolmint/list MCP tool.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type row struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
		Steps  int    `json:"steps"`
	}
	var rows []row
	for _, t := range h.Store.List() {
		rows = append(rows, row{ID: t.ID, Name: t.Name, Status: t.Status, Steps: len(t.Logic)})
	}
	data, _ := json.MarshalIndent(rows, "", "  ")
	return textResult(string(data)), nil
}

// HandleTest implements the toolmint/test MCP tool.
func (h *Handlers) HandleTest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, _ := args["id"].(string)
	if id == "" {
		return errorResult("id argument is required"), nil
	}
	input, _ := args["input"].(map[string]any)

	resp := h.Harness.TestTool(ctx, id, input)
	data, _ := json.MarshalIndent(resp, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: !resp.Success,
	}, nil
}

// HandleRun implements the toolmint/run MCP tool.
func (h *Handlers) HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, _ := args["id"].(string)
	if id == "" {
		return errorResult("id argument is required"), nil
	}
	input, _ := args["input"].(map[string]any)

	resp := h.Harness.RunPublishedTool(ctx, id, input)
	data, _ := json.MarshalIndent(resp, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: !resp.Success,
	}, nil
}

func hasErrors(errs []*schema.ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

func formatErrors(errs []*schema.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "error" {
			msgs = append(msgs, e.Error())
		}
	}
	return strings.Join(msgs, "; ")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
