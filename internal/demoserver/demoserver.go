// Package demoserver provides a small in-process MCP tool server used
// to exercise the client pool and workflow engine in tests and local
// development, standing in for a real peer tool server.
package demoserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/muster-fabric/internal/dispatcher"
)

// New builds an MCP server exposing "greet" and "echo" tools, backed
// by a dispatcher.Dispatcher so the same validation and panic-safety
// rules apply here as to any other fabric tool.
func New() *server.MCPServer {
	d := dispatcher.New()
	registerTools(d)

	mcpServer := server.NewMCPServer(
		"muster-fabric-demo",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
	)

	for _, tool := range d.List() {
		mcpServer.AddTool(toMCPTool(tool), bridgeHandler(d, tool.Name))
	}

	return mcpServer
}

func registerTools(d *dispatcher.Dispatcher) {
	d.Register(dispatcher.Tool{
		Name:        "greet",
		Description: "Return a greeting for the given name.",
		Schema: dispatcher.ArgSchema{
			"name": {Type: "string", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (*dispatcher.Envelope, error) {
			name, _ := args["name"].(string)
			return dispatcher.TextEnvelope(fmt.Sprintf("hello, %s", name)), nil
		},
	})

	d.Register(dispatcher.Tool{
		Name:        "echo",
		Description: "Echo back the given message.",
		Schema: dispatcher.ArgSchema{
			"message": {Type: "string", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (*dispatcher.Envelope, error) {
			message, _ := args["message"].(string)
			return dispatcher.TextEnvelope(message), nil
		},
	})
}

func toMCPTool(t dispatcher.Tool) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(t.Description)}
	for field, schema := range t.Schema {
		var fieldOpts []mcp.PropertyOption
		if schema.Required {
			fieldOpts = append(fieldOpts, mcp.Required())
		}
		switch schema.Type {
		case "number":
			opts = append(opts, mcp.WithNumber(field, fieldOpts...))
		case "boolean":
			opts = append(opts, mcp.WithBoolean(field, fieldOpts...))
		default:
			opts = append(opts, mcp.WithString(field, fieldOpts...))
		}
	}
	return mcp.NewTool(t.Name, opts...)
}

func bridgeHandler(d *dispatcher.Dispatcher, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		env, err := d.Call(ctx, name, request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		content := make([]mcp.Content, 0, len(env.Content))
		for _, part := range env.Content {
			content = append(content, mcp.NewTextContent(part.Text))
		}
		return &mcp.CallToolResult{Content: content, IsError: env.IsError}, nil
	}
}
