// Package app bootstraps the fabric: it loads configuration, wires
// together the event bus, client pool, workflow engine and aggregator,
// and serves the combined tool set over stdio.
//
// The Application follows a two-phase pattern:
//  1. Bootstrap phase: load configuration, open the store, construct
//     and register every component.
//  2. Execution phase: serve MCP over stdio until the process is
//     terminated.
package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/muster-fabric/internal/aggregator"
	"github.com/giantswarm/muster-fabric/internal/clientpool"
	"github.com/giantswarm/muster-fabric/internal/config"
	"github.com/giantswarm/muster-fabric/internal/dispatcher"
	"github.com/giantswarm/muster-fabric/internal/eventbus"
	"github.com/giantswarm/muster-fabric/internal/obslog"
	"github.com/giantswarm/muster-fabric/internal/store"
	"github.com/giantswarm/muster-fabric/internal/workflow"
)

// Config holds the application's startup options.
type Config struct {
	Debug  bool
	Silent bool
}

// NewConfig builds a Config from CLI flags.
func NewConfig(debug, silent bool) *Config {
	return &Config{Debug: debug, Silent: silent}
}

// Application wires together every fabric component and exposes the
// combined tool set as a single MCP server.
type Application struct {
	db        *store.DB
	bus       *eventbus.Bus
	pool      *clientpool.Pool
	engine    *workflow.Engine
	cache     *aggregator.Cache
	mcpServer *server.MCPServer
}

// NewApplication loads configuration and constructs every fabric
// component, registering their tools on a single MCP server.
func NewApplication(cfg *Config) (*Application, error) {
	logLevel := obslog.LevelInfo
	if cfg.Debug {
		logLevel = obslog.LevelDebug
	}
	var logOutput io.Writer = os.Stderr
	if cfg.Silent {
		logOutput = io.Discard
	}
	obslog.Init(logLevel, logOutput)

	env, err := config.LoadEnv()
	if err != nil {
		return nil, fmt.Errorf("app: load environment: %w", err)
	}
	static, err := config.LoadStatic(env.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("app: load static config: %w", err)
	}

	db, err := store.Open(env.DBPath)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	registry := eventbus.NewRegistry()
	workflow.RegisterEvents(registry)
	bus := eventbus.New(registry)

	pool := clientpool.New()
	pool.RegisterMany(static.ToServerEntries())

	engine := workflow.New(bus, pool, workflow.NewSQLiteStore(db))
	for _, def := range static.ToWorkflowDefinitions() {
		if err := engine.CreateWorkflow(def); err != nil {
			db.Close()
			return nil, fmt.Errorf("app: seed workflow %q: %w", def.Name, err)
		}
	}

	cache := aggregator.NewCache(db)

	d := dispatcher.New()
	registerWorkflowTools(d, engine)
	for _, t := range aggregator.Tools(pool, cache) {
		d.Register(t)
	}

	mcpServer := server.NewMCPServer(
		"muster-fabric",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
	)
	for _, t := range d.List() {
		mcpServer.AddTool(toMCPTool(t), bridgeHandler(d, t.Name))
	}

	return &Application{
		db:        db,
		bus:       bus,
		pool:      pool,
		engine:    engine,
		cache:     cache,
		mcpServer: mcpServer,
	}, nil
}

// Run serves MCP over stdio until the process is terminated, then
// tears down peer connections and the store.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		if err := a.pool.DisconnectAll(ctx); err != nil {
			obslog.Warn("app", "disconnecting peers: %v", err)
		}
		if err := a.db.Close(); err != nil {
			obslog.Warn("app", "closing store: %v", err)
		}
	}()

	obslog.Info("app", "serving muster-fabric over stdio")
	return server.ServeStdio(a.mcpServer)
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
		case "array":
			opts = append(opts, mcp.WithArray(field, fieldOpts...))
		case "object":
			opts = append(opts, mcp.WithObject(field, fieldOpts...))
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
