// Package transport wraps the wire-level ways a Client Pool can reach
// a peer tool server: a spawned stdio subprocess, a streamable-HTTP
// endpoint, or an in-memory linked pair used for tests and for peers
// that live in the same process. Every transport presents the same
// Peer contract so the client pool never needs to know which one it
// is holding.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// Peer is the set of MCP operations the client pool needs from a
// connected server, independent of how the connection was made.
type Peer interface {
	Initialize(ctx context.Context) error
	Close() error
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)
	Ping(ctx context.Context) error
}

// ClosedError is returned by operations attempted after Close.
type ClosedError struct {
	Peer string
}

func (e *ClosedError) Error() string {
	return fmt.Sprintf("transport: peer %q is closed", e.Peer)
}

const protocolVersion = "2024-11-05"

const clientName = "muster-fabric"

var clientVersion = "dev"

// base holds the bookkeeping shared by every Peer implementation built
// on top of a mark3labs/mcp-go client.MCPClient.
type base struct {
	name string

	mu        sync.RWMutex
	client    client.MCPClient
	connected bool
}

func (b *base) checkConnected() error {
	if !b.connected || b.client == nil {
		return &ClosedError{Peer: b.name}
	}
	return nil
}

func (b *base) finishInitialize(ctx context.Context, c client.MCPClient) error {
	initCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}

	_, err := c.Initialize(initCtx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: protocolVersion,
			ClientInfo:      mcp.Implementation{Name: clientName, Version: clientVersion},
			Capabilities:    mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("initialize peer %q: %w", b.name, err)
	}

	b.mu.Lock()
	b.client = c
	b.connected = true
	b.mu.Unlock()
	return nil
}

func (b *base) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected || b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.connected = false
	b.client = nil
	return err
}

func (b *base) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools on %q: %w", b.name, err)
	}
	return result.Tools, nil
}

func (b *base) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.client.CallTool(ctx, mcp.CallToolRequest{
		Params: struct {
			Name      string    `json:"name"`
			Arguments any       `json:"arguments,omitempty"`
			Meta      *mcp.Meta `json:"_meta,omitempty"`
		}{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("call tool %q on %q: %w", name, b.name, err)
	}
	return result, nil
}

func (b *base) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.client.ReadResource(ctx, mcp.ReadResourceRequest{
		Params: struct {
			URI       string         `json:"uri"`
			Arguments map[string]any `json:"arguments,omitempty"`
		}{URI: uri},
	})
	if err != nil {
		return nil, fmt.Errorf("read resource %q on %q: %w", uri, b.name, err)
	}
	return result, nil
}

func (b *base) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return err
	}
	return b.client.Ping(ctx)
}

// StdioPeer connects to a peer server spawned as a subprocess speaking
// MCP over stdin/stdout.
type StdioPeer struct {
	base
	command string
	args    []string
	env     map[string]string
}

// NewStdioPeer builds a peer that will spawn command with args and env
// on Initialize.
func NewStdioPeer(name, command string, args []string, env map[string]string) *StdioPeer {
	if env == nil {
		env = map[string]string{}
	}
	return &StdioPeer{base: base{name: name}, command: command, args: args, env: env}
}

func (p *StdioPeer) Initialize(ctx context.Context) error {
	p.mu.RLock()
	already := p.connected
	p.mu.RUnlock()
	if already {
		return nil
	}

	envStrings := make([]string, 0, len(p.env))
	for k, v := range p.env {
		envStrings = append(envStrings, fmt.Sprintf("%s=%s", k, v))
	}

	c, err := client.NewStdioMCPClient(p.command, envStrings, p.args...)
	if err != nil {
		return fmt.Errorf("spawn stdio peer %q: %w", p.name, err)
	}
	return p.finishInitialize(ctx, c)
}

// StreamableHTTPPeer connects to a peer server over the MCP streamable
// HTTP transport.
type StreamableHTTPPeer struct {
	base
	url     string
	headers map[string]string
}

// NewStreamableHTTPPeer builds a peer dialing url on Initialize.
func NewStreamableHTTPPeer(name, url string, headers map[string]string) *StreamableHTTPPeer {
	return &StreamableHTTPPeer{base: base{name: name}, url: url, headers: headers}
}

func (p *StreamableHTTPPeer) Initialize(ctx context.Context) error {
	p.mu.RLock()
	already := p.connected
	p.mu.RUnlock()
	if already {
		return nil
	}

	var opts []transport.StreamableHTTPCOption
	if len(p.headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(p.headers))
	}

	c, err := client.NewStreamableHttpClient(p.url, opts...)
	if err != nil {
		return fmt.Errorf("dial streamable-http peer %q: %w", p.name, err)
	}
	return p.finishInitialize(ctx, c)
}
