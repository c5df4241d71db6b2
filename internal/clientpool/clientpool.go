// Package clientpool manages connections to peer tool servers: a
// registry of configured entries, lazy and coalesced connection setup,
// and concurrent-safe tool invocation and teardown.
package clientpool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/muster-fabric/internal/obslog"
	"github.com/giantswarm/muster-fabric/internal/transport"
)

// TransportKind names the way a peer is reached.
type TransportKind string

const (
	TransportStdio    TransportKind = "stdio"
	TransportHTTP     TransportKind = "http"
	TransportInMemory TransportKind = "inmemory"
)

// ServerEntry is one peer's static configuration.
type ServerEntry struct {
	Name      string
	Transport TransportKind

	// stdio
	Command string
	Args    []string
	Env     map[string]string

	// http
	URL     string
	Headers map[string]string

	// inmemory
	InMemoryServer *server.MCPServer
}

// NotRegisteredError is returned for operations on a peer name the
// pool has never seen.
type NotRegisteredError struct {
	Name string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("clientpool: %q is not registered", e.Name)
}

// ConnectionError wraps a failure to establish or use a peer connection.
type ConnectionError struct {
	Name string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("clientpool: connect %q: %v", e.Name, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

type entry struct {
	config ServerEntry

	mu       sync.Mutex
	peer     transport.Peer
	teardown func() error
}

// Pool tracks configured peers and their (lazily established) live
// connections. A peer is dialed at most once concurrently: concurrent
// callers asking for the same not-yet-connected peer block on the
// same connection attempt rather than racing to dial twice.
type Pool struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New builds an empty Pool.
func New() *Pool {
	return &Pool{entries: make(map[string]*entry)}
}

// Register adds or replaces a peer's configuration. It does not
// connect; connection happens lazily on first use.
func (p *Pool) Register(cfg ServerEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[cfg.Name] = &entry{config: cfg}
}

// RegisterMany registers every entry in cfgs.
func (p *Pool) RegisterMany(cfgs []ServerEntry) {
	for _, cfg := range cfgs {
		p.Register(cfg)
	}
}

// GetRegisteredServers returns the names of every configured peer,
// regardless of connection state.
func (p *Pool) GetRegisteredServers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.entries))
	for name := range p.entries {
		out = append(out, name)
	}
	return out
}

// IsConnected reports whether name has a live connection.
func (p *Pool) IsConnected(name string) bool {
	p.mu.RLock()
	e, ok := p.entries[name]
	p.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peer != nil
}

func (p *Pool) lookup(name string) (*entry, error) {
	p.mu.RLock()
	e, ok := p.entries[name]
	p.mu.RUnlock()
	if !ok {
		return nil, &NotRegisteredError{Name: name}
	}
	return e, nil
}

// GetClient returns the live transport.Peer for name, dialing it on
// first use. Concurrent callers for the same peer coalesce onto the
// single in-flight dial.
func (p *Pool) GetClient(ctx context.Context, name string) (transport.Peer, error) {
	e, err := p.lookup(name)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.peer != nil {
		return e.peer, nil
	}

	peer, teardown, err := dial(e.config)
	if err != nil {
		return nil, &ConnectionError{Name: name, Err: err}
	}
	if err := peer.Initialize(ctx); err != nil {
		if teardown != nil {
			_ = teardown()
		}
		return nil, &ConnectionError{Name: name, Err: err}
	}

	obslog.Info("clientpool", "connected to peer %q via %s", name, e.config.Transport)
	e.peer = peer
	e.teardown = teardown
	return peer, nil
}

func dial(cfg ServerEntry) (transport.Peer, func() error, error) {
	switch cfg.Transport {
	case TransportStdio:
		return transport.NewStdioPeer(cfg.Name, cfg.Command, cfg.Args, cfg.Env), nil, nil
	case TransportHTTP:
		return transport.NewStreamableHTTPPeer(cfg.Name, cfg.URL, cfg.Headers), nil, nil
	case TransportInMemory:
		if cfg.InMemoryServer == nil {
			return nil, nil, fmt.Errorf("inmemory peer %q has no server", cfg.Name)
		}
		peer, teardown := transport.NewInMemoryPair(cfg.Name, cfg.InMemoryServer)
		return peer, teardown, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport kind %q for peer %q", cfg.Transport, cfg.Name)
	}
}

// CallTool dials name if necessary and invokes the named tool on it.
func (p *Pool) CallTool(ctx context.Context, name, tool string, args map[string]any) (*mcp.CallToolResult, error) {
	peer, err := p.GetClient(ctx, name)
	if err != nil {
		return nil, err
	}
	return peer.CallTool(ctx, tool, args)
}

// ReadResource dials name if necessary and reads uri from it.
func (p *Pool) ReadResource(ctx context.Context, name, uri string) (*mcp.ReadResourceResult, error) {
	peer, err := p.GetClient(ctx, name)
	if err != nil {
		return nil, err
	}
	return peer.ReadResource(ctx, uri)
}

// Disconnect closes name's live connection, if any. It is a no-op if
// the peer was never connected.
func (p *Pool) Disconnect(name string) error {
	e, err := p.lookup(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.peer == nil {
		return nil
	}
	closeErr := e.peer.Close()
	if e.teardown != nil {
		_ = e.teardown()
	}
	e.peer = nil
	e.teardown = nil
	return closeErr
}

// DisconnectAll closes every connected peer concurrently, returning
// the first error encountered (if any); every peer is still given a
// chance to close even if another's Close fails.
func (p *Pool) DisconnectAll(ctx context.Context) error {
	p.mu.RLock()
	names := make([]string, 0, len(p.entries))
	for name := range p.entries {
		names = append(names, name)
	}
	p.mu.RUnlock()

	g, _ := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			return p.Disconnect(name)
		})
	}
	return g.Wait()
}
