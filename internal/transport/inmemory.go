package transport

import (
	"context"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/server"
)

// InMemoryPeer is a Peer wired directly to an in-process
// server.MCPServer via a pair of cross-connected io.Pipes, speaking
// ordinary MCP stdio framing with no subprocess and no network hop.
// It exists for peers that live in the same binary (demo/test
// servers, or tool servers embedded for latency-sensitive fan-out)
// and for tests that want a fast, hermetic stand-in for a real peer.
type InMemoryPeer struct {
	base
	pendingClientIO *pipeIO
}

// NewInMemoryPair wires srv to a fresh InMemoryPeer and returns it
// alongside a teardown function that stops the server side. The peer
// still requires Initialize to perform the MCP handshake.
func NewInMemoryPair(name string, srv *server.MCPServer) (*InMemoryPeer, func() error) {
	serverIn, clientOut := io.Pipe()
	clientIn, serverOut := io.Pipe()

	stdioServer := server.NewStdioServer(srv)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- stdioServer.Listen(ctx, serverIn, serverOut)
	}()

	peer := &InMemoryPeer{base: base{name: name}}
	peer.pendingClientIO = &pipeIO{reader: clientIn, writer: clientOut}

	teardown := func() error {
		cancel()
		_ = clientOut.Close()
		_ = serverOut.Close()
		<-done
		return nil
	}
	return peer, teardown
}

type pipeIO struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (p *InMemoryPeer) Initialize(ctx context.Context) error {
	p.mu.RLock()
	already := p.connected
	p.mu.RUnlock()
	if already {
		return nil
	}
	if p.pendingClientIO == nil {
		return fmt.Errorf("in-memory peer %q: no pipe attached", p.name)
	}

	t := transport.NewIO(p.pendingClientIO.reader, p.pendingClientIO.writer, nil)
	c := client.NewClient(t)
	if err := t.Start(ctx); err != nil {
		return fmt.Errorf("start in-memory transport for %q: %w", p.name, err)
	}
	return p.finishInitialize(ctx, c)
}
