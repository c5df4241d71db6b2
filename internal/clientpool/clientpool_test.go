package clientpool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/muster-fabric/internal/demoserver"
)

func TestGetClientUnregistered(t *testing.T) {
	p := New()
	_, err := p.GetClient(context.Background(), "nope")
	var nerr *NotRegisteredError
	require.ErrorAs(t, err, &nerr)
}

func TestCallToolOnInMemoryPeer(t *testing.T) {
	p := New()
	p.Register(ServerEntry{
		Name:           "demo",
		Transport:      TransportInMemory,
		InMemoryServer: demoserver.New(),
	})

	result, err := p.CallTool(context.Background(), "demo", "greet", map[string]any{"name": "ada"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)
	assert.True(t, p.IsConnected("demo"))
}

func TestDisconnectAllIsIdempotent(t *testing.T) {
	p := New()
	p.Register(ServerEntry{
		Name:           "demo",
		Transport:      TransportInMemory,
		InMemoryServer: demoserver.New(),
	})
	_, err := p.GetClient(context.Background(), "demo")
	require.NoError(t, err)

	require.NoError(t, p.DisconnectAll(context.Background()))
	assert.False(t, p.IsConnected("demo"))
	require.NoError(t, p.DisconnectAll(context.Background()))
}
