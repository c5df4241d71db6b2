package aggregator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/muster-fabric/internal/clientpool"
	"github.com/giantswarm/muster-fabric/internal/demoserver"
	"github.com/giantswarm/muster-fabric/internal/store"
)

// demoserver exposes no "ping" tool, so every registered-server-status
// fetcher degrades to unavailable: this exercises the documented
// all-unavailable composite shape without needing a second real peer.
func newStatusPool() *clientpool.Pool {
	p := clientpool.New()
	p.Register(clientpool.ServerEntry{
		Name:           "demo",
		Transport:      clientpool.TransportInMemory,
		InMemoryServer: demoserver.New(),
	})
	return p
}

func TestServerStatusToolEnvelopeShape(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	pool := newStatusPool()
	cache := NewCache(db)
	tool := serverStatusTool(pool, cache)

	env, err := tool.Handler(context.Background(), map[string]any{})
	require.NoError(t, err)
	require.False(t, env.IsError)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(env.Content[0].Text), &parsed))

	demoEntry, ok := parsed["demo"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "unavailable", demoEntry["status"])

	dataSources, ok := parsed["dataSources"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "unavailable", dataSources["demo"])

	generatedAt, ok := parsed["generatedAt"].(string)
	require.True(t, ok)
	_, err = time.Parse(time.RFC3339, generatedAt)
	assert.NoError(t, err)

	assert.NotContains(t, parsed, "fromCache")
}

func TestServerStatusToolMarksCacheHit(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	pool := newStatusPool()
	cache := NewCache(db)
	tool := serverStatusTool(pool, cache)

	_, err = tool.Handler(context.Background(), map[string]any{})
	require.NoError(t, err)

	env, err := tool.Handler(context.Background(), map[string]any{})
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(env.Content[0].Text), &parsed))
	assert.Equal(t, true, parsed["fromCache"])
}
