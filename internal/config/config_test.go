package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStaticMissingFileIsEmpty(t *testing.T) {
	cfg, err := LoadStatic(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Peers)
}

func TestLoadStaticParsesPeersAndWorkflows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "muster-fabric.yaml")
	contents := `
peers:
  - name: demo
    transport: stdio
    command: demo-server
    args: ["--flag"]
workflows:
  - name: greet-flow
    triggerEvent: greeting:requested
    enabled: true
    steps:
      - server: demo
        tool: greet
        arguments:
          name: "{{payload.who}}"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := LoadStatic(path)
	require.NoError(t, err)
	require.Len(t, cfg.Peers, 1)
	assert.Equal(t, "demo", cfg.Peers[0].Name)
	assert.Equal(t, TransportStdio, cfg.Peers[0].Transport)

	require.Len(t, cfg.Workflows, 1)
	assert.Equal(t, "greeting:requested", cfg.Workflows[0].TriggerEvent)

	entries := cfg.ToServerEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "demo-server", entries[0].Command)

	defs := cfg.ToWorkflowDefinitions()
	require.Len(t, defs, 1)
	assert.Contains(t, defs[0].Steps[0].Arguments, "name")
}
