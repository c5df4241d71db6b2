package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/muster-fabric/internal/clientpool"
	"github.com/giantswarm/muster-fabric/internal/demoserver"
	"github.com/giantswarm/muster-fabric/internal/eventbus"
	"github.com/giantswarm/muster-fabric/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *eventbus.Bus) {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	registry := eventbus.NewRegistry("greeting:requested")
	RegisterEvents(registry)
	bus := eventbus.New(registry)

	pool := clientpool.New()
	pool.Register(clientpool.ServerEntry{
		Name:           "demo",
		Transport:      clientpool.TransportInMemory,
		InMemoryServer: demoserver.New(),
	})

	engine := New(bus, pool, NewSQLiteStore(db))
	return engine, bus
}

func TestTriggerWorkflowRunsSteps(t *testing.T) {
	engine, _ := newTestEngine(t)

	def := Definition{
		Name:         "greet-flow",
		TriggerEvent: "greeting:requested",
		Steps: []StepSpec{
			{Server: "demo", Tool: "greet", Arguments: map[string]any{"name": "{{payload.who}}"}},
		},
		Enabled: true,
	}
	require.NoError(t, engine.CreateWorkflow(def))

	run, err := engine.TriggerWorkflow(context.Background(), "greet-flow", map[string]any{"who": "ada"})
	require.NoError(t, err)
	assert.Equal(t, RunSucceeded, run.Status)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, "hello, ada", run.Steps[0].Result)

	stored, err := engine.GetWorkflowRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunSucceeded, stored.Status)
}

func TestEventMatchingFiresOnCondition(t *testing.T) {
	engine, bus := newTestEngine(t)

	def := Definition{
		Name:         "conditional-flow",
		TriggerEvent: "greeting:requested",
		Condition:    map[string]any{"who": "ada"},
		Steps: []StepSpec{
			{Server: "demo", Tool: "echo", Arguments: map[string]any{"message": "matched"}},
		},
		Enabled: true,
	}
	require.NoError(t, engine.CreateWorkflow(def))

	require.NoError(t, bus.Publish(context.Background(), "greeting:requested", eventbus.Payload{"who": "bob"}))
	runs, err := engine.store.ListRunsForWorkflow("conditional-flow")
	require.NoError(t, err)
	assert.Len(t, runs, 0)

	require.NoError(t, bus.Publish(context.Background(), "greeting:requested", eventbus.Payload{"who": "ada"}))
	runs, err = engine.store.ListRunsForWorkflow("conditional-flow")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunSucceeded, runs[0].Status)
}

func TestStepErrorEnvelopeFailsRunAndRecordsStep(t *testing.T) {
	engine, _ := newTestEngine(t)

	def := Definition{
		Name:         "broken-flow",
		TriggerEvent: "greeting:requested",
		Steps: []StepSpec{
			{Server: "demo", Tool: "greet", Arguments: map[string]any{}},
		},
		Enabled: true,
	}
	require.NoError(t, engine.CreateWorkflow(def))

	run, err := engine.TriggerWorkflow(context.Background(), "broken-flow", nil)
	require.Error(t, err)
	assert.Equal(t, RunFailed, run.Status)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, RunFailed, run.Steps[0].Status)
	assert.NotEmpty(t, run.Steps[0].Error)

	stored, err := engine.GetWorkflowRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunFailed, stored.Status)
}

func TestToggleWorkflowDisablesTriggering(t *testing.T) {
	engine, bus := newTestEngine(t)
	def := Definition{
		Name:         "toggle-flow",
		TriggerEvent: "greeting:requested",
		Steps: []StepSpec{
			{Server: "demo", Tool: "echo", Arguments: map[string]any{"message": "hi"}},
		},
		Enabled: true,
	}
	require.NoError(t, engine.CreateWorkflow(def))
	require.NoError(t, engine.ToggleWorkflow("toggle-flow", false))

	require.NoError(t, bus.Publish(context.Background(), "greeting:requested", eventbus.Payload{}))
	runs, err := engine.store.ListRunsForWorkflow("toggle-flow")
	require.NoError(t, err)
	assert.Len(t, runs, 0)
}
