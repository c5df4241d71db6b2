package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/muster-fabric/internal/clientpool"
	"github.com/giantswarm/muster-fabric/internal/eventbus"
	"github.com/giantswarm/muster-fabric/internal/obslog"
)

// Lifecycle event names published by the engine. Registered with the
// bus's Registry by RegisterEvents so Publish never fails with
// UnknownEventError for these.
const (
	EventTriggered eventbus.Name = "workflow:triggered"
	EventCompleted eventbus.Name = "workflow:completed"
	EventFailed    eventbus.Name = "workflow:failed"
)

// RegisterEvents adds the engine's lifecycle event names to registry.
func RegisterEvents(registry *eventbus.Registry) {
	registry.Register(EventTriggered)
	registry.Register(EventCompleted)
	registry.Register(EventFailed)
}

// NotFoundError is returned when an operation names a workflow or run
// that does not exist.
type NotFoundError struct {
	Kind string // "workflow" or "run"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("workflow: %s %q not found", e.Kind, e.ID)
}

// Engine matches triggering events against registered workflow
// definitions and executes their steps through a client pool,
// persisting the full run/step audit trail.
type Engine struct {
	bus   *eventbus.Bus
	pool  *clientpool.Pool
	store Store
}

// New builds an Engine and subscribes it to every event on the bus so
// it can match each published event against the stored definitions.
func New(bus *eventbus.Bus, pool *clientpool.Pool, store Store) *Engine {
	e := &Engine{bus: bus, pool: pool, store: store}
	bus.SubscribePattern("**", e.onEvent)
	return e
}

// CreateWorkflow registers (or replaces) a workflow definition.
func (e *Engine) CreateWorkflow(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("workflow: definition requires a name")
	}
	if def.TriggerEvent == "" {
		return fmt.Errorf("workflow: definition %q requires a triggerEvent", def.Name)
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("workflow: definition %q requires at least one step", def.Name)
	}
	return e.store.SaveDefinition(def)
}

// ListWorkflows returns every registered definition.
func (e *Engine) ListWorkflows() ([]Definition, error) {
	return e.store.ListDefinitions()
}

// ToggleWorkflow enables or disables a workflow's automatic
// triggering without deleting its definition.
func (e *Engine) ToggleWorkflow(name string, enabled bool) error {
	return e.store.SetEnabled(name, enabled)
}

// TriggerWorkflow runs a workflow by name directly, bypassing event
// matching, using payload as if it were the triggering event's
// payload.
func (e *Engine) TriggerWorkflow(ctx context.Context, name string, payload map[string]any) (Run, error) {
	def, ok, err := e.store.GetDefinition(name)
	if err != nil {
		return Run{}, err
	}
	if !ok {
		return Run{}, &NotFoundError{Kind: "workflow", ID: name}
	}
	return e.execute(ctx, def, def.TriggerEvent, payload)
}

// GetWorkflowRun returns the durable record of one past run.
func (e *Engine) GetWorkflowRun(id string) (Run, error) {
	run, ok, err := e.store.GetRun(id)
	if err != nil {
		return Run{}, err
	}
	if !ok {
		return Run{}, &NotFoundError{Kind: "run", ID: id}
	}
	return run, nil
}

// onEvent is the bus's pattern handler: it matches name/payload
// against every enabled definition whose TriggerEvent equals name,
// firing each match concurrently.
func (e *Engine) onEvent(ctx context.Context, name eventbus.Name, payload eventbus.Payload) error {
	defs, err := e.store.ListDefinitions()
	if err != nil {
		obslog.Error("workflow", err, "list definitions while matching event %q", name)
		return nil
	}

	var matched []Definition
	for _, def := range defs {
		if !def.Enabled {
			continue
		}
		if def.TriggerEvent != string(name) {
			continue
		}
		if !matchCondition(def.Condition, payload) {
			continue
		}
		matched = append(matched, def)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, def := range matched {
		def := def
		g.Go(func() error {
			_, err := e.execute(gctx, def, string(name), payload)
			return err
		})
	}
	return g.Wait()
}

// matchCondition reports whether every key in condition equals, via
// reflect.DeepEqual, the corresponding value in payload (including
// nested maps/slices). An empty or nil condition always matches.
func matchCondition(condition map[string]any, payload map[string]any) bool {
	for k, want := range condition {
		got, ok := payload[k]
		if !ok || !reflect.DeepEqual(want, got) {
			return false
		}
	}
	return true
}

func (e *Engine) execute(ctx context.Context, def Definition, triggerEvent string, payload map[string]any) (Run, error) {
	run := Run{
		ID:           uuid.NewString(),
		Workflow:     def.Name,
		TriggerEvent: triggerEvent,
		Status:       RunRunning,
		Payload:      payload,
		StartedAt:    time.Now().UTC(),
	}
	if err := e.store.SaveRun(run); err != nil {
		return Run{}, fmt.Errorf("workflow: persist run start for %q: %w", def.Name, err)
	}

	_ = e.bus.Publish(ctx, EventTriggered, eventbus.Payload{"workflow": def.Name, "runId": run.ID})

	tctx := templateContext{payload: payload}
	runErr := e.runSteps(ctx, def, &run, &tctx)

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	if runErr != nil {
		run.Status = RunFailed
		run.Error = runErr.Error()
	} else {
		run.Status = RunSucceeded
	}
	if err := e.store.UpdateRun(run); err != nil {
		obslog.Error("workflow", err, "persist run finish for %q", def.Name)
	}

	if runErr != nil {
		_ = e.bus.Publish(ctx, EventFailed, eventbus.Payload{"workflow": def.Name, "runId": run.ID, "error": runErr.Error()})
	} else {
		_ = e.bus.Publish(ctx, EventCompleted, eventbus.Payload{"workflow": def.Name, "runId": run.ID})
	}

	return run, runErr
}

func (e *Engine) runSteps(ctx context.Context, def Definition, run *Run, tctx *templateContext) error {
	for i, spec := range def.Steps {
		started := time.Now().UTC()
		args := resolveArguments(spec.Arguments, *tctx)

		record := StepRecord{
			Index:     i,
			Server:    spec.Server,
			Tool:      spec.Tool,
			Arguments: args,
			Status:    RunRunning,
			StartedAt: started,
		}

		result, err := e.pool.CallTool(ctx, spec.Server, spec.Tool, args)

		finished := time.Now().UTC()
		record.FinishedAt = &finished

		var resultValue any
		if err != nil {
			record.Status = RunFailed
			record.Error = err.Error()
			run.Steps = append(run.Steps, record)
			return fmt.Errorf("workflow: step %d (%s.%s): %w", i, spec.Server, spec.Tool, err)
		}

		resultValue = resultToValue(result)

		if result != nil && result.IsError {
			record.Status = RunFailed
			record.Error = errorText(result)
			run.Steps = append(run.Steps, record)
			return fmt.Errorf("workflow: step %d (%s.%s) returned an error result: %s", i, spec.Server, spec.Tool, record.Error)
		}

		record.Result = resultValue
		record.Status = RunSucceeded
		run.Steps = append(run.Steps, record)
		tctx.steps = append(tctx.steps, stepResultView{result: resultValue})
	}
	return nil
}

// resultToValue flattens an mcp.CallToolResult into a plain value
// templates can index into: the first text content part, parsed as
// JSON if possible, otherwise the raw string.
func resultToValue(result *mcp.CallToolResult) any {
	if result == nil || len(result.Content) == 0 {
		return nil
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return nil
	}
	var parsed any
	if err := json.Unmarshal([]byte(text.Text), &parsed); err == nil {
		return parsed
	}
	return text.Text
}

// errorText extracts the description from an error envelope: its
// first text content part, or a generic message if the envelope
// carries none.
func errorText(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return "tool returned an error result"
	}
	if text, ok := result.Content[0].(mcp.TextContent); ok && text.Text != "" {
		return text.Text
	}
	return "tool returned an error result"
}
