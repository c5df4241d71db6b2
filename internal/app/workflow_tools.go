package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/giantswarm/muster-fabric/internal/dispatcher"
	"github.com/giantswarm/muster-fabric/internal/workflow"
)

// registerWorkflowTools exposes the workflow engine's operations as
// dispatcher tools so peer servers and operators can manage and
// inspect workflows through the same tool-call surface as every other
// fabric capability.
func registerWorkflowTools(d *dispatcher.Dispatcher, engine *workflow.Engine) {
	d.Register(listWorkflowsTool(engine))
	d.Register(toggleWorkflowTool(engine))
	d.Register(triggerWorkflowTool(engine))
	d.Register(getWorkflowRunTool(engine))
}

func listWorkflowsTool(engine *workflow.Engine) dispatcher.Tool {
	return dispatcher.Tool{
		Name:        "list-workflows",
		Description: "List every registered workflow definition.",
		Handler: func(ctx context.Context, args map[string]any) (*dispatcher.Envelope, error) {
			defs, err := engine.ListWorkflows()
			if err != nil {
				return nil, err
			}
			return jsonEnvelope(defs)
		},
	}
}

func toggleWorkflowTool(engine *workflow.Engine) dispatcher.Tool {
	return dispatcher.Tool{
		Name:        "toggle-workflow",
		Description: "Enable or disable a workflow's automatic event triggering.",
		Schema: dispatcher.ArgSchema{
			"name":    {Type: "string", Required: true},
			"enabled": {Type: "boolean", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (*dispatcher.Envelope, error) {
			name, _ := args["name"].(string)
			enabled, _ := args["enabled"].(bool)
			if err := engine.ToggleWorkflow(name, enabled); err != nil {
				return nil, err
			}
			return dispatcher.TextEnvelope(fmt.Sprintf("workflow %q enabled=%v", name, enabled)), nil
		},
	}
}

func triggerWorkflowTool(engine *workflow.Engine) dispatcher.Tool {
	return dispatcher.Tool{
		Name:        "trigger-workflow",
		Description: "Run a workflow directly by name, bypassing event matching.",
		Schema: dispatcher.ArgSchema{
			"name":    {Type: "string", Required: true},
			"payload": {Type: "object"},
		},
		Handler: func(ctx context.Context, args map[string]any) (*dispatcher.Envelope, error) {
			name, _ := args["name"].(string)
			payload, _ := args["payload"].(map[string]any)
			run, err := engine.TriggerWorkflow(ctx, name, payload)
			if err != nil {
				return nil, err
			}
			return jsonEnvelope(run)
		},
	}
}

func getWorkflowRunTool(engine *workflow.Engine) dispatcher.Tool {
	return dispatcher.Tool{
		Name:        "get-workflow-run",
		Description: "Return the durable record of a past workflow run.",
		Schema: dispatcher.ArgSchema{
			"runId": {Type: "string", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (*dispatcher.Envelope, error) {
			runID, _ := args["runId"].(string)
			run, err := engine.GetWorkflowRun(runID)
			if err != nil {
				return nil, err
			}
			return jsonEnvelope(run)
		},
	}
}

func jsonEnvelope(v any) (*dispatcher.Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("app: marshal result: %w", err)
	}
	return dispatcher.TextEnvelope(string(data)), nil
}
