package config

import (
	"github.com/giantswarm/muster-fabric/internal/clientpool"
	"github.com/giantswarm/muster-fabric/internal/workflow"
)

// ToServerEntries converts the YAML peer registry into clientpool
// configuration. In-memory peers are never described in the static
// config file (they have no command/URL to serialize); wire those up
// separately with clientpool.Pool.Register.
func (c StaticConfig) ToServerEntries() []clientpool.ServerEntry {
	out := make([]clientpool.ServerEntry, 0, len(c.Peers))
	for _, p := range c.Peers {
		out = append(out, clientpool.ServerEntry{
			Name:      p.Name,
			Transport: clientpool.TransportKind(p.Transport),
			Command:   p.Command,
			Args:      p.Args,
			Env:       p.Env,
			URL:       p.URL,
			Headers:   p.Headers,
		})
	}
	return out
}

// ToWorkflowDefinitions converts the YAML workflow fixtures into
// workflow.Definition values ready for Engine.CreateWorkflow.
func (c StaticConfig) ToWorkflowDefinitions() []workflow.Definition {
	out := make([]workflow.Definition, 0, len(c.Workflows))
	for _, w := range c.Workflows {
		steps := make([]workflow.StepSpec, 0, len(w.Steps))
		for _, s := range w.Steps {
			steps = append(steps, workflow.StepSpec{Server: s.Server, Tool: s.Tool, Arguments: s.Arguments})
		}
		out = append(out, workflow.Definition{
			Name:         w.Name,
			TriggerEvent: w.TriggerEvent,
			Condition:    w.Condition,
			Steps:        steps,
			Enabled:      w.Enabled,
		})
	}
	return out
}
