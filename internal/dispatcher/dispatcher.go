// Package dispatcher defines the tool contract every fabric server
// exposes: a named, schema-validated operation that takes arguments
// and returns an MCP-shaped result envelope.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	fabstrings "github.com/giantswarm/muster-fabric/pkg/strings"
)

// maxErrorTextLen bounds how much of a handler's error or panic value
// ends up in a failing Envelope's text, so a runaway error message or
// panic value from a misbehaving tool can't blow up the response.
const maxErrorTextLen = 500

// ContentPart is one piece of a tool's result, mirroring
// mcp.TextContent so each part maps one to one onto an mcp-go text
// content when a caller builds a server response from the envelope.
type ContentPart struct {
	Type string
	Text string
}

// Envelope is the result of a tool call. IsError distinguishes a
// reported failure from a crash: a failing tool still returns an
// Envelope with IsError set, never a Go error, once arguments have
// passed validation.
type Envelope struct {
	Content []ContentPart
	IsError bool
}

// TextEnvelope builds a successful single-part text envelope.
func TextEnvelope(text string) *Envelope {
	return &Envelope{Content: []ContentPart{{Type: "text", Text: text}}}
}

// ErrorEnvelope builds a failed single-part text envelope.
func ErrorEnvelope(text string) *Envelope {
	return &Envelope{Content: []ContentPart{{Type: "text", Text: text}}, IsError: true}
}

// FieldSchema describes one declared argument.
type FieldSchema struct {
	Type     string // "string", "number", "boolean", "object", "array"
	Required bool
}

// ArgSchema is the set of declared arguments for a tool, keyed by
// argument name.
type ArgSchema map[string]FieldSchema

// Handler implements a tool's behavior. It is only invoked once its
// arguments have passed ArgSchema validation.
type Handler func(ctx context.Context, args map[string]any) (*Envelope, error)

// Tool is one operation a Dispatcher exposes.
type Tool struct {
	Name        string
	Description string
	Schema      ArgSchema
	Handler     Handler
}

// UnknownToolError is returned by Call for a name with no registered Tool.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("dispatcher: unknown tool %q", e.Name)
}

// ValidationError is returned by Call when arguments fail schema
// validation, before Handler ever runs.
type ValidationError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("dispatcher: %s.%s: %s", e.Tool, e.Field, e.Reason)
}

// Dispatcher holds a registry of named tools and validates and invokes
// them on Call. It never lets a Handler's panic escape: a panic is
// converted into a failing Envelope, the same as a Handler-returned
// error.
type Dispatcher struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// New builds an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (d *Dispatcher) Register(t Tool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tools[t.Name] = t
}

// List returns the registered tools in no particular order.
func (d *Dispatcher) List() []Tool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Tool, 0, len(d.tools))
	for _, t := range d.tools {
		out = append(out, t)
	}
	return out
}

// Call validates args against the named tool's schema and invokes its
// handler. A validation failure returns a (nil, *ValidationError); an
// unknown tool returns (nil, *UnknownToolError); anything the handler
// itself does wrong (a returned error, or a panic) comes back as a
// non-nil *Envelope with IsError set, never as a Go error, so a
// caller relaying results to an MCP client doesn't need two failure
// paths.
func (d *Dispatcher) Call(ctx context.Context, name string, args map[string]any) (*Envelope, error) {
	d.mu.RLock()
	tool, ok := d.tools[name]
	d.mu.RUnlock()
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}

	if err := validateArgs(tool, args); err != nil {
		return nil, err
	}

	return invokeHandler(ctx, tool, args), nil
}

func validateArgs(tool Tool, args map[string]any) error {
	for field, schema := range tool.Schema {
		v, present := args[field]
		if !present {
			if schema.Required {
				return &ValidationError{Tool: tool.Name, Field: field, Reason: "required field is missing"}
			}
			continue
		}
		if schema.Type == "" {
			continue
		}
		if !typeMatches(schema.Type, v) {
			return &ValidationError{Tool: tool.Name, Field: field, Reason: fmt.Sprintf("expected %s", schema.Type)}
		}
	}
	return nil
}

func typeMatches(want string, v any) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		default:
			return false
		}
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}

func invokeHandler(ctx context.Context, tool Tool, args map[string]any) (result *Envelope) {
	defer func() {
		if r := recover(); r != nil {
			msg := fabstrings.TruncateDescription(fmt.Sprintf("tool %q panicked: %v", tool.Name, r), maxErrorTextLen)
			result = ErrorEnvelope(msg)
		}
	}()

	env, err := tool.Handler(ctx, args)
	if err != nil {
		return ErrorEnvelope(fabstrings.TruncateDescription(err.Error(), maxErrorTextLen))
	}
	if env == nil {
		return TextEnvelope("")
	}
	return env
}
