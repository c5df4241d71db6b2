// Package eventbus implements the in-process publish/subscribe fabric
// shared by the workflow engine and tool servers. Event names are
// colon-separated tokens (e.g. "workflow:completed"); subscribers may
// match an exact name or a glob pattern using "*" (one token) and "**"
// (any number of tokens, including zero).
package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/giantswarm/muster-fabric/internal/obslog"
)

// Name identifies an event. Conventionally colon-separated, e.g.
// "service:started" or "workflow:run:completed".
type Name string

// Payload carries event data. Handlers receive a deep copy so they
// cannot mutate state observed by other subscribers.
type Payload map[string]any

// Handler reacts to an exact-name subscription.
type Handler func(ctx context.Context, payload Payload) error

// PatternHandler reacts to a glob subscription; it receives the
// concrete name that matched.
type PatternHandler func(ctx context.Context, name Name, payload Payload) error

// UnknownEventError is returned when Publish or Subscribe is called
// with a name that was never registered with a Registry.
type UnknownEventError struct {
	Name Name
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("eventbus: unknown event %q", e.Name)
}

// Registry tracks the set of event names a Bus will accept. Publishing
// or subscribing to a name outside the registry fails fast so that a
// typo in an event name surfaces immediately rather than silently
// dropping events.
type Registry struct {
	mu    sync.RWMutex
	names map[Name]struct{}
}

// NewRegistry builds a Registry seeded with the given names.
func NewRegistry(names ...Name) *Registry {
	r := &Registry{names: make(map[Name]struct{}, len(names))}
	for _, n := range names {
		r.names[n] = struct{}{}
	}
	return r
}

// Register adds a name to the registry. Safe to call concurrently and
// idempotent.
func (r *Registry) Register(name Name) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[name] = struct{}{}
}

// Validate reports whether name has been registered.
func (r *Registry) Validate(name Name) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.names[name]
	return ok
}

type subscription struct {
	id      uint64
	handler Handler
}

type patternSubscription struct {
	id      uint64
	pattern Name
	handler PatternHandler
}

// Bus is a synchronous, sequential-fanout event bus. Publish invokes
// every matching handler on the calling goroutine: exact-name handlers
// first, then pattern handlers, each group in subscription order. A handler that panics or returns an error does not
// prevent the remaining handlers from running.
type Bus struct {
	registry *Registry

	mu       sync.RWMutex
	nextID   uint64
	exact    map[Name][]subscription
	patterns []patternSubscription
}

// New builds a Bus bound to registry. A nil registry is replaced by an
// empty one, so every name must be added through Registry() before it
// can be published or subscribed to.
func New(registry *Registry) *Bus {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Bus{
		registry: registry,
		exact:    make(map[Name][]subscription),
	}
}

// Registry returns the bus's backing registry so callers can register
// additional names after construction.
func (b *Bus) Registry() *Registry {
	return b.registry
}

// Subscribe registers handler for exact-name events. Returns an
// UnknownEventError if name was never registered. The returned
// unsubscribe function is idempotent.
func (b *Bus) Subscribe(name Name, handler Handler) (func(), error) {
	if !b.registry.Validate(name) {
		return nil, &UnknownEventError{Name: name}
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.exact[name] = append(b.exact[name], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.exact[name]
			for i, s := range subs {
				if s.id == id {
					b.exact[name] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}, nil
}

// SubscribePattern registers handler for any event name matching
// pattern. Patterns are never validated against the registry: "*" and
// "**" segments rarely correspond to a single registered name.
func (b *Bus) SubscribePattern(pattern Name, handler PatternHandler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.patterns = append(b.patterns, patternSubscription{id: id, pattern: pattern, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.patterns {
				if s.id == id {
					b.patterns = append(b.patterns[:i:i], b.patterns[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers payload to every handler subscribed to name, either
// directly or via a matching pattern. Returns UnknownEventError if
// name was never registered. Each handler receives its own deep copy
// of payload and runs with its panic recovered and logged as an error
// that does not stop remaining handlers; Publish itself never returns
// a handler's error, since no single subscriber should be able to fail
// the publish for everyone else.
func (b *Bus) Publish(ctx context.Context, name Name, payload Payload) error {
	if !b.registry.Validate(name) {
		return &UnknownEventError{Name: name}
	}

	b.mu.RLock()
	exact := append([]subscription(nil), b.exact[name]...)
	var matched []patternSubscription
	for _, s := range b.patterns {
		if matchPattern(string(s.pattern), string(name)) {
			matched = append(matched, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range exact {
		invokeHandler(ctx, s.handler, name, clonePayload(payload))
	}
	for _, s := range matched {
		invokePatternHandler(ctx, s.handler, name, clonePayload(payload))
	}
	return nil
}

func invokeHandler(ctx context.Context, h Handler, name Name, payload Payload) {
	defer func() {
		if r := recover(); r != nil {
			obslog.Error("eventbus", fmt.Errorf("%v", r), "handler for %q panicked", name)
		}
	}()
	if err := h(ctx, payload); err != nil {
		obslog.Warn("eventbus", "handler for %q returned error: %v", name, err)
	}
}

func invokePatternHandler(ctx context.Context, h PatternHandler, name Name, payload Payload) {
	defer func() {
		if r := recover(); r != nil {
			obslog.Error("eventbus", fmt.Errorf("%v", r), "pattern handler matching %q panicked", name)
		}
	}()
	if err := h(ctx, name, payload); err != nil {
		obslog.Warn("eventbus", "pattern handler matching %q returned error: %v", name, err)
	}
}

func clonePayload(p Payload) Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = deepCloneValue(v)
	}
	return out
}

func deepCloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = deepCloneValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = deepCloneValue(vv)
		}
		return out
	default:
		return v
	}
}
