// Package tools implements the registry and concrete bodies for the tool
// calls a model can make mid-turn: a name -> Tool lookup table, the
// definitions exported to the provider layer as canonical Tool schemas, and
// an Invoke helper that runs a tool body and never lets it escape as a Go
// panic — a misbehaving tool becomes an error-flagged result, not a crashed
// agent.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ikigai-cli/ikigai/internal/provider"
)

// agentIDKey is the context key under which WithAgentID stores the calling
// agent's ID, so a tool whose behavior is per-agent (the scratchpad) can
// identify its caller without the Handler signature itself carrying one.
type agentIDKey struct{}

// WithAgentID returns a context carrying agentID, for handlers that look
// up per-agent state via agentIDFrom.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, agentIDKey{}, agentID)
}

// agentIDFrom returns the agent ID WithAgentID stored on ctx, or "" if none.
func agentIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(agentIDKey{}).(string)
	return id
}

// Handler executes a tool call's parsed arguments and produces the output
// string and is-error flag the agent appends to its conversation as a
// tool-result content block.
type Handler func(ctx context.Context, argsJSON json.RawMessage) (output string, isError bool)

// Tool pairs a canonical definition with the body that runs it.
type Tool struct {
	Definition provider.Tool
	Handler    Handler
}

// Registry is a name -> Tool lookup table. A Registry is safe for
// concurrent use: the event loop registers tools at startup and every
// in-flight tool worker only reads.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Definition.Name] = t
}

// Lookup returns the tool registered under name, if any.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the canonical Tool schemas for every registered tool,
// in the shape a Request's tool-definitions set expects.
func (r *Registry) Definitions() []provider.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]provider.Tool, 0, len(r.tools))
	for _, name := range r.sortedNamesLocked() {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

func (r *Registry) sortedNamesLocked() []string {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invoke runs a tool's handler, recovering any panic into an error result so
// one misbehaving tool body cannot take down the event loop that launched
// it as a worker.
func Invoke(ctx context.Context, t Tool, argsJSON json.RawMessage) (output string, isError bool) {
	defer func() {
		if r := recover(); r != nil {
			output = fmt.Sprintf("tool %q panicked: %v", t.Definition.Name, r)
			isError = true
		}
	}()
	return t.Handler(ctx, argsJSON)
}

// errorf builds an is-error tool result from a format string.
func errorf(format string, args ...any) (string, bool) {
	return fmt.Sprintf(format, args...), true
}
