// Package tools implements the tool registry: named, schema-validated,
// provider-neutral functions the agent loop can dispatch tool calls
// against. Grounded on an internal/agent-shaped registry (a Tool interface
// and registry pair).
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/cortex/internal/llm"
)

// MaxNameLength and MaxParamsSize bound a tool call before it ever reaches
// a handler, protecting against malformed or adversarial LLM output.
const (
	MaxNameLength = 256
	MaxParamsSize = 10 << 20
)

// Result is a tool's structured return value.
type Result struct {
	Content string
	IsError bool

	// Provider/Model/Usage are set by tools that call an LLM of their own
	// (e.g. a sub-agent delegate tool), letting the loop auto-attribute
	// usage without altering Content.
	Provider string
	Model    string
}

// Tool is a named, schema-described, independently invocable function.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*Result, error)
}

// Delegating marks tools whose execution may itself run a nested agent
// turn (delegate/explore sub-agents) — these are partitioned out of the
// loop's sequential-tool-call batch and run independently so a
// long-running delegate doesn't block unrelated tools issued in the same
// turn.
type Delegating interface {
	Tool
	IsDelegating() bool
}

// Registry is a thread-safe collection of tools, keyed by name.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	compiled  map[string]*jsonschema.Schema
	compileMu sync.Mutex
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool), compiled: make(map[string]*jsonschema.Schema)}
}

// Register adds or replaces a tool. Schema compilation happens lazily on
// first Validate/Execute call so registering a tool is always cheap (the
// agent loop registers/unregisters skill-scoped tools every turn).
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	r.compileMu.Lock()
	delete(r.compiled, t.Name())
	r.compileMu.Unlock()
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// AsSpecs converts the full registry (or, when names is non-empty, just the
// named subset) into provider-neutral ToolSpec values for an LLM call.
func (r *Registry) AsSpecs(names ...string) []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var subset []Tool
	if len(names) == 0 {
		for _, t := range r.tools {
			subset = append(subset, t)
		}
	} else {
		for _, n := range names {
			if t, ok := r.tools[n]; ok {
				subset = append(subset, t)
			}
		}
	}
	specs := make([]llm.ToolSpec, 0, len(subset))
	for _, t := range subset {
		specs = append(specs, llm.ToolSpec{Name: t.Name(), Description: t.Description(), Parameters: t.Schema()})
	}
	return specs
}

// schemaFor compiles (and caches) the JSON schema for a registered tool.
func (r *Registry) schemaFor(t Tool) (*jsonschema.Schema, error) {
	r.compileMu.Lock()
	defer r.compileMu.Unlock()
	if s, ok := r.compiled[t.Name()]; ok {
		return s, nil
	}
	compiler := jsonschema.NewCompiler()
	url := "mem://" + t.Name() + ".json"
	if err := compiler.AddResource(url, toReader(t.Schema())); err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", t.Name(), err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", t.Name(), err)
	}
	r.compiled[t.Name()] = schema
	return schema, nil
}

// Validate checks params against the named tool's schema before Execute is
// called, so malformed LLM-generated arguments surface as a structured
// tool error instead of panicking deep inside a handler.
func (r *Registry) Validate(name string, params json.RawMessage) error {
	t, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("tools: unknown tool %q", name)
	}
	schema, err := r.schemaFor(t)
	if err != nil {
		return err
	}
	var v any
	if len(params) == 0 {
		v = map[string]any{}
	} else if err := json.Unmarshal(params, &v); err != nil {
		return fmt.Errorf("tools: %s: invalid JSON arguments: %w", name, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("tools: %s: arguments do not match schema: %w", name, err)
	}
	return nil
}

// Execute validates params against the tool's schema, then runs it. Size
// and name-length limits are checked before lookup so a pathological call
// never reaches a handler.
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) (*Result, error) {
	if len(name) > MaxNameLength {
		return &Result{Content: "tool name exceeds maximum length", IsError: true}, nil
	}
	if len(params) > MaxParamsSize {
		return &Result{Content: "tool parameters exceed maximum size", IsError: true}, nil
	}
	t, ok := r.Get(name)
	if !ok {
		return &Result{Content: "tool not found: " + name, IsError: true}, nil
	}
	if err := r.Validate(name, params); err != nil {
		return &Result{Content: err.Error(), IsError: true}, nil
	}
	return t.Execute(ctx, params)
}
