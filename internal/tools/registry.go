// Package tools holds the tool registry and the execution contract the
// orchestrator drives. Tool semantics live outside the core; this package
// only carries input/output shapes.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/loomhq/loom/pkg/models"
)

// Result is the outcome of one tool execution. Errors are expressed as
// IsError results so they feed back into the conversation instead of
// aborting the loop.
type Result struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Executor runs one tool call. Implementations may be concurrent
// internally; the orchestrator observes one completion at a time.
type Executor func(ctx context.Context, args map[string]any) (*Result, error)

// registration pairs a definition with its executor.
type registration struct {
	def  models.ToolDefinition
	exec Executor
}

// Registry is the immutable tool table built once at startup. Register
// panics after Freeze; lookups are lock-free on the frozen table.
type Registry struct {
	mu     sync.Mutex
	frozen bool
	tools  map[string]registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registration)}
}

// Register adds a tool. Registering after Freeze or re-registering a
// name panics: the registry is wiring, not runtime state.
func (r *Registry) Register(def models.ToolDefinition, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic("tools: registry is frozen")
	}
	if _, exists := r.tools[def.Name]; exists {
		panic(fmt.Sprintf("tools: duplicate tool %q", def.Name))
	}
	r.tools[def.Name] = registration{def: def, exec: exec}
}

// Freeze seals the registry for the lifetime of the orchestrator.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Lookup returns the executor for a tool name.
func (r *Registry) Lookup(name string) (Executor, bool) {
	reg, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return reg.exec, true
}

// Definition returns the registered definition for a tool name.
func (r *Registry) Definition(name string) (models.ToolDefinition, bool) {
	reg, ok := r.tools[name]
	return reg.def, ok
}

// Definitions returns all registered definitions sorted by name, the
// order they are presented to providers in.
func (r *Registry) Definitions() []models.ToolDefinition {
	defs := make([]models.ToolDefinition, 0, len(r.tools))
	for _, reg := range r.tools {
		defs = append(defs, reg.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs a tool call, converting lookup failures and executor
// errors into error results.
func (r *Registry) Execute(ctx context.Context, call models.ToolCall) Result {
	exec, ok := r.Lookup(call.Name)
	if !ok {
		return Result{Content: fmt.Sprintf("unknown tool: %s", call.Name), IsError: true}
	}

	result, err := exec(ctx, call.Arguments)
	if err != nil {
		return Result{Content: err.Error(), IsError: true}
	}
	if result == nil {
		return Result{Content: "tool returned no result", IsError: true}
	}
	return *result
}
