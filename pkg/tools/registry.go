package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry holds the tools available to a caller.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry with the given tools.
func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range ts {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Execute runs a parsed tool call.
func (r *Registry) Execute(ctx context.Context, call *ToolCall) (string, map[string]interface{}, error) {
	t, ok := r.Get(call.ToolName)
	if !ok {
		return "", nil, fmt.Errorf("unknown tool %q", call.ToolName)
	}
	return t.Execute(ctx, call.GetArgumentsXML())
}

// Preview describes a tool call without running it.
func (r *Registry) Preview(ctx context.Context, call *ToolCall) (*ToolPreview, error) {
	t, ok := r.Get(call.ToolName)
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", call.ToolName)
	}
	p, ok := t.(Previewable)
	if !ok {
		return nil, fmt.Errorf("tool %q has no preview", call.ToolName)
	}
	return p.GeneratePreview(ctx, call.GetArgumentsXML())
}
