package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/freitascorp/deskclaw/pkg/logger"
)

// FunctionDef is the JSON-schema description of one tool.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolDefinition wraps a FunctionDef the way function-calling providers expect.
type ToolDefinition struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// ToolRegistry holds the tools one server exposes.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool. Names are unique within a registry.
func (r *ToolRegistry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[t.Name()]; dup {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// RegisterAll registers every tool, stopping at the first duplicate.
func (r *ToolRegistry) RegisterAll(ts ...Tool) error {
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns the registered tool names in sorted order.
func (r *ToolRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs the named tool. Unknown tools and panics become error results.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args map[string]any) (result *ToolResult) {
	t, ok := r.Get(name)
	if !ok {
		return ErrorResult(fmt.Sprintf("tool %q not found", name))
	}
	if args == nil {
		args = map[string]any{}
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorCF("tools", "Tool panicked",
				map[string]any{"tool": name, "panic": fmt.Sprint(rec)})
			result = Failure(fmt.Errorf("tool %s panicked: %v", name, rec), "INTERNAL_ERROR")
		}
	}()

	result = t.Execute(ctx, args)
	if result == nil {
		result = NewToolResult("")
	}
	return result
}

// ToProviderDefs returns definitions for every tool, sorted by name.
func (r *ToolRegistry) ToProviderDefs() []ToolDefinition {
	names := r.List()
	defs := make([]ToolDefinition, 0, len(names))
	for _, name := range names {
		t, _ := r.Get(name)
		defs = append(defs, ToolDefinition{
			Type: "function",
			Function: FunctionDef{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}
