package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nachoal/kitgpt-go/internal/schema"
	"github.com/nachoal/kitgpt-go/llm"
	"github.com/nachoal/kitgpt-go/tools"
)

// ErrToolNotFound is returned for calls naming an unregistered tool
var ErrToolNotFound = errors.New("tool not found")

type entry struct {
	tool   tools.Tool
	schema map[string]interface{}
}

// Registry holds the tools exposed to the model
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]entry
	generator *schema.Generator
}

// New creates a registry holding the given tools
func New(ts ...tools.Tool) (*Registry, error) {
	r := &Registry{
		tools:     make(map[string]entry),
		generator: schema.NewGenerator(),
	}
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Names are unique and the parameter schema is
// generated once, here.
func (r *Registry) Register(tool tools.Tool) error {
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool without a name")
	}

	var fn map[string]interface{}
	if params := tool.Parameters(); params != nil {
		var err error
		fn, err = r.generator.GenerateFunctionSchema(name, tool.Description(), params)
		if err != nil {
			return err
		}
	} else {
		fn = map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        name,
				"description": tool.Description(),
				"parameters":  map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
			},
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool '%s' is already registered", name)
	}
	r.tools[name] = entry{tool: tool, schema: fn}
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (tools.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.tools[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return e.tool, nil
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Names returns the registered tool names in order
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DisplayName resolves the status label for a tool call, falling back to the raw name
func (r *Registry) DisplayName(name string) string {
	if r == nil {
		return name
	}
	tool, err := r.Get(name)
	if err != nil {
		return name
	}
	if d, ok := tool.(tools.DisplayTexter); ok && d.DisplayText() != "" {
		return d.DisplayText()
	}
	return name
}

// Schemas returns the function definitions of all tools ordered by name
func (r *Registry) Schemas() []map[string]interface{} {
	if r == nil {
		return nil
	}
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		schemas = append(schemas, r.tools[name].schema)
	}
	return schemas
}

// Invoke decodes, validates and executes a model tool call. Every failure,
// including a panic in tool code, is returned as a *tools.ToolError.
func (r *Registry) Invoke(ctx context.Context, chat tools.ChatControls, call llm.ToolCall) (err error) {
	name := call.Function.Name
	tool, err := r.Get(name)
	if err != nil {
		return tools.NewToolError("NOT_FOUND", "Unknown tool").WithTool(name).Wrap(err)
	}

	args, normalized, err := llm.ParseToolArguments(call.Function.Arguments)
	if err != nil {
		return tools.NewToolError("INVALID_PARAMS", "Failed to parse parameters").
			WithTool(name).
			WithDetail("arguments", string(call.Function.Arguments)).
			Wrap(err)
	}

	var params interface{} = args
	if p := tool.Parameters(); p != nil {
		if err := json.Unmarshal(normalized, p); err != nil {
			return tools.NewToolError("INVALID_PARAMS", "Failed to parse parameters").
				WithTool(name).
				WithDetail("arguments", string(normalized)).
				Wrap(err)
		}
		if err := schema.Validate(p); err != nil {
			return tools.NewToolError("VALIDATION_FAILED", "Parameter validation failed").
				WithTool(name).
				Wrap(err)
		}
		params = p
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = tools.NewToolError("PANIC", "Tool panicked").
				WithTool(name).
				WithDetail("panic", fmt.Sprint(rec))
		}
	}()

	if err := tool.Execute(ctx, chat, params); err != nil {
		var toolErr *tools.ToolError
		if errors.As(err, &toolErr) {
			if toolErr.Tool == "" {
				toolErr.Tool = name
			}
			return toolErr
		}
		return tools.NewToolError("EXECUTION_FAILED", "Tool execution failed").WithTool(name).Wrap(err)
	}
	return nil
}
