package tools

import (
	"context"
	"fmt"
	"sort"
)

// ChatControls lets a tool write into the running conversation
type ChatControls interface {
	// Send adds a new assistant message
	Send(text string)

	// Append appends text to the trailing assistant message, creating one if needed
	Append(text string)

	// AppendLine appends text as a new paragraph of the trailing assistant message
	AppendLine(text string)
}

// Tool defines the interface that all tools must implement
type Tool interface {
	// Name returns the unique name of the tool
	Name() string

	// Description returns a brief description of what the tool does
	Description() string

	// Parameters returns a fresh pointer to the tool's parameter struct.
	// It drives both schema generation and argument decoding; nil means the
	// tool takes free-form arguments as map[string]interface{}.
	Parameters() interface{}

	// Execute runs the tool with decoded, validated parameters
	Execute(ctx context.Context, chat ChatControls, params interface{}) error
}

// DisplayTexter is implemented by tools that want a friendlier status label
type DisplayTexter interface {
	DisplayText() string
}

// Definition is a caller-supplied tool, registered by name through FromDefinitions
type Definition struct {
	Description string
	DisplayText string
	Params      func() interface{}
	Execute     func(ctx context.Context, chat ChatControls, params interface{}) error
}

type definedTool struct {
	name string
	def  Definition
}

func (t *definedTool) Name() string        { return t.name }
func (t *definedTool) Description() string { return t.def.Description }
func (t *definedTool) DisplayText() string { return t.def.DisplayText }

func (t *definedTool) Parameters() interface{} {
	if t.def.Params == nil {
		return nil
	}
	return t.def.Params()
}

func (t *definedTool) Execute(ctx context.Context, chat ChatControls, params interface{}) error {
	return t.def.Execute(ctx, chat, params)
}

// FromDefinitions converts a name → definition mapping into tools, ordered by name
func FromDefinitions(defs map[string]Definition) ([]Tool, error) {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Tool, 0, len(defs))
	for _, name := range names {
		def := defs[name]
		if name == "" {
			return nil, fmt.Errorf("tool definition without a name")
		}
		if def.Execute == nil {
			return nil, fmt.Errorf("tool '%s' has no execute function", name)
		}
		out = append(out, &definedTool{name: name, def: def})
	}
	return out, nil
}

// ToolError represents a structured error from a tool
type ToolError struct {
	Tool    string                 `json:"tool,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

func (e *ToolError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Tool != "" {
		msg = "tool " + e.Tool + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// NewToolError creates a new tool error
func NewToolError(code, message string) *ToolError {
	return &ToolError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WithDetail adds a detail to the error
func (e *ToolError) WithDetail(key string, value interface{}) *ToolError {
	e.Details[key] = value
	return e
}

// WithTool records the name of the failing tool
func (e *ToolError) WithTool(name string) *ToolError {
	e.Tool = name
	return e
}

// Wrap attaches the underlying cause
func (e *ToolError) Wrap(err error) *ToolError {
	e.Err = err
	return e
}
