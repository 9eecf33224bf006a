package llm

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"
)

// ToolCallAccumulator merges streamed tool call fragments into complete calls.
//
// Providers split a call over several deltas: the first usually carries the
// ID and name, later ones only argument text. Fragments are matched by index
// when present, then by ID, then by name, and otherwise appended to the most
// recent call.
type ToolCallAccumulator struct {
	calls []*pendingCall
}

type pendingCall struct {
	index *int
	id    string
	name  string
	args  bytes.Buffer
}

// Add merges one delta
func (a *ToolCallAccumulator) Add(delta ToolCall) {
	target := a.match(delta)
	if target == nil {
		target = &pendingCall{index: delta.Index}
		a.calls = append(a.calls, target)
	}
	if target.index == nil && delta.Index != nil {
		target.index = delta.Index
	}
	if delta.ID != "" {
		target.id = delta.ID
	}
	if delta.Function.Name != "" {
		target.name = delta.Function.Name
	}
	target.args.Write(delta.Function.Arguments)
}

func (a *ToolCallAccumulator) match(delta ToolCall) *pendingCall {
	if delta.Index != nil {
		for _, c := range a.calls {
			if c.index != nil && *c.index == *delta.Index {
				return c
			}
		}
	}
	if delta.ID != "" {
		for _, c := range a.calls {
			if c.id == delta.ID {
				return c
			}
		}
	}
	if delta.Function.Name != "" && delta.ID == "" {
		for _, c := range a.calls {
			if c.name == delta.Function.Name {
				return c
			}
		}
	}
	if len(a.calls) == 0 {
		return nil
	}
	last := a.calls[len(a.calls)-1]
	// A named fragment starts a new call unless the last one is still an unnamed placeholder.
	if delta.Function.Name != "" && last.name != "" {
		return nil
	}
	if delta.Index != nil && last.index != nil {
		return nil
	}
	return last
}

// Len returns the number of calls seen so far
func (a *ToolCallAccumulator) Len() int {
	return len(a.calls)
}

// Calls returns the completed calls. Calls without a name are dropped, missing
// IDs are generated and arguments are canonicalized with CanonicalToolArguments.
func (a *ToolCallAccumulator) Calls() []ToolCall {
	out := make([]ToolCall, 0, len(a.calls))
	for _, c := range a.calls {
		if c.name == "" {
			continue
		}
		id := c.id
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		args := CanonicalToolArguments(json.RawMessage(c.args.Bytes()))
		out = append(out, ToolCall{
			ID:   id,
			Type: "function",
			Function: FunctionCall{
				Name:      c.name,
				Arguments: args,
			},
		})
	}
	return out
}

// Reset forgets all accumulated calls
func (a *ToolCallAccumulator) Reset() {
	a.calls = nil
}
