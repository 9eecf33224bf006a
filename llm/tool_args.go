package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidToolArguments is returned for tool arguments that are not a JSON object
var ErrInvalidToolArguments = errors.New("tool arguments are not a JSON object")

var emptyToolArgs = json.RawMessage(`{}`)

// ParseToolArguments decodes the arguments of a tool call. Providers send
// either an object or an object encoded as a JSON string; both are accepted.
// Empty and null arguments mean no arguments. Anything else fails with
// ErrInvalidToolArguments.
func ParseToolArguments(raw json.RawMessage) (map[string]interface{}, json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if isEmptyArgs(trimmed) {
		return map[string]interface{}{}, emptyToolArgs, nil
	}

	if trimmed[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(trimmed, &unquoted); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidToolArguments, err)
		}
		trimmed = bytes.TrimSpace([]byte(unquoted))
		if isEmptyArgs(trimmed) {
			return map[string]interface{}{}, emptyToolArgs, nil
		}
	}

	var v interface{}
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidToolArguments, err)
	}
	args, ok := v.(map[string]interface{})
	if !ok {
		return nil, nil, fmt.Errorf("%w: got %T", ErrInvalidToolArguments, v)
	}

	normalized, err := json.Marshal(args)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidToolArguments, err)
	}
	return args, normalized, nil
}

// CanonicalToolArguments rewrites arguments received from a provider into a
// compact JSON object. Text that does not parse is kept as a JSON string so
// the message stays encodable and invoking the call reports the bad input.
func CanonicalToolArguments(raw json.RawMessage) json.RawMessage {
	if _, normalized, err := ParseToolArguments(raw); err == nil {
		return normalized
	}
	quoted, _ := json.Marshal(string(bytes.TrimSpace(raw)))
	return quoted
}

// ToolArgumentsObject returns the arguments as an object for providers that
// require one when replaying history. Unparseable arguments become empty.
func ToolArgumentsObject(raw json.RawMessage) (map[string]interface{}, json.RawMessage) {
	args, normalized, err := ParseToolArguments(raw)
	if err != nil {
		return map[string]interface{}{}, emptyToolArgs
	}
	return args, normalized
}

func isEmptyArgs(b []byte) bool {
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}
