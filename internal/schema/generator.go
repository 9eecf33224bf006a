package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// Generator converts Go structs to JSON schemas.
//
// Field names come from the json tag. A field is required when its schema
// tag says so or when its json tag lacks omitempty. The schema tag also
// carries constraints: enum:a|b, min:N, max:N, pattern:re, format:f and
// default:v. The description tag becomes the property description.
type Generator struct{}

// NewGenerator creates a new schema generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate creates a JSON schema from a struct value or pointer
func (g *Generator) Generate(v interface{}) (map[string]interface{}, error) {
	t := reflect.TypeOf(v)
	if t == nil {
		return nil, fmt.Errorf("expected struct, got nil")
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected struct, got %s", t.Kind())
	}
	return g.object(t), nil
}

// GenerateFunctionSchema creates an OpenAI-compatible function schema
func (g *Generator) GenerateFunctionSchema(name, description string, params interface{}) (map[string]interface{}, error) {
	parameters, err := g.Generate(params)
	if err != nil {
		return nil, fmt.Errorf("parameters of %s: %w", name, err)
	}
	return map[string]interface{}{
		"type": "function",
		"function": map[string]interface{}{
			"name":        name,
			"description": description,
			"parameters":  parameters,
		},
	}, nil
}

// JSON renders the schema of v as indented JSON, for embedding in prompts
func (g *Generator) JSON(v interface{}) (string, error) {
	s, err := g.Generate(v)
	if err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (g *Generator) object(t reflect.Type) map[string]interface{} {
	properties := make(map[string]interface{})
	var required []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}
		name := fieldName(field, jsonTag)

		schemaTag := field.Tag.Get("schema")
		if hasOption(schemaTag, "required") || !strings.Contains(jsonTag, "omitempty") {
			required = append(required, name)
		}

		prop := g.field(field.Type)
		if desc := field.Tag.Get("description"); desc != "" {
			prop["description"] = desc
		}
		applyConstraints(schemaTag, prop)
		properties[name] = prop
	}

	out := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func (g *Generator) field(t reflect.Type) map[string]interface{} {
	s := make(map[string]interface{})

	switch t.Kind() {
	case reflect.String:
		s["type"] = "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		s["type"] = "integer"
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		s["type"] = "integer"
		s["minimum"] = 0
	case reflect.Float32, reflect.Float64:
		s["type"] = "number"
	case reflect.Bool:
		s["type"] = "boolean"
	case reflect.Slice, reflect.Array:
		s["type"] = "array"
		s["items"] = g.field(t.Elem())
	case reflect.Map:
		s["type"] = "object"
		if t.Elem().Kind() != reflect.Interface {
			s["additionalProperties"] = g.field(t.Elem())
		}
	case reflect.Struct:
		if t == timeType {
			s["type"] = "string"
			s["format"] = "date-time"
			return s
		}
		return g.object(t)
	case reflect.Ptr:
		return g.field(t.Elem())
	default:
		s["type"] = "string"
	}

	return s
}

func applyConstraints(tag string, s map[string]interface{}) {
	for _, part := range splitTag(tag) {
		key, value, _ := strings.Cut(part, ":")
		switch key {
		case "enum":
			s["enum"] = strings.Split(value, "|")
		case "min", "max":
			var n interface{}
			if err := json.Unmarshal([]byte(value), &n); err != nil {
				continue
			}
			name := "minimum"
			if key == "max" {
				name = "maximum"
			}
			switch s["type"] {
			case "string":
				name = strings.Replace(name, "imum", "Length", 1)
			case "array":
				name = strings.Replace(name, "imum", "Items", 1)
			}
			s[name] = n
		case "pattern":
			s["pattern"] = value
		case "format":
			s["format"] = value
		case "default":
			var def interface{}
			if err := json.Unmarshal([]byte(value), &def); err == nil {
				s["default"] = def
			} else {
				s["default"] = value
			}
		}
	}
}

func splitTag(tag string) []string {
	if tag == "" {
		return nil
	}
	parts := strings.Split(tag, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func hasOption(tag, option string) bool {
	for _, part := range splitTag(tag) {
		if part == option {
			return true
		}
	}
	return false
}

func fieldName(field reflect.StructField, jsonTag string) string {
	name, _, _ := strings.Cut(jsonTag, ",")
	name = strings.TrimSpace(name)
	if name == "" {
		return field.Name
	}
	return name
}
