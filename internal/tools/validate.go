package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidateArgs checks tool-call arguments against the tool's parameter
// schema. A tool with no parameter spec accepts any arguments. Both schema
// and arguments are round-tripped through JSON so Go literal maps with
// int values validate the same as decoded wire payloads.
func ValidateArgs(t *Tool, args map[string]any) error {
	if len(t.Parameters) == 0 {
		return nil
	}

	schema, err := compileSchema(t.Parameters)
	if err != nil {
		return &ValidationError{Name: t.Name, Reason: fmt.Sprintf("bad parameter schema: %v", err)}
	}

	payload, err := normalize(args)
	if err != nil {
		return &ValidationError{Name: t.Name, Reason: fmt.Sprintf("arguments not JSON-encodable: %v", err)}
	}

	if err := schema.Validate(payload); err != nil {
		return &ValidationError{Name: t.Name, Reason: err.Error()}
	}
	return nil
}

func compileSchema(params map[string]any) (*jsonschema.Schema, error) {
	doc, err := normalize(params)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// normalize round-trips a value through JSON so numbers become float64 and
// nested maps use plain JSON types.
func normalize(v any) (any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	decoded, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return decoded, nil
}
