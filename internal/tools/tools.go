// Package tools defines the named, schema-described capabilities the model
// may invoke, along with the registry that stores them and the argument
// validation applied before dispatch.
package tools

import (
	"context"
)

// Handler executes a tool call. Arguments have already been validated
// against the tool's parameter schema. The returned string becomes the
// ToolResult content.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool is a callable capability exposed to the model. Parameters is a
// JSON-schema-shaped spec ("type": "object", "properties", "required").
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     Handler        `json:"-"`
}

// OpenAIFunction renders the tool as an OpenAI-style function-calling block.
func (t *Tool) OpenAIFunction() map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Parameters,
		},
	}
}

// AnthropicBlock renders the tool as an Anthropic-style input-schema block.
func (t *Tool) AnthropicBlock() map[string]any {
	return map[string]any{
		"name":         t.Name,
		"description":  t.Description,
		"input_schema": t.Parameters,
	}
}
