package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iuriikogan/rlm-orchestrator/internal/sandbox"
)

// NewExecuteCodeTool exposes the sandbox interpreter as a tool. State set
// by one call persists to the next, so the model can build up results
// across turns.
func NewExecuteCodeTool(exec sandbox.Executor) *Tool {
	return &Tool{
		Name:        "execute_code",
		Description: "Execute Python code in a persistent sandbox. Variables persist between calls. Use print() to produce output. A dict named 'context' survives across calls and is shared with the sandbox_context tool.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Python source to execute",
				},
				"timeout_seconds": map[string]any{
					"type":        "number",
					"description": "Optional per-call timeout in seconds",
				},
			},
			"required": []any{"code"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			code, _ := args["code"].(string)
			if code == "" {
				return "", fmt.Errorf("code must be a non-empty string")
			}
			var timeout time.Duration
			if secs, ok := args["timeout_seconds"].(float64); ok && secs > 0 {
				timeout = time.Duration(secs * float64(time.Second))
			}

			res, err := exec.Execute(ctx, code, timeout)
			if err != nil {
				return "", err
			}
			if res.Error != "" {
				if res.Output != "" {
					return fmt.Sprintf("%s\nError: %s", res.Output, res.Error), nil
				}
				return fmt.Sprintf("Error: %s", res.Error), nil
			}
			if res.Output == "" {
				return "(no output)", nil
			}
			return res.Output, nil
		},
	}
}

// NewSandboxContextTool lets the model inspect and edit the sandbox's
// persistent context dict without running code.
func NewSandboxContextTool(exec sandbox.Executor) *Tool {
	return &Tool{
		Name:        "sandbox_context",
		Description: "Read or modify the sandbox's persistent context. Actions: get (return all entries), set (store key/value), clear (remove everything).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type": "string",
					"enum": []any{"get", "set", "clear"},
				},
				"key": map[string]any{
					"type":        "string",
					"description": "Key to set (required for action=set)",
				},
				"value": map[string]any{
					"description": "Value to store (required for action=set)",
				},
			},
			"required": []any{"action"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			action, _ := args["action"].(string)
			switch action {
			case "get":
				m, err := exec.GetContext()
				if err != nil {
					return "", err
				}
				data, err := json.MarshalIndent(m, "", "  ")
				if err != nil {
					return "", err
				}
				return string(data), nil
			case "set":
				key, _ := args["key"].(string)
				if key == "" {
					return "", fmt.Errorf("key must be a non-empty string for action=set")
				}
				if err := exec.SetContext(key, args["value"]); err != nil {
					return "", err
				}
				return fmt.Sprintf("stored %q", key), nil
			case "clear":
				if err := exec.ClearContext(); err != nil {
					return "", err
				}
				return "context cleared", nil
			default:
				return "", fmt.Errorf("unknown action %q", action)
			}
		},
	}
}
