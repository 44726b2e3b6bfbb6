package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/iuriikogan/rlm-orchestrator/internal/sandbox"
	"github.com/iuriikogan/rlm-orchestrator/internal/tools"
)

// State tracks agent termination. Handlers may run concurrently when a
// turn dispatches tools in parallel.
type State struct {
	mu           sync.Mutex
	isTerminal   bool
	terminalVal  string
	terminalType string // "final" or "final_var"
}

func (s *State) terminate(value, kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isTerminal {
		return
	}
	s.isTerminal = true
	s.terminalVal = value
	s.terminalType = kind
}

// Terminal reports whether a termination tool has fired, and with what.
func (s *State) Terminal() (bool, string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isTerminal, s.terminalVal, s.terminalType
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// NewTerminalTools creates the FINAL and FINAL_VAR termination tools.
// FINAL_VAR reads a variable from the sandbox's persistent context; it
// degrades to an error result when no sandbox is attached.
func NewTerminalTools(state *State, exec sandbox.Executor) []*tools.Tool {
	final := &tools.Tool{
		Name:        "FINAL",
		Description: "Terminate the agent and return your answer. Call this when you have fully solved the task and are ready to report the result.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"answer": map[string]any{
					"type":        "string",
					"description": "The final answer to the task",
				},
			},
			"required": []any{"answer"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			answer, _ := args["answer"].(string)
			state.terminate(answer, "final")
			return fmt.Sprintf("Agent terminated with answer: %s", preview(answer, 100)), nil
		},
	}

	finalVar := &tools.Tool{
		Name:        "FINAL_VAR",
		Description: "Terminate the agent and return the value of a sandbox variable. Use this when the answer is stored in a computed variable.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"variable_name": map[string]any{
					"type":        "string",
					"description": "Name of the sandbox variable to return",
				},
			},
			"required": []any{"variable_name"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			name, _ := args["variable_name"].(string)
			if exec == nil {
				return "", fmt.Errorf("no sandbox attached; use FINAL instead")
			}
			vars, err := exec.GetContext()
			if err != nil {
				return "", err
			}
			value, ok := vars[name]
			if !ok {
				names := make([]string, 0, len(vars))
				for k := range vars {
					names = append(names, k)
				}
				sort.Strings(names)
				return fmt.Sprintf("Error: variable %q not found in sandbox context. Available: %v", name, names), nil
			}
			str := fmt.Sprintf("%v", value)
			state.terminate(str, "final_var")
			return fmt.Sprintf("Agent terminated with variable %q = %s", name, preview(str, 100)), nil
		},
	}

	return []*tools.Tool{final, finalVar}
}
