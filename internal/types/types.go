// Package types defines the data model shared across the orchestrator:
// conversation messages, tool calls and results, trajectory events, and
// per-completion options and totals.
package types

import (
	"github.com/google/uuid"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn in a conversation. A tool-role message carries the
// ToolCallID of the call it answers, which must have been emitted by the
// immediately preceding assistant message.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a tool invocation requested by the model. The ID is
// provider-supplied and must be echoed back verbatim in the matching
// ToolResult.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the outcome of exactly one ToolCall. When the tool is
// unknown or fails, Content carries a human-readable error and IsError is
// set; results are never retried.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// TrajectoryEvent records one backend request/response exchange. Events form
// a tree via ParentCallID; depth strictly increases along parent->child
// edges. EstimatedCostUSD is nil when the model is unknown to the pricing
// table.
type TrajectoryEvent struct {
	TrajectoryID     uuid.UUID    `json:"trajectory_id"`
	CallID           uuid.UUID    `json:"call_id"`
	ParentCallID     *uuid.UUID   `json:"parent_call_id,omitempty"`
	Depth            int          `json:"depth"`
	Prompt           string       `json:"prompt"`
	Response         string       `json:"response,omitempty"`
	ToolCalls        []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults      []ToolResult `json:"tool_results,omitempty"`
	InputTokens      int          `json:"input_tokens"`
	OutputTokens     int          `json:"output_tokens"`
	DurationMS       int64        `json:"duration_ms"`
	Error            string       `json:"error,omitempty"`
	EstimatedCostUSD *float64     `json:"estimated_cost_usd,omitempty"`
}

// CompletionOptions is the immutable per-completion configuration. All
// budget checks are strict: a budget of N permits usage up to but not
// including N.
type CompletionOptions struct {
	MaxDepth          int      `json:"max_depth"`
	MaxSubcalls       int      `json:"max_subcalls"`
	TokenBudget       int      `json:"token_budget"`
	ToolBudget        int      `json:"tool_budget"`
	TimeoutSeconds    int      `json:"timeout_seconds"`
	CostBudgetUSD     *float64 `json:"cost_budget_usd,omitempty"`
	ParallelTools     bool     `json:"parallel_tools"`
	MaxParallel       int      `json:"max_parallel"`
	IncludeTrajectory bool     `json:"include_trajectory"`
}

// DefaultOptions returns the default completion options.
func DefaultOptions() CompletionOptions {
	return CompletionOptions{
		MaxDepth:          5,
		MaxSubcalls:       10,
		TokenBudget:       32000,
		ToolBudget:        20,
		TimeoutSeconds:    120,
		MaxParallel:       3,
		IncludeTrajectory: true,
	}
}

// StreamOptions configures a streaming completion (no tool use).
type StreamOptions struct {
	CostBudgetUSD  *float64 `json:"cost_budget_usd,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

// Result is the terminal output of one completion. Success reflects the
// absence of an unrecovered failure; tool errors inside a completed
// trajectory do not make the result unsuccessful. A failed completion still
// carries a well-formed Result whose Response begins "Error: ".
type Result struct {
	Response          string            `json:"response"`
	TrajectoryID      uuid.UUID         `json:"trajectory_id"`
	Success           bool              `json:"success"`
	TotalCalls        int               `json:"total_calls"`
	TotalTokens       int               `json:"total_tokens"`
	TotalInputTokens  int               `json:"total_input_tokens"`
	TotalOutputTokens int               `json:"total_output_tokens"`
	TotalToolCalls    int               `json:"total_tool_calls"`
	DurationMS        int64             `json:"duration_ms"`
	TotalCostUSD      *float64          `json:"total_cost_usd,omitempty"`
	Events            []TrajectoryEvent `json:"events,omitempty"`
}

// UsageSummary aggregates token usage across a set of trajectory events.
type UsageSummary struct {
	TotalCalls        int `json:"total_calls"`
	TotalInputTokens  int `json:"total_input_tokens"`
	TotalOutputTokens int `json:"total_output_tokens"`
}

// Summarize computes the usage summary for a list of events.
func Summarize(events []TrajectoryEvent) UsageSummary {
	s := UsageSummary{TotalCalls: len(events)}
	for _, e := range events {
		s.TotalInputTokens += e.InputTokens
		s.TotalOutputTokens += e.OutputTokens
	}
	return s
}
