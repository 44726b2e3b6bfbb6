package agent

import "github.com/iuriikogan/rlm-orchestrator/internal/types"

// Answer sources.
const (
	SourceFinal    = "final"
	SourceFinalVar = "final_var"
	SourceForced   = "forced"
	SourceError    = "error"
)

// IterationSummary captures one iteration's footprint for diagnostics.
type IterationSummary struct {
	Iteration       int      `json:"iteration"`
	Tokens          int      `json:"tokens"`
	CostUSD         *float64 `json:"cost_usd"`
	ToolCalls       int      `json:"tool_calls"`
	ResponsePreview string   `json:"response_preview"`
}

// Result is the terminal output of one agent run.
type Result struct {
	Answer             string                  `json:"answer"`
	AnswerSource       string                  `json:"answer_source"`
	Iterations         int                     `json:"iterations"`
	TotalTokens        int                     `json:"total_tokens"`
	TotalCostUSD       float64                 `json:"total_cost_usd"`
	DurationMS         int64                   `json:"duration_ms"`
	ForcedTermination  bool                    `json:"forced_termination"`
	RunID              string                  `json:"run_id"`
	Trajectory         []types.TrajectoryEvent `json:"trajectory,omitempty"`
	IterationSummaries []IterationSummary      `json:"iteration_summaries"`
}

// Success is true when the agent terminated naturally via FINAL or
// FINAL_VAR.
func (r *Result) Success() bool {
	return !r.ForcedTermination && (r.AnswerSource == SourceFinal || r.AnswerSource == SourceFinalVar)
}
