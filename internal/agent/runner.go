package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/iuriikogan/rlm-orchestrator/internal/rlm"
	"github.com/iuriikogan/rlm-orchestrator/internal/sandbox"
	"github.com/iuriikogan/rlm-orchestrator/internal/types"
)

// Runner loops completions until the task terminates via FINAL/FINAL_VAR
// or a guardrail trips. One Runner drives one run at a time.
type Runner struct {
	orch    *rlm.RLM
	exec    sandbox.Executor
	config  Config
	cancel  atomic.Bool
	mu      sync.Mutex
	status  Status
	current *State
}

// Status is a point-in-time snapshot of a run.
type Status struct {
	RunID       string  `json:"run_id"`
	Iteration   int     `json:"iteration"`
	TotalTokens int     `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
	IsTerminal  bool    `json:"is_terminal"`
	Cancelled   bool    `json:"cancelled"`
}

// NewRunner builds an agent runner. The sandbox may be nil; FINAL_VAR
// then reports that only FINAL is available.
func NewRunner(orch *rlm.RLM, exec sandbox.Executor, cfg Config) *Runner {
	return &Runner{orch: orch, exec: exec, config: cfg.Clamp()}
}

// Cancel stops the run after the current iteration.
func (r *Runner) Cancel() {
	r.cancel.Store(true)
}

// Status returns the current run snapshot.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.status
	if r.current != nil {
		s.IsTerminal, _, _ = r.current.Terminal()
	}
	s.Cancelled = r.cancel.Load()
	return s
}

func (r *Runner) setStatus(iteration, tokens int, cost float64) {
	r.mu.Lock()
	r.status.Iteration = iteration
	r.status.TotalTokens = tokens
	r.status.TotalCost = cost
	r.mu.Unlock()
}

// Run executes the task until FINAL/FINAL_VAR fires, a guardrail trips,
// or the context is cancelled. Terminal tools are registered for the
// duration of the run and unregistered on every exit path.
func (r *Runner) Run(ctx context.Context, task string) *Result {
	runID := uuid.NewString()[:8]
	r.cancel.Store(false)

	start := time.Now()
	state := &State{}
	r.mu.Lock()
	r.current = state
	r.status = Status{RunID: runID}
	r.mu.Unlock()

	terminalTools := NewTerminalTools(state, r.exec)
	registry := r.orch.Registry()
	for _, t := range terminalTools {
		registry.Register(t)
	}
	defer func() {
		for _, t := range terminalTools {
			registry.Unregister(t.Name)
		}
	}()

	var (
		totalTokens     int
		totalCost       float64
		previousActions []string
		allEvents       []types.TrajectoryEvent
		summaries       []IterationSummary
	)

	finish := func(answer, source string, iterations int, forced bool) *Result {
		return &Result{
			Answer:             answer,
			AnswerSource:       source,
			Iterations:         iterations,
			TotalTokens:        totalTokens,
			TotalCostUSD:       totalCost,
			DurationMS:         time.Since(start).Milliseconds(),
			ForcedTermination:  forced,
			RunID:              runID,
			Trajectory:         allEvents,
			IterationSummaries: summaries,
		}
	}

	for iteration := 0; iteration < r.config.MaxIterations; iteration++ {
		if r.cancel.Load() {
			return finish("Agent was cancelled.", SourceError, iteration, true)
		}
		if err := ctx.Err(); err != nil {
			return finish("Agent timed out.", SourceError, iteration, true)
		}

		allowed, reason := CheckIterationAllowed(iteration, r.config, totalCost, totalTokens)
		if !allowed {
			slog.Info("agent limit reached", "run_id", runID, "reason", reason)
			break
		}

		remaining := r.config.TokenBudget - totalTokens
		prompt := buildIterationPrompt(task, iteration, r.config.MaxIterations, previousActions, remaining)

		// Each iteration gets a slice of the budget so one iteration
		// cannot starve the rest, but may borrow up to twice its share.
		perIteration := r.config.TokenBudget / r.config.MaxIterations * 2
		opts := types.CompletionOptions{
			MaxDepth:          r.config.MaxDepth,
			TokenBudget:       min(remaining, perIteration),
			ToolBudget:        r.config.ToolBudget,
			TimeoutSeconds:    r.config.TimeoutSeconds,
			IncludeTrajectory: r.config.TrajectoryLog,
		}

		slog.Debug("agent iteration",
			"run_id", runID,
			"iteration", iteration,
			"tokens_used", totalTokens,
			"cost", totalCost)

		result, err := r.orch.Completion(ctx, prompt, SystemPrompt, &opts)
		if err != nil {
			return finish("Agent failed: "+err.Error(), SourceError, iteration, true)
		}

		totalTokens += result.TotalTokens
		if result.TotalCostUSD != nil {
			totalCost += *result.TotalCostUSD
		}
		allEvents = append(allEvents, result.Events...)
		r.setStatus(iteration+1, totalTokens, totalCost)

		summaries = append(summaries, IterationSummary{
			Iteration:       iteration,
			Tokens:          result.TotalTokens,
			CostUSD:         result.TotalCostUSD,
			ToolCalls:       result.TotalToolCalls,
			ResponsePreview: preview(result.Response, 200),
		})
		previousActions = append(previousActions, summarizeIteration(iteration, result))

		if terminal, value, kind := state.Terminal(); terminal {
			return finish(value, kind, iteration+1, false)
		}
	}

	slog.Warn("agent forced termination", "run_id", runID, "iterations", len(summaries))
	answer := "No answer produced."
	if len(previousActions) > 0 {
		answer = previousActions[len(previousActions)-1]
	}
	return finish(answer, SourceForced, len(summaries), true)
}

// summarizeIteration compresses one completion into a single line fed to
// later iterations as context.
func summarizeIteration(iteration int, result *types.Result) string {
	summary := fmt.Sprintf("[Iter %d] ", iteration+1)

	if result.TotalToolCalls > 0 {
		var names []string
		for _, ev := range result.Events {
			for _, tc := range ev.ToolCalls {
				names = append(names, tc.Name)
			}
		}
		if len(names) > 5 {
			names = names[:5]
		}
		summary += "Tools: " + strings.Join(names, ", ")
		if result.Response != "" {
			summary += " -> " + preview(result.Response, 80)
		}
		return summary
	}
	if result.Response != "" {
		return summary + "Response: " + preview(result.Response, 100)
	}
	return summary + "No response"
}
