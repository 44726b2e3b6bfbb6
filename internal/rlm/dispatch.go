package rlm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/iuriikogan/rlm-orchestrator/internal/observability"
	"github.com/iuriikogan/rlm-orchestrator/internal/tools"
	"github.com/iuriikogan/rlm-orchestrator/internal/types"
)

// dispatchToolCalls produces exactly one ToolResult per requested call,
// in call order. Calls beyond the remaining tool budget never reach a
// handler; they get budget-exceeded error results instead.
func (r *RLM) dispatchToolCalls(ctx context.Context, st *state, tcs []types.ToolCall, extra []*tools.Tool) []types.ToolResult {
	// Prior events already include this turn's event, so subtract its
	// own requested calls to get what was issued before this turn.
	usedBefore := st.toolCallsIssued() - len(tcs)
	remaining := st.opts.ToolBudget - usedBefore
	if remaining < 0 {
		remaining = 0
	}

	allowed := tcs
	if len(tcs) > remaining {
		allowed = tcs[:remaining]
	}

	results := make([]types.ToolResult, len(tcs))
	for i := len(allowed); i < len(tcs); i++ {
		results[i] = types.ToolResult{
			ToolCallID: tcs[i].ID,
			Content:    fmt.Sprintf("Error: tool budget exceeded (%d calls allowed)", st.opts.ToolBudget),
			IsError:    true,
		}
		observability.ToolExecutions.WithLabelValues(tcs[i].Name, "budget_exceeded").Inc()
	}

	if st.opts.ParallelTools && len(allowed) > 1 {
		r.dispatchParallel(ctx, st.opts.MaxParallel, allowed, extra, results)
	} else {
		for i, tc := range allowed {
			results[i] = r.executeOne(ctx, tc, extra)
		}
	}
	return results
}

// dispatchParallel runs the allowed calls concurrently under a counting
// semaphore sized MaxParallel. Results land at the position of their
// originating call regardless of completion order.
func (r *RLM) dispatchParallel(ctx context.Context, maxParallel int, allowed []types.ToolCall, extra []*tools.Tool, results []types.ToolResult) {
	if maxParallel < 1 {
		maxParallel = 1
	}
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup
	for i, tc := range allowed {
		wg.Add(1)
		go func(i int, tc types.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = r.executeOne(ctx, tc, extra)
		}(i, tc)
	}
	wg.Wait()
}

// executeOne resolves and runs a single tool call. Every failure mode is
// downgraded to an error ToolResult so the model can see it and adapt;
// nothing here aborts the recursion.
func (r *RLM) executeOne(ctx context.Context, tc types.ToolCall, extra []*tools.Tool) (result types.ToolResult) {
	result.ToolCallID = tc.ID

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("tool handler panicked", "tool", tc.Name, "panic", rec)
			result.Content = fmt.Sprintf("Error: tool %q failed: %v", tc.Name, rec)
			result.IsError = true
			observability.ToolExecutions.WithLabelValues(tc.Name, "error").Inc()
		}
	}()

	tool := r.resolve(tc.Name, extra)
	if tool == nil {
		nfErr := &tools.NotFoundError{Name: tc.Name, Available: r.availableNames(extra)}
		result.Content = "Error: " + nfErr.Error()
		result.IsError = true
		observability.ToolExecutions.WithLabelValues(tc.Name, "error").Inc()
		return result
	}

	if err := tools.ValidateArgs(tool, tc.Arguments); err != nil {
		result.Content = "Error: " + err.Error()
		result.IsError = true
		observability.ToolExecutions.WithLabelValues(tc.Name, "error").Inc()
		return result
	}

	out, err := tool.Handler(ctx, tc.Arguments)
	if err != nil {
		execErr := &tools.ExecutionError{Name: tc.Name, Err: err}
		slog.Warn("tool execution failed", "tool", tc.Name, "error", err)
		result.Content = "Error: " + execErr.Error()
		result.IsError = true
		observability.ToolExecutions.WithLabelValues(tc.Name, "error").Inc()
		return result
	}

	result.Content = out
	observability.ToolExecutions.WithLabelValues(tc.Name, "ok").Inc()
	return result
}

// resolve checks the registry first, then the per-completion extras.
func (r *RLM) resolve(name string, extra []*tools.Tool) *tools.Tool {
	if t := r.registry.Get(name); t != nil {
		return t
	}
	for _, t := range extra {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func (r *RLM) availableNames(extra []*tools.Tool) []string {
	names := r.registry.Names()
	for _, t := range extra {
		names = append(names, t.Name)
	}
	return names
}
