package agent

import (
	"fmt"
	"strings"
)

// SystemPrompt describes the agent's action space and strategy.
const SystemPrompt = `You are an autonomous agent that solves tasks by observing, thinking, and acting.

Available actions:
- execute_code: Run Python code in a persistent sandbox to compute, analyze, or process data
- sandbox_context: Read/write persistent variables across code executions
- rlm_sub_complete: Delegate a sub-problem to a fresh completion
- rlm_batch_complete: Run multiple sub-problems in parallel
- FINAL(answer): Terminate and return your answer as text
- FINAL_VAR(variable_name): Terminate and return the value of a sandbox variable

Strategy:
1. Break the problem into steps
2. Use tools to gather information and compute results
3. Store intermediate results in sandbox variables
4. Call FINAL or FINAL_VAR when you have the answer

Important:
- Always call FINAL or FINAL_VAR when done - do not just output text
- If you're running low on iterations, call FINAL with your best answer
- Be efficient with tool calls - plan before acting`

// buildIterationPrompt assembles the per-iteration prompt with the task,
// progress counters, and a window of previous-action summaries.
func buildIterationPrompt(task string, iteration, maxIterations int, previousActions []string, remainingBudget int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", task)
	fmt.Fprintf(&b, "\nIteration: %d/%d\n", iteration+1, maxIterations)
	fmt.Fprintf(&b, "Remaining token budget: %d\n", remainingBudget)

	if len(previousActions) > 0 {
		b.WriteString("\nPrevious actions:\n")
		window := previousActions
		if len(window) > 5 {
			window = window[len(window)-5:]
		}
		for i, action := range window {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, action)
		}
	}

	if iteration >= maxIterations-1 {
		b.WriteString("\nTHIS IS YOUR FINAL ITERATION. You MUST call FINAL or FINAL_VAR now with your best answer.\n")
	}

	return b.String()
}
