package rlm

import "fmt"

// MaxDepthExceededError fires when the recursion ceiling or the absolute
// backend-call ceiling is hit. What names which ceiling tripped.
type MaxDepthExceededError struct {
	Value int
	Limit int
	What  string // "depth" or "backend calls"
}

func (e *MaxDepthExceededError) Error() string {
	return fmt.Sprintf("max %s exceeded: %d >= %d", e.What, e.Value, e.Limit)
}

// TokenBudgetExhaustedError fires when cumulative input+output tokens
// across logged events reach the budget.
type TokenBudgetExhaustedError struct {
	Used   int
	Budget int
}

func (e *TokenBudgetExhaustedError) Error() string {
	return fmt.Sprintf("token budget exhausted: %d tokens used >= budget of %d", e.Used, e.Budget)
}

// CostBudgetExhaustedError fires when cumulative estimated cost reaches
// the configured dollar budget.
type CostBudgetExhaustedError struct {
	Used   float64
	Budget float64
}

func (e *CostBudgetExhaustedError) Error() string {
	return fmt.Sprintf("cost budget exhausted: $%.4f used >= budget of $%.4f", e.Used, e.Budget)
}

// TimedOutError fires when the completion's wall-clock timeout expires.
type TimedOutError struct {
	ElapsedSeconds float64
	TimeoutSeconds int
}

func (e *TimedOutError) Error() string {
	return fmt.Sprintf("completion timed out after %.1fs (limit %ds)", e.ElapsedSeconds, e.TimeoutSeconds)
}

// SubCallBudgetExhaustedError fires when a turn has already issued the
// maximum number of delegated sub-completions.
type SubCallBudgetExhaustedError struct {
	Count int
	Max   int
}

func (e *SubCallBudgetExhaustedError) Error() string {
	return fmt.Sprintf("sub-call budget exhausted: %d sub-calls issued >= limit of %d", e.Count, e.Max)
}

// SubCallCostExceededError fires when cumulative sub-call spend reaches
// the per-session dollar cap.
type SubCallCostExceededError struct {
	Cost float64
	Max  float64
}

func (e *SubCallCostExceededError) Error() string {
	return fmt.Sprintf("sub-call session cost exceeded: $%.4f >= limit of $%.4f", e.Cost, e.Max)
}
