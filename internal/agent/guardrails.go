package agent

import "fmt"

// CheckIterationAllowed decides whether another iteration may run. When
// not allowed, the reason explains which limit tripped. All checks are
// strict >=, matching the orchestrator's guard style.
func CheckIterationAllowed(iteration int, cfg Config, totalCost float64, totalTokens int) (bool, string) {
	if iteration >= cfg.MaxIterations {
		return false, fmt.Sprintf("iteration limit reached (%d/%d)", iteration, cfg.MaxIterations)
	}
	if totalCost >= cfg.CostLimitUSD {
		return false, fmt.Sprintf("cost limit reached ($%.4f/$%.4f)", totalCost, cfg.CostLimitUSD)
	}
	if totalTokens >= cfg.TokenBudget {
		return false, fmt.Sprintf("token budget exhausted (%d/%d)", totalTokens, cfg.TokenBudget)
	}
	return true, ""
}
