// Package agent runs an autonomous task loop on top of the completion
// orchestrator, with its own one-level guardrails and an explicit
// termination protocol (FINAL / FINAL_VAR tools).
package agent

// Hard safety limits, not configurable.
const (
	AbsoluteMaxIterations = 50
	AbsoluteMaxCost       = 10.0
	AbsoluteMaxTimeout    = 600
	AbsoluteMaxDepth      = 5
)

// Config holds the limits for one agent run.
type Config struct {
	MaxIterations  int
	MaxDepth       int
	TokenBudget    int
	CostLimitUSD   float64
	TimeoutSeconds int
	ToolBudget     int // tool calls across all iterations
	TrajectoryLog  bool
}

// DefaultConfig returns the standard agent limits.
func DefaultConfig() Config {
	return Config{
		MaxIterations:  10,
		MaxDepth:       3,
		TokenBudget:    50000,
		CostLimitUSD:   2.0,
		TimeoutSeconds: 120,
		ToolBudget:     50,
		TrajectoryLog:  true,
	}
}

// Clamp caps the config to the absolute safety limits.
func (c Config) Clamp() Config {
	if c.MaxIterations > AbsoluteMaxIterations {
		c.MaxIterations = AbsoluteMaxIterations
	}
	if c.MaxDepth > AbsoluteMaxDepth {
		c.MaxDepth = AbsoluteMaxDepth
	}
	if c.CostLimitUSD > AbsoluteMaxCost {
		c.CostLimitUSD = AbsoluteMaxCost
	}
	if c.TimeoutSeconds > AbsoluteMaxTimeout {
		c.TimeoutSeconds = AbsoluteMaxTimeout
	}
	return c
}
