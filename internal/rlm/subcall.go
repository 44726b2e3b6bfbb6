package rlm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/iuriikogan/rlm-orchestrator/internal/observability"
	"github.com/iuriikogan/rlm-orchestrator/internal/tools"
	"github.com/iuriikogan/rlm-orchestrator/internal/types"
)

// SubCallLimits governs the delegation tools a completion exposes back
// into the orchestrator.
type SubCallLimits struct {
	Enabled           bool
	MaxPerTurn        int     // sub-calls allowed within one completion
	BudgetInheritance float64 // fraction of the parent's remaining tokens a sub-call may take
	MaxCostPerSession float64 // cumulative sub-call spend cap in USD
}

// DefaultSubCallLimits returns the standard delegation limits.
func DefaultSubCallLimits() SubCallLimits {
	return SubCallLimits{
		Enabled:           true,
		MaxPerTurn:        5,
		BudgetInheritance: 0.5,
		MaxCostPerSession: 1.0,
	}
}

// Hard ceilings applied to every sub-call regardless of what the model
// requests, so delegation cannot restart a fresh deep recursion.
const (
	subCallMaxDepth    = 2
	subCallMaxSubcalls = 4
	subCallToolBudget  = 10
	subCallTimeout     = 60
)

// subSession tracks delegation usage across one completion. Batch
// sub-calls run concurrently, hence the mutex.
type subSession struct {
	mu    sync.Mutex
	count int
	spent float64
}

// reserve applies the per-session guards and, when they pass, counts the
// sub-call. Strict >= checks, matching the orchestrator's own guards.
func (s *subSession) reserve(limits SubCallLimits) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count >= limits.MaxPerTurn {
		return &SubCallBudgetExhaustedError{Count: s.count, Max: limits.MaxPerTurn}
	}
	if s.spent >= limits.MaxCostPerSession {
		return &SubCallCostExceededError{Cost: s.spent, Max: limits.MaxCostPerSession}
	}
	s.count++
	return nil
}

func (s *subSession) addCost(cost *float64) {
	if cost == nil {
		return
	}
	s.mu.Lock()
	s.spent += *cost
	s.mu.Unlock()
}

// remainingCost returns what is left of the session's spend cap.
func (s *subSession) remainingCost(limits SubCallLimits) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining := limits.MaxCostPerSession - s.spent
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// inheritedBudget clamps a requested token budget to a fraction of what
// the parent has left. A non-positive request means "give me the
// inherited maximum".
func inheritedBudget(requested, parentBudget, parentUsed int, fraction float64) int {
	remaining := parentBudget - parentUsed
	if remaining < 0 {
		remaining = 0
	}
	inherit := int(float64(remaining) * fraction)
	if requested <= 0 || requested > inherit {
		return inherit
	}
	return requested
}

// subOptions builds the constrained options for one delegated completion.
func (r *RLM) subOptions(st *state, session *subSession, requestedTokens int) types.CompletionOptions {
	o := types.DefaultOptions()
	o.MaxDepth = min(subCallMaxDepth, st.opts.MaxDepth-1)
	if o.MaxDepth < 1 {
		o.MaxDepth = 1
	}
	o.MaxSubcalls = min(subCallMaxSubcalls, st.opts.MaxSubcalls)
	o.ToolBudget = min(subCallToolBudget, st.opts.ToolBudget)
	o.TimeoutSeconds = min(subCallTimeout, st.opts.TimeoutSeconds)
	o.TokenBudget = inheritedBudget(requestedTokens, st.opts.TokenBudget, st.tokensUsed(), r.subcalls.BudgetInheritance)
	// A cost-budgeted parent passes down what is left of the session's
	// spend cap, so one sub-call cannot blow past it on its own.
	if st.opts.CostBudgetUSD != nil {
		remaining := session.remainingCost(r.subcalls)
		o.CostBudgetUSD = &remaining
	}
	o.IncludeTrajectory = false
	return o
}

// newSubCallTools builds the delegation tools for one completion. They
// compose by calling Completion again with constrained options, never by
// reimplementing the loop.
func (r *RLM) newSubCallTools(st *state) []*tools.Tool {
	session := &subSession{}

	subComplete := &tools.Tool{
		Name:        "rlm_sub_complete",
		Description: "Delegate a focused sub-question to a nested completion with its own constrained budget. Returns the sub-completion's final answer.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt": map[string]any{
					"type":        "string",
					"description": "The sub-question to answer",
				},
				"system": map[string]any{
					"type":        "string",
					"description": "Optional system prompt for the sub-completion",
				},
				"token_budget": map[string]any{
					"type":        "integer",
					"description": "Requested token budget; clamped to a fraction of the parent's remaining tokens",
				},
			},
			"required": []any{"prompt"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			prompt, _ := args["prompt"].(string)
			system, _ := args["system"].(string)
			requested := 0
			if v, ok := args["token_budget"].(float64); ok {
				requested = int(v)
			}

			if err := session.reserve(r.subcalls); err != nil {
				return "", err
			}
			observability.SubCalls.Inc()

			opts := r.subOptions(st, session, requested)
			result, err := r.Completion(ctx, prompt, system, &opts)
			if err != nil {
				return "", err
			}
			session.addCost(result.TotalCostUSD)
			return result.Response, nil
		},
	}

	batchComplete := &tools.Tool{
		Name:        "rlm_batch_complete",
		Description: "Run several independent sub-questions concurrently, splitting a total token budget evenly across them. Returns a JSON array of answers aligned to the input order.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"queries": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Independent sub-questions",
				},
				"total_budget": map[string]any{
					"type":        "integer",
					"description": "Total token budget split evenly across queries",
				},
			},
			"required": []any{"queries"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			raw, _ := args["queries"].([]any)
			if len(raw) == 0 {
				return "", fmt.Errorf("queries must be a non-empty array of strings")
			}
			queries := make([]string, len(raw))
			for i, q := range raw {
				s, ok := q.(string)
				if !ok {
					return "", fmt.Errorf("queries[%d] is not a string", i)
				}
				queries[i] = s
			}

			totalBudget := 0
			if v, ok := args["total_budget"].(float64); ok {
				totalBudget = int(v)
			}
			// An omitted budget means the queries share the inherited
			// maximum, not that each gets it.
			if totalBudget <= 0 {
				totalBudget = inheritedBudget(0, st.opts.TokenBudget, st.tokensUsed(), r.subcalls.BudgetInheritance)
			}
			// Integer division; the remainder is dropped, not
			// redistributed.
			perQuery := totalBudget / len(queries)

			answers := make([]string, len(queries))
			sem := make(chan struct{}, st.opts.MaxParallel)
			var wg sync.WaitGroup
			for i, q := range queries {
				wg.Add(1)
				go func(i int, q string) {
					defer wg.Done()
					sem <- struct{}{}
					defer func() { <-sem }()

					// A split that rounds down to nothing cannot fund a
					// sub-call; subOptions would read 0 as "unconstrained".
					if perQuery < 1 {
						answers[i] = "Error: " + (&TokenBudgetExhaustedError{Used: 0, Budget: 0}).Error()
						return
					}
					if err := session.reserve(r.subcalls); err != nil {
						answers[i] = "Error: " + err.Error()
						return
					}
					observability.SubCalls.Inc()

					opts := r.subOptions(st, session, perQuery)
					result, err := r.Completion(ctx, q, "", &opts)
					if err != nil {
						answers[i] = "Error: " + err.Error()
						return
					}
					session.addCost(result.TotalCostUSD)
					answers[i] = result.Response
				}(i, q)
			}
			wg.Wait()

			data, err := json.Marshal(answers)
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
	}

	return []*tools.Tool{subComplete, batchComplete}
}
