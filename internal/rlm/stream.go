package rlm

import (
	"context"
	"time"

	"github.com/iuriikogan/rlm-orchestrator/internal/pricing"
	"github.com/iuriikogan/rlm-orchestrator/internal/types"
)

// Stream runs a plain streaming completion. No tool calling and no
// recursion; the only guards are a pre-flight cost estimate and the
// wall-clock timeout.
func (r *RLM) Stream(ctx context.Context, prompt, system string, opts types.StreamOptions, fn func(chunk string)) error {
	if opts.CostBudgetUSD != nil {
		// Rough input-size estimate at four characters per token. This
		// only rejects requests that are already over budget before any
		// output is produced.
		estTokens := (len(prompt) + len(system)) / 4
		if cost := pricing.EstimateCost(r.client.ModelName(), estTokens, 0); cost != nil && *cost >= *opts.CostBudgetUSD {
			return &CostBudgetExhaustedError{Used: *cost, Budget: *opts.CostBudgetUSD}
		}
	}

	timeout := opts.TimeoutSeconds
	if timeout <= 0 {
		timeout = types.DefaultOptions().TimeoutSeconds
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	var msgs []types.Message
	if system != "" {
		msgs = append(msgs, types.Message{Role: types.RoleSystem, Content: system})
	}
	msgs = append(msgs, types.Message{Role: types.RoleUser, Content: prompt})

	return r.client.Stream(ctx, msgs, fn)
}
