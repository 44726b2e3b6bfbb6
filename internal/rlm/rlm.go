// Package rlm implements the recursive completion orchestrator: a
// depth-bounded, budget-bounded think/act loop against a model backend,
// with tool dispatch and delegated sub-completions.
package rlm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iuriikogan/rlm-orchestrator/internal/client"
	"github.com/iuriikogan/rlm-orchestrator/internal/observability"
	"github.com/iuriikogan/rlm-orchestrator/internal/pricing"
	"github.com/iuriikogan/rlm-orchestrator/internal/tools"
	"github.com/iuriikogan/rlm-orchestrator/internal/trajectory"
	"github.com/iuriikogan/rlm-orchestrator/internal/types"
)

// RLM drives completions against one backend using one tool registry.
// Safe for concurrent Completion calls; each call owns its own message
// and event lists.
type RLM struct {
	client   client.Client
	registry *tools.Registry
	log      trajectory.Logger
	defaults types.CompletionOptions
	subcalls SubCallLimits
}

// Option configures an RLM.
type Option func(*RLM)

// WithDefaults replaces the built-in default completion options.
func WithDefaults(opts types.CompletionOptions) Option {
	return func(r *RLM) { r.defaults = opts }
}

// WithTrajectoryLogger sets the sink that receives each completion's
// event list after aggregation.
func WithTrajectoryLogger(log trajectory.Logger) Option {
	return func(r *RLM) { r.log = log }
}

// WithSubCallLimits enables the sub-completion delegation tools with the
// given session limits.
func WithSubCallLimits(limits SubCallLimits) Option {
	return func(r *RLM) { r.subcalls = limits }
}

// New builds an orchestrator. The registry instance is shared with the
// caller and may be mutated between completions.
func New(c client.Client, registry *tools.Registry, opts ...Option) *RLM {
	r := &RLM{
		client:   c,
		registry: registry,
		log:      trajectory.Discard{},
		defaults: types.DefaultOptions(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Registry returns the registry this orchestrator dispatches against.
func (r *RLM) Registry() *tools.Registry {
	return r.registry
}

// state is the accumulator threaded through one completion's recursion.
// The events slice is shared by reference across all depths so the
// guards always see every backend call already made.
type state struct {
	opts         types.CompletionOptions
	trajectoryID uuid.UUID
	events       []types.TrajectoryEvent
	maxDepthSeen int
}

func (s *state) tokensUsed() int {
	total := 0
	for _, ev := range s.events {
		total += ev.InputTokens + ev.OutputTokens
	}
	return total
}

// costUsed sums estimated cost across events. known is false when any
// event's cost is unknown; the sum is then meaningless and must not be
// compared against budgets as if it were complete.
func (s *state) costUsed() (sum float64, known bool) {
	known = true
	for _, ev := range s.events {
		if ev.EstimatedCostUSD == nil {
			known = false
			continue
		}
		sum += *ev.EstimatedCostUSD
	}
	return sum, known
}

func (s *state) toolCallsIssued() int {
	total := 0
	for _, ev := range s.events {
		total += len(ev.ToolCalls)
	}
	return total
}

// Completion runs one full recursive completion. Guard failures and
// backend errors are encoded in the Result (response "Error: ...",
// Success false), never returned as a non-nil error; the error return is
// reserved for caller misuse such as an empty prompt.
func (r *RLM) Completion(ctx context.Context, prompt, system string, opts *types.CompletionOptions) (*types.Result, error) {
	if prompt == "" {
		return nil, fmt.Errorf("prompt must not be empty")
	}

	o := r.defaults
	if opts != nil {
		o = normalizeOptions(*opts, r.defaults)
	}

	trajectoryID := uuid.New()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, time.Duration(o.TimeoutSeconds)*time.Second)
	defer cancel()

	var msgs []types.Message
	if system != "" {
		msgs = append(msgs, types.Message{Role: types.RoleSystem, Content: system})
	}
	msgs = append(msgs, types.Message{Role: types.RoleUser, Content: prompt})

	st := &state{opts: o, trajectoryID: trajectoryID}

	var extra []*tools.Tool
	if r.subcalls.Enabled {
		extra = r.newSubCallTools(st)
	}

	slog.Info("completion started",
		"trajectory_id", trajectoryID,
		"model", r.client.ModelName(),
		"max_depth", o.MaxDepth,
		"token_budget", o.TokenBudget)

	response, err := r.step(ctx, st, 0, msgs, nil, extra)

	elapsed := time.Since(start)
	success := err == nil

	if err != nil {
		err = r.mapGuardError(ctx, err, o, elapsed)
		observability.CompletionErrors.Inc()
		slog.Warn("completion failed",
			"trajectory_id", trajectoryID,
			"error", err,
			"calls", len(st.events))

		// The failure becomes part of the trajectory so auditing sees
		// why the tree stopped where it did.
		st.events = append(st.events, types.TrajectoryEvent{
			TrajectoryID: trajectoryID,
			CallID:       uuid.New(),
			Depth:        st.maxDepthSeen,
			Error:        err.Error(),
		})
		response = "Error: " + err.Error()
	}

	result := r.aggregate(st, response, success, elapsed)

	observability.RecursionDepth.Observe(float64(st.maxDepthSeen))
	observability.CompletionCalls.Observe(float64(result.TotalCalls))
	observability.CompletionDuration.Observe(elapsed.Seconds())
	if result.TotalCostUSD != nil {
		observability.CompletionCost.Observe(*result.TotalCostUSD)
	}

	if logErr := r.log.Append(context.WithoutCancel(ctx), st.events); logErr != nil {
		slog.Error("trajectory logging failed", "trajectory_id", trajectoryID, "error", logErr)
	}

	slog.Info("completion finished",
		"trajectory_id", trajectoryID,
		"success", success,
		"calls", result.TotalCalls,
		"tokens", result.TotalTokens,
		"cost", pricing.FormatCost(result.TotalCostUSD),
		"duration_ms", result.DurationMS)

	return result, nil
}

// step is one recursive think/act cycle. depth is explicit so the depth
// guard is a data check rather than a stack concern; msgs and st.events
// accumulate across the whole recursion tree.
func (r *RLM) step(ctx context.Context, st *state, depth int, msgs []types.Message, parentID *uuid.UUID, extra []*tools.Tool) (string, error) {
	if depth > st.maxDepthSeen {
		st.maxDepthSeen = depth
	}

	// Guards run in a fixed order before any backend call. All are
	// strict >= checks: a budget of N permits usage up to but not
	// including N.
	if depth >= st.opts.MaxDepth {
		return "", &MaxDepthExceededError{Value: depth, Limit: st.opts.MaxDepth, What: "depth"}
	}
	if len(st.events) >= st.opts.MaxSubcalls {
		return "", &MaxDepthExceededError{Value: len(st.events), Limit: st.opts.MaxSubcalls, What: "backend calls"}
	}
	if used := st.tokensUsed(); used >= st.opts.TokenBudget {
		return "", &TokenBudgetExhaustedError{Used: used, Budget: st.opts.TokenBudget}
	}
	if st.opts.CostBudgetUSD != nil {
		if used, known := st.costUsed(); known && used >= *st.opts.CostBudgetUSD {
			return "", &CostBudgetExhaustedError{Used: used, Budget: *st.opts.CostBudgetUSD}
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// Registry tools first, extras appended; dispatch resolves names in
	// the same order.
	toolset := append(r.registry.GetAll(), extra...)

	callStart := time.Now()
	resp, err := r.client.Complete(ctx, msgs, toolset)
	callDuration := time.Since(callStart)
	if err != nil {
		return "", err
	}

	event := types.TrajectoryEvent{
		TrajectoryID:     st.trajectoryID,
		CallID:           uuid.New(),
		ParentCallID:     parentID,
		Depth:            depth,
		Prompt:           msgs[len(msgs)-1].Content,
		Response:         resp.Content,
		ToolCalls:        resp.ToolCalls,
		InputTokens:      resp.InputTokens,
		OutputTokens:     resp.OutputTokens,
		DurationMS:       callDuration.Milliseconds(),
		EstimatedCostUSD: pricing.EstimateCost(r.client.ModelName(), resp.InputTokens, resp.OutputTokens),
	}

	// Appended before any recursion so the next step's guards always
	// account for this call.
	st.events = append(st.events, event)
	eventIdx := len(st.events) - 1

	slog.Debug("backend call",
		"trajectory_id", st.trajectoryID,
		"call_id", event.CallID,
		"depth", depth,
		"tool_calls", len(resp.ToolCalls),
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens)

	if len(resp.ToolCalls) == 0 {
		// The only normal termination path.
		return resp.Content, nil
	}

	results := r.dispatchToolCalls(ctx, st, resp.ToolCalls, extra)
	st.events[eventIdx].ToolResults = results

	msgs = append(msgs, types.Message{
		Role:      types.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})
	for i, res := range results {
		msgs = append(msgs, types.Message{
			Role:       types.RoleTool,
			Content:    res.Content,
			ToolCallID: res.ToolCallID,
			Name:       resp.ToolCalls[i].Name,
		})
	}

	eventID := st.events[eventIdx].CallID
	return r.step(ctx, st, depth+1, msgs, &eventID, extra)
}

func (r *RLM) aggregate(st *state, response string, success bool, elapsed time.Duration) *types.Result {
	result := &types.Result{
		Response:     response,
		TrajectoryID: st.trajectoryID,
		Success:      success,
		TotalCalls:   len(st.events),
		DurationMS:   elapsed.Milliseconds(),
	}
	costKnown := true
	var cost float64
	for _, ev := range st.events {
		result.TotalInputTokens += ev.InputTokens
		result.TotalOutputTokens += ev.OutputTokens
		result.TotalToolCalls += len(ev.ToolCalls)
		if ev.EstimatedCostUSD == nil {
			costKnown = false
		} else {
			cost += *ev.EstimatedCostUSD
		}
	}
	result.TotalTokens = result.TotalInputTokens + result.TotalOutputTokens
	// Any unknown per-event cost poisons the total; a partial sum would
	// understate real spend.
	if costKnown {
		result.TotalCostUSD = &cost
	}
	if st.opts.IncludeTrajectory {
		result.Events = st.events
	}
	return result
}

// mapGuardError rewrites context cancellation into the timeout error the
// caller-facing result should carry. Guard errors pass through.
func (r *RLM) mapGuardError(ctx context.Context, err error, o types.CompletionOptions, elapsed time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) || (errors.Is(err, context.Canceled) && ctx.Err() != nil) {
		return &TimedOutError{ElapsedSeconds: elapsed.Seconds(), TimeoutSeconds: o.TimeoutSeconds}
	}
	return err
}

// normalizeOptions fills zero-valued fields from the defaults so a caller
// can override just the fields they care about.
func normalizeOptions(o, def types.CompletionOptions) types.CompletionOptions {
	if o.MaxDepth == 0 {
		o.MaxDepth = def.MaxDepth
	}
	if o.MaxSubcalls == 0 {
		o.MaxSubcalls = def.MaxSubcalls
	}
	if o.TokenBudget == 0 {
		o.TokenBudget = def.TokenBudget
	}
	if o.ToolBudget == 0 {
		o.ToolBudget = def.ToolBudget
	}
	if o.TimeoutSeconds == 0 {
		o.TimeoutSeconds = def.TimeoutSeconds
	}
	if o.MaxParallel == 0 {
		o.MaxParallel = def.MaxParallel
	}
	return o
}
