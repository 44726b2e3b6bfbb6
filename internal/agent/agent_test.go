package agent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iuriikogan/rlm-orchestrator/internal/client"
	"github.com/iuriikogan/rlm-orchestrator/internal/rlm"
	"github.com/iuriikogan/rlm-orchestrator/internal/tools"
	"github.com/iuriikogan/rlm-orchestrator/internal/types"
)

func TestConfigClamp(t *testing.T) {
	cfg := Config{
		MaxIterations:  500,
		MaxDepth:       20,
		CostLimitUSD:   100,
		TimeoutSeconds: 7200,
	}.Clamp()

	assert.Equal(t, AbsoluteMaxIterations, cfg.MaxIterations)
	assert.Equal(t, AbsoluteMaxDepth, cfg.MaxDepth)
	assert.Equal(t, AbsoluteMaxCost, cfg.CostLimitUSD)
	assert.Equal(t, AbsoluteMaxTimeout, cfg.TimeoutSeconds)

	// Values under the ceilings pass through.
	cfg = DefaultConfig().Clamp()
	assert.Equal(t, 10, cfg.MaxIterations)
	assert.Equal(t, 3, cfg.MaxDepth)
}

func TestCheckIterationAllowed(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name       string
		iteration  int
		cost       float64
		tokens     int
		allowed    bool
		reasonPart string
	}{
		{"fresh run", 0, 0, 0, true, ""},
		{"under limits", 5, 1.0, 10000, true, ""},
		{"iteration limit", 10, 0, 0, false, "iteration limit"},
		{"cost limit exact", 3, 2.0, 0, false, "cost limit"},
		{"token budget exact", 3, 0, 50000, false, "token budget"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, reason := CheckIterationAllowed(tt.iteration, cfg, tt.cost, tt.tokens)
			assert.Equal(t, tt.allowed, allowed)
			if !tt.allowed {
				assert.Contains(t, reason, tt.reasonPart)
			}
		})
	}
}

func TestBuildIterationPrompt(t *testing.T) {
	prompt := buildIterationPrompt("count the rivers", 0, 10, nil, 48000)
	assert.Contains(t, prompt, "Task: count the rivers")
	assert.Contains(t, prompt, "Iteration: 1/10")
	assert.Contains(t, prompt, "48000")
	assert.NotContains(t, prompt, "FINAL ITERATION")

	actions := []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7"}
	prompt = buildIterationPrompt("task", 9, 10, actions, 100)
	assert.Contains(t, prompt, "FINAL ITERATION")
	// Only the last five actions are included.
	assert.NotContains(t, prompt, "a2")
	assert.Contains(t, prompt, "a7")
}

func TestTerminalStateFirstWins(t *testing.T) {
	state := &State{}
	state.terminate("first", "final")
	state.terminate("second", "final_var")

	terminal, value, kind := state.Terminal()
	assert.True(t, terminal)
	assert.Equal(t, "first", value)
	assert.Equal(t, "final", kind)
}

func TestFinalVarWithoutSandbox(t *testing.T) {
	state := &State{}
	finalVar := NewTerminalTools(state, nil)[1]

	_, err := finalVar.Handler(context.Background(), map[string]any{"variable_name": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sandbox")
}

// scriptedClient replays responses in order; used to drive the runner
// through whole iterations.
type scriptedClient struct {
	mu        sync.Mutex
	responses []*client.Response
	calls     int
}

func (c *scriptedClient) Complete(ctx context.Context, _ []types.Message, _ []*tools.Tool) (*client.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.calls
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	c.calls++
	return c.responses[idx], nil
}

func (c *scriptedClient) Stream(context.Context, []types.Message, func(string)) error { return nil }
func (c *scriptedClient) ModelName() string                                           { return "gpt-4o" }

func TestRunnerFinalTermination(t *testing.T) {
	mock := &scriptedClient{responses: []*client.Response{
		{ToolCalls: []types.ToolCall{
			{ID: "c1", Name: "FINAL", Arguments: map[string]any{"answer": "42"}},
		}, InputTokens: 10, OutputTokens: 5},
		{Content: "ack", InputTokens: 5, OutputTokens: 2},
	}}
	orch := rlm.New(mock, tools.NewRegistry())
	runner := NewRunner(orch, nil, DefaultConfig())

	result := runner.Run(context.Background(), "answer everything")

	assert.True(t, result.Success())
	assert.Equal(t, "42", result.Answer)
	assert.Equal(t, SourceFinal, result.AnswerSource)
	assert.Equal(t, 1, result.Iterations)
	assert.False(t, result.ForcedTermination)
	require.NotEmpty(t, result.IterationSummaries)
	assert.Equal(t, 1, result.IterationSummaries[0].ToolCalls)
}

func TestRunnerForcedTermination(t *testing.T) {
	// The model never calls FINAL; the iteration limit forces an exit.
	mock := &scriptedClient{responses: []*client.Response{
		{Content: "still thinking", InputTokens: 5, OutputTokens: 5},
	}}
	orch := rlm.New(mock, tools.NewRegistry())

	cfg := DefaultConfig()
	cfg.MaxIterations = 3
	runner := NewRunner(orch, nil, cfg)

	result := runner.Run(context.Background(), "impossible task")

	assert.False(t, result.Success())
	assert.True(t, result.ForcedTermination)
	assert.Equal(t, SourceForced, result.AnswerSource)
	assert.Equal(t, 3, result.Iterations)
	assert.Contains(t, result.Answer, "still thinking")
}

func TestRunnerTokenGuardrailStops(t *testing.T) {
	mock := &scriptedClient{responses: []*client.Response{
		{Content: "big turn", InputTokens: 40000, OutputTokens: 20000},
	}}
	orch := rlm.New(mock, tools.NewRegistry())

	cfg := DefaultConfig() // token budget 50000
	runner := NewRunner(orch, nil, cfg)

	result := runner.Run(context.Background(), "burn tokens")

	assert.True(t, result.ForcedTermination)
	assert.Equal(t, 1, len(result.IterationSummaries))
	assert.GreaterOrEqual(t, result.TotalTokens, 50000)
}

func TestRunnerUnregistersTerminalTools(t *testing.T) {
	mock := &scriptedClient{responses: []*client.Response{
		{ToolCalls: []types.ToolCall{
			{ID: "c1", Name: "FINAL", Arguments: map[string]any{"answer": "done"}},
		}, InputTokens: 1, OutputTokens: 1},
	}}
	registry := tools.NewRegistry()
	orch := rlm.New(mock, registry)
	runner := NewRunner(orch, nil, DefaultConfig())

	runner.Run(context.Background(), "task")

	assert.False(t, registry.Has("FINAL"))
	assert.False(t, registry.Has("FINAL_VAR"))
}

func TestRunnerCancel(t *testing.T) {
	mock := &scriptedClient{responses: []*client.Response{
		{Content: "looping", InputTokens: 1, OutputTokens: 1},
	}}
	orch := rlm.New(mock, tools.NewRegistry())
	runner := NewRunner(orch, nil, DefaultConfig())

	done := make(chan *Result, 1)
	go func() {
		done <- runner.Run(context.Background(), "task")
	}()
	time.Sleep(10 * time.Millisecond)
	runner.Cancel()

	select {
	case res := <-done:
		if res.AnswerSource == SourceError {
			assert.Contains(t, res.Answer, "cancelled")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

func TestSummarizeIteration(t *testing.T) {
	result := &types.Result{
		Response:       "partial",
		TotalToolCalls: 2,
		Events: []types.TrajectoryEvent{
			{ToolCalls: []types.ToolCall{{Name: "add"}, {Name: "execute_code"}}},
		},
	}
	s := summarizeIteration(0, result)
	assert.Contains(t, s, "[Iter 1]")
	assert.Contains(t, s, "add")
	assert.Contains(t, s, "execute_code")
	assert.Contains(t, s, "partial")

	s = summarizeIteration(4, &types.Result{Response: "just text"})
	assert.True(t, strings.HasPrefix(s, "[Iter 5] Response:"))
}
