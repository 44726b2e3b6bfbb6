package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/iuriikogan/rlm-orchestrator/internal/observability"
	"github.com/iuriikogan/rlm-orchestrator/internal/tools"
	"github.com/iuriikogan/rlm-orchestrator/internal/types"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicClient drives Claude models through the official SDK.
type AnthropicClient struct {
	messages  *sdk.MessageService
	modelName string
	maxTokens int64
}

// NewAnthropicClient builds a client. An empty apiKey falls back to the
// ANTHROPIC_API_KEY environment variable.
func NewAnthropicClient(apiKey, modelName string) (*AnthropicClient, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, &BackendError{Backend: "anthropic", Kind: ErrorKindAuth, Err: fmt.Errorf("ANTHROPIC_API_KEY is required")}
	}
	if modelName == "" {
		modelName = "claude-3-5-sonnet-20241022"
	}

	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicClient{
		messages:  &ac.Messages,
		modelName: modelName,
		maxTokens: defaultAnthropicMaxTokens,
	}, nil
}

func (c *AnthropicClient) ModelName() string {
	return c.modelName
}

func (c *AnthropicClient) Complete(ctx context.Context, messages []types.Message, toolset []*tools.Tool) (*Response, error) {
	params := sdk.MessageNewParams{
		MaxTokens: c.maxTokens,
		Model:     sdk.Model(c.modelName),
	}

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			params.System = append(params.System, sdk.TextBlockParam{Text: msg.Content})
		case types.RoleAssistant:
			var blocks []sdk.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(blocks...))
		case types.RoleTool:
			params.Messages = append(params.Messages,
				sdk.NewUserMessage(sdk.NewToolResultBlock(msg.ToolCallID, msg.Content, false)))
		default:
			params.Messages = append(params.Messages, sdk.NewUserMessage(sdk.NewTextBlock(msg.Content)))
		}
	}

	for _, t := range toolset {
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: t.Parameters}, t.Name)
		if u.OfTool != nil && t.Description != "" {
			u.OfTool.Description = sdk.String(t.Description)
		}
		params.Tools = append(params.Tools, u)
	}

	msg, err := c.messages.New(ctx, params)
	if err != nil {
		slog.Error("anthropic call failed", "error", err, "model", c.modelName)
		return nil, classifyAnthropicError(err)
	}

	out := &Response{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		FinishReason: string(msg.StopReason),
	}
	observability.TokenUsage.WithLabelValues(c.modelName, "input").Add(float64(out.InputTokens))
	observability.TokenUsage.WithLabelValues(c.modelName, "output").Add(float64(out.OutputTokens))

	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			var args map[string]any
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					return nil, &BackendError{Backend: "anthropic", Kind: ErrorKindBadRequest,
						Err: fmt.Errorf("decode tool input for %s: %w", block.Name, err)}
				}
			}
			out.ToolCalls = append(out.ToolCalls, types.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	out.Content = text.String()

	return out, nil
}

func (c *AnthropicClient) Stream(ctx context.Context, messages []types.Message, fn func(chunk string)) error {
	params := sdk.MessageNewParams{
		MaxTokens: c.maxTokens,
		Model:     sdk.Model(c.modelName),
	}
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			params.System = append(params.System, sdk.TextBlockParam{Text: msg.Content})
		case types.RoleAssistant:
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(sdk.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, sdk.NewUserMessage(sdk.NewTextBlock(msg.Content)))
		}
	}

	stream := c.messages.NewStreaming(ctx, params)
	for stream.Next() {
		switch ev := stream.Current().AsAny().(type) {
		case sdk.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(sdk.TextDelta); ok && delta.Text != "" {
				fn(delta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return classifyAnthropicError(err)
	}
	return nil
}

func classifyAnthropicError(err error) error {
	msg := strings.ToLower(err.Error())
	kind := ErrorKindUnknown
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "authentication") || strings.Contains(msg, "api key"):
		kind = ErrorKindAuth
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate") || strings.Contains(msg, "overloaded"):
		kind = ErrorKindRateLimit
	case strings.Contains(msg, "connection") || strings.Contains(msg, "timeout") || strings.Contains(msg, "dial") || strings.Contains(msg, "503"):
		kind = ErrorKindConnection
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid"):
		kind = ErrorKindBadRequest
	}
	return &BackendError{Backend: "anthropic", Kind: kind, Err: err}
}
