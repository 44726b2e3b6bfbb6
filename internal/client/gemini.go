package client

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/iuriikogan/rlm-orchestrator/internal/observability"
	"github.com/iuriikogan/rlm-orchestrator/internal/tools"
	"github.com/iuriikogan/rlm-orchestrator/internal/types"
)

// GeminiClient drives Google's Gemini models through the genai SDK.
type GeminiClient struct {
	client    *genai.Client
	modelName string
}

// NewGeminiClient builds a client. An empty apiKey falls back to the
// GEMINI_API_KEY environment variable; an empty modelName falls back to
// gemini-2.5-flash.
func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, &BackendError{Backend: "gemini", Kind: ErrorKindAuth, Err: fmt.Errorf("GEMINI_API_KEY is required")}
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	return &GeminiClient{client: c, modelName: modelName}, nil
}

func (c *GeminiClient) ModelName() string {
	return c.modelName
}

func (c *GeminiClient) Complete(ctx context.Context, messages []types.Message, toolset []*tools.Tool) (*Response, error) {
	contents, system := toGeminiContents(messages)

	config := &genai.GenerateContentConfig{}
	if system != nil {
		config.SystemInstruction = system
	}
	if len(toolset) > 0 {
		config.Tools = []*genai.Tool{toGeminiTool(toolset)}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.modelName, contents, config)
	if err != nil {
		slog.Error("gemini call failed", "error", err, "model", c.modelName)
		return nil, classifyGeminiError(err)
	}

	out := &Response{}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		observability.TokenUsage.WithLabelValues(c.modelName, "input").Add(float64(out.InputTokens))
		observability.TokenUsage.WithLabelValues(c.modelName, "output").Add(float64(out.OutputTokens))
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		slog.Warn("no response content from model", "model", c.modelName)
		return nil, &BackendError{Backend: "gemini", Kind: ErrorKindUnknown, Err: fmt.Errorf("no response from model")}
	}

	cand := resp.Candidates[0]
	out.FinishReason = string(cand.FinishReason)

	var text strings.Builder
	for _, part := range cand.Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			id := part.FunctionCall.ID
			if id == "" {
				// Gemini often omits call IDs; mint one so tool results
				// can be paired back to their calls.
				id = "call_" + uuid.NewString()
			}
			out.ToolCalls = append(out.ToolCalls, types.ToolCall{
				ID:        id,
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
		}
	}
	out.Content = text.String()

	return out, nil
}

func (c *GeminiClient) Stream(ctx context.Context, messages []types.Message, fn func(chunk string)) error {
	contents, system := toGeminiContents(messages)

	config := &genai.GenerateContentConfig{}
	if system != nil {
		config.SystemInstruction = system
	}

	for resp, err := range c.client.Models.GenerateContentStream(ctx, c.modelName, contents, config) {
		if err != nil {
			return classifyGeminiError(err)
		}
		if resp.UsageMetadata != nil {
			observability.TokenUsage.WithLabelValues(c.modelName, "input").Add(float64(resp.UsageMetadata.PromptTokenCount))
			observability.TokenUsage.WithLabelValues(c.modelName, "output").Add(float64(resp.UsageMetadata.CandidatesTokenCount))
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					fn(part.Text)
				}
			}
		}
	}
	return nil
}

// toGeminiContents converts runtime messages to Gemini contents, pulling
// any system message out as the system instruction.
func toGeminiContents(messages []types.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var system *genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			system = &genai.Content{Parts: []*genai.Part{{Text: msg.Content}}}
		case types.RoleTool:
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.ToolCallID,
						Name:     msg.Name,
						Response: map[string]any{"output": msg.Content},
					},
				}},
			})
		case types.RoleAssistant:
			parts := []*genai.Part{}
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   tc.ID,
						Name: tc.Name,
						Args: tc.Arguments,
					},
				})
			}
			if len(parts) == 0 {
				parts = append(parts, &genai.Part{Text: ""})
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}
	return contents, system
}

func toGeminiTool(toolset []*tools.Tool) *genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(toolset))
	for _, t := range toolset {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schemaToGenai(t.Parameters),
		})
	}
	return &genai.Tool{FunctionDeclarations: decls}
}

// schemaToGenai converts a JSON-schema-shaped map into the genai Schema
// type. Only the subset of keywords tool schemas actually use is mapped.
func schemaToGenai(spec map[string]any) *genai.Schema {
	if len(spec) == 0 {
		return &genai.Schema{Type: genai.TypeObject}
	}

	s := &genai.Schema{}
	if typ, ok := spec["type"].(string); ok {
		switch typ {
		case "object":
			s.Type = genai.TypeObject
		case "string":
			s.Type = genai.TypeString
		case "number":
			s.Type = genai.TypeNumber
		case "integer":
			s.Type = genai.TypeInteger
		case "boolean":
			s.Type = genai.TypeBoolean
		case "array":
			s.Type = genai.TypeArray
		}
	}
	if desc, ok := spec["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := spec["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, sub := range props {
			if subMap, ok := sub.(map[string]any); ok {
				s.Properties[name] = schemaToGenai(subMap)
			}
		}
	}
	if req, ok := spec["required"].([]any); ok {
		for _, r := range req {
			if name, ok := r.(string); ok {
				s.Required = append(s.Required, name)
			}
		}
	}
	if req, ok := spec["required"].([]string); ok {
		s.Required = append(s.Required, req...)
	}
	if items, ok := spec["items"].(map[string]any); ok {
		s.Items = schemaToGenai(items)
	}
	if enum, ok := spec["enum"].([]any); ok {
		for _, e := range enum {
			if v, ok := e.(string); ok {
				s.Enum = append(s.Enum, v)
			}
		}
	}
	return s
}

// classifyGeminiError sorts SDK failures into retryable and fatal kinds
// based on the error text, since the SDK does not expose stable sentinel
// errors for these cases.
func classifyGeminiError(err error) error {
	msg := strings.ToLower(err.Error())
	kind := ErrorKindUnknown
	switch {
	case strings.Contains(msg, "api key") || strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "permission"):
		kind = ErrorKindAuth
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate") || strings.Contains(msg, "quota") || strings.Contains(msg, "resource_exhausted"):
		kind = ErrorKindRateLimit
	case strings.Contains(msg, "connection") || strings.Contains(msg, "timeout") || strings.Contains(msg, "unavailable") || strings.Contains(msg, "dial"):
		kind = ErrorKindConnection
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid"):
		kind = ErrorKindBadRequest
	}
	return &BackendError{Backend: "gemini", Kind: kind, Err: err}
}
