package client

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/iuriikogan/rlm-orchestrator/internal/types"
)

func TestToGeminiContents(t *testing.T) {
	messages := []types.Message{
		{Role: types.RoleSystem, Content: "be terse"},
		{Role: types.RoleUser, Content: "what is 2+3?"},
		{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{
			{ID: "call_1", Name: "add", Arguments: map[string]any{"a": 2.0, "b": 3.0}},
		}},
		{Role: types.RoleTool, ToolCallID: "call_1", Name: "add", Content: "5"},
	}

	contents, system := toGeminiContents(messages)

	require.NotNil(t, system)
	assert.Equal(t, "be terse", system.Parts[0].Text)

	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "what is 2+3?", contents[0].Parts[0].Text)

	assert.Equal(t, "model", contents[1].Role)
	require.NotNil(t, contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "add", contents[1].Parts[0].FunctionCall.Name)
	assert.Equal(t, "call_1", contents[1].Parts[0].FunctionCall.ID)

	assert.Equal(t, "user", contents[2].Role)
	fr := contents[2].Parts[0].FunctionResponse
	require.NotNil(t, fr)
	assert.Equal(t, "call_1", fr.ID)
	assert.Equal(t, "add", fr.Name)
	assert.Equal(t, map[string]any{"output": "5"}, fr.Response)
}

func TestToGeminiContentsNoSystem(t *testing.T) {
	contents, system := toGeminiContents([]types.Message{
		{Role: types.RoleUser, Content: "hi"},
	})
	assert.Nil(t, system)
	assert.Len(t, contents, 1)
}

func TestSchemaToGenai(t *testing.T) {
	spec := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "search text"},
			"limit": map[string]any{"type": "integer"},
			"tags":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"mode":  map[string]any{"type": "string", "enum": []any{"fast", "thorough"}},
		},
		"required": []any{"query"},
	}

	s := schemaToGenai(spec)

	assert.Equal(t, genai.TypeObject, s.Type)
	require.Contains(t, s.Properties, "query")
	assert.Equal(t, genai.TypeString, s.Properties["query"].Type)
	assert.Equal(t, "search text", s.Properties["query"].Description)
	assert.Equal(t, genai.TypeInteger, s.Properties["limit"].Type)
	assert.Equal(t, genai.TypeArray, s.Properties["tags"].Type)
	require.NotNil(t, s.Properties["tags"].Items)
	assert.Equal(t, genai.TypeString, s.Properties["tags"].Items.Type)
	assert.Equal(t, []string{"fast", "thorough"}, s.Properties["mode"].Enum)
	assert.Equal(t, []string{"query"}, s.Required)
}

func TestSchemaToGenaiEmpty(t *testing.T) {
	s := schemaToGenai(nil)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Empty(t, s.Properties)
}

func TestClassifyGeminiError(t *testing.T) {
	tests := []struct {
		msg  string
		want ErrorKind
	}{
		{"API key not valid", ErrorKindAuth},
		{"googleapi: Error 429: quota exceeded", ErrorKindRateLimit},
		{"dial tcp: connection refused", ErrorKindConnection},
		{"Error 400: invalid argument", ErrorKindBadRequest},
		{"something odd happened", ErrorKindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := classifyGeminiError(fmt.Errorf("%s", tt.msg))
			var be *BackendError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, tt.want, be.Kind)
			assert.Equal(t, "gemini", be.Backend)
		})
	}
}

func TestClassifyAnthropicError(t *testing.T) {
	err := classifyAnthropicError(fmt.Errorf("429 rate_limit_error"))
	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, ErrorKindRateLimit, be.Kind)
	assert.True(t, be.Retryable())

	err = classifyAnthropicError(fmt.Errorf("authentication_error: invalid x-api-key"))
	require.True(t, errors.As(err, &be))
	assert.Equal(t, ErrorKindAuth, be.Kind)
	assert.False(t, be.Retryable())
}

func TestBackendErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	be := &BackendError{Backend: "gemini", Kind: ErrorKindConnection, Err: cause}
	assert.ErrorIs(t, be, cause)
	assert.Contains(t, be.Error(), "connection")
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	_, err := NewGeminiClient(t.Context(), "", "")
	require.Error(t, err)
	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, ErrorKindAuth, be.Kind)
}

func TestNewAnthropicClientRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewAnthropicClient("", "")
	require.Error(t, err)
}

func TestNewAnthropicClientDefaults(t *testing.T) {
	c, err := NewAnthropicClient("dummy-key", "")
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-sonnet-20241022", c.ModelName())
}
