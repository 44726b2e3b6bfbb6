// Package client abstracts the model backends. Each backend translates
// between the runtime's message/tool types and its provider SDK.
package client

import (
	"context"
	"fmt"

	"github.com/iuriikogan/rlm-orchestrator/internal/tools"
	"github.com/iuriikogan/rlm-orchestrator/internal/types"
)

// Response is one model turn: assistant text plus any tool calls the
// model requested, with token usage for budget accounting.
type Response struct {
	Content      string
	ToolCalls    []types.ToolCall
	InputTokens  int
	OutputTokens int
	FinishReason string
}

// Client is a model backend.
type Client interface {
	// Complete runs one non-streaming turn. The tool list may be empty.
	Complete(ctx context.Context, messages []types.Message, toolset []*tools.Tool) (*Response, error)

	// Stream runs a plain text completion, invoking fn once per chunk.
	// Tool calling is not available on the streaming path.
	Stream(ctx context.Context, messages []types.Message, fn func(chunk string)) error

	// ModelName reports the configured model identifier, used for
	// pricing lookups and metrics labels.
	ModelName() string
}

// ErrorKind classifies backend failures so callers can decide whether a
// retry could help.
type ErrorKind int

const (
	ErrorKindUnknown ErrorKind = iota
	ErrorKindAuth
	ErrorKindRateLimit
	ErrorKindConnection
	ErrorKindBadRequest
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindAuth:
		return "auth"
	case ErrorKindRateLimit:
		return "rate_limit"
	case ErrorKindConnection:
		return "connection"
	case ErrorKindBadRequest:
		return "bad_request"
	default:
		return "unknown"
	}
}

// BackendError wraps a provider SDK failure with its classification.
type BackendError struct {
	Backend string
	Kind    ErrorKind
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend error (%s): %v", e.Backend, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure class can clear on its own.
func (e *BackendError) Retryable() bool {
	return e.Kind == ErrorKindRateLimit || e.Kind == ErrorKindConnection
}
