// Package sandbox runs model-generated code under time and output limits.
// The orchestrator consumes it only through the Executor contract; the
// concrete environment (local subprocess, container) is an implementation
// detail behind it.
package sandbox

import (
	"context"
	"fmt"
	"time"
)

// Result is the outcome of one code execution.
type Result struct {
	Output          string `json:"output"`
	Error           string `json:"error,omitempty"`
	Truncated       bool   `json:"truncated"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
}

// Executor executes code with a persistent variable namespace shared across
// calls within one instance. Execute returns a transport error only when
// the environment itself is broken; code-level failures are reported in
// Result.Error.
type Executor interface {
	Execute(ctx context.Context, code string, timeout time.Duration) (*Result, error)
	GetContext() (map[string]any, error)
	SetContext(key string, value any) error
	ClearContext() error
	Close() error
}

// ExecutionError reports a sandbox-level failure (startup, transport,
// protocol), as opposed to an error raised by the executed code.
type ExecutionError struct {
	Op  string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("sandbox %s: %v", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
