package tools

import (
	"fmt"
	"strings"
)

// NotFoundError reports a tool call naming a tool that is not registered.
type NotFoundError struct {
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool %q not found (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// ValidationError reports tool-call arguments that do not satisfy the
// tool's parameter schema.
type ValidationError struct {
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q: %s", e.Name, e.Reason)
}

// ExecutionError reports a tool handler failure.
type ExecutionError struct {
	Name string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Name, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
