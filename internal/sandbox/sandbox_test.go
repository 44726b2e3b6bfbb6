package sandbox

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		max       int
		truncated bool
	}{
		{"under limit", "hello", 100, false},
		{"at limit", strings.Repeat("x", 10), 10, false},
		{"over limit", strings.Repeat("x", 11), 10, true},
		{"empty", "", 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, truncated := Truncate(tt.input, tt.max)
			if truncated != tt.truncated {
				t.Errorf("Truncate() truncated = %v, want %v", truncated, tt.truncated)
			}
			if tt.truncated {
				if !strings.HasSuffix(out, truncationNotice) {
					t.Errorf("truncated output missing notice: %q", out)
				}
			} else if out != tt.input {
				t.Errorf("Truncate() modified input: %q", out)
			}
		})
	}
}

func newTestExecutor(t *testing.T) *PythonExecutor {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	p, err := NewPythonExecutor(context.Background(), PythonOptions{})
	if err != nil {
		t.Fatalf("NewPythonExecutor() error = %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPythonExecute(t *testing.T) {
	p := newTestExecutor(t)

	res, err := p.Execute(context.Background(), `print("hello sandbox")`, 0)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Error != "" {
		t.Fatalf("unexpected code error: %s", res.Error)
	}
	if !strings.Contains(res.Output, "hello sandbox") {
		t.Errorf("output = %q, want hello sandbox", res.Output)
	}
}

func TestPythonStatePersists(t *testing.T) {
	p := newTestExecutor(t)

	if _, err := p.Execute(context.Background(), `x = 41`, 0); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	res, err := p.Execute(context.Background(), `print(x + 1)`, 0)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(res.Output, "42") {
		t.Errorf("output = %q, want 42", res.Output)
	}
}

func TestPythonException(t *testing.T) {
	p := newTestExecutor(t)

	res, err := p.Execute(context.Background(), `raise ValueError("boom")`, 0)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(res.Error, "ValueError") || !strings.Contains(res.Error, "boom") {
		t.Errorf("Error = %q, want ValueError: boom", res.Error)
	}
}

func TestPythonTimeout(t *testing.T) {
	p := newTestExecutor(t)

	res, err := p.Execute(context.Background(), `import time; time.sleep(5)`, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(res.Error, "timed out") {
		t.Errorf("Error = %q, want timeout message", res.Error)
	}

	// The restarted interpreter must serve the next call.
	res, err = p.Execute(context.Background(), `print("alive")`, 0)
	if err != nil {
		t.Fatalf("Execute() after timeout error = %v", err)
	}
	if !strings.Contains(res.Output, "alive") {
		t.Errorf("output = %q, want alive", res.Output)
	}
}

func TestPythonContextOps(t *testing.T) {
	p := newTestExecutor(t)

	if err := p.SetContext("answer", 42); err != nil {
		t.Fatalf("SetContext() error = %v", err)
	}

	// Context is visible to executed code.
	res, err := p.Execute(context.Background(), `print(context["answer"])`, 0)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(res.Output, "42") {
		t.Errorf("output = %q, want 42", res.Output)
	}

	// And writes from code are visible back.
	if _, err := p.Execute(context.Background(), `context["doubled"] = context["answer"] * 2`, 0); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	ctxMap, err := p.GetContext()
	if err != nil {
		t.Fatalf("GetContext() error = %v", err)
	}
	if v, ok := ctxMap["doubled"].(float64); !ok || v != 84 {
		t.Errorf("context[doubled] = %v, want 84", ctxMap["doubled"])
	}

	if err := p.ClearContext(); err != nil {
		t.Fatalf("ClearContext() error = %v", err)
	}
	ctxMap, err = p.GetContext()
	if err != nil {
		t.Fatalf("GetContext() error = %v", err)
	}
	if len(ctxMap) != 0 {
		t.Errorf("context after clear = %v, want empty", ctxMap)
	}
}

func TestPythonOutputTruncation(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	p, err := NewPythonExecutor(context.Background(), PythonOptions{MaxOutputBytes: 64})
	if err != nil {
		t.Fatalf("NewPythonExecutor() error = %v", err)
	}
	defer p.Close()

	res, err := p.Execute(context.Background(), `print("y" * 1000)`, 0)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Truncated {
		t.Error("expected Truncated = true")
	}
	if !strings.HasSuffix(res.Output, truncationNotice) {
		t.Errorf("output missing truncation notice: %q", res.Output)
	}
}
