package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// wrapperScript is a minimal Python loop that keeps interpreter state
// between executions. Each request is one JSON line on stdin, each reply
// one JSON line on stdout. The "context" dict is the persistent variable
// namespace exposed to user code.
const wrapperScript = `
import sys
import json
from io import StringIO

_globals = {"context": {}}

def _jsonable(d):
    out = {}
    for k, v in d.items():
        try:
            json.dumps(v)
            out[k] = v
        except (TypeError, ValueError):
            out[k] = repr(v)
    return out

while True:
    line = sys.stdin.readline()
    if not line:
        break
    try:
        req = json.loads(line)
        op = req.get("op", "exec")
        if op == "get_context":
            print(json.dumps({"context": _jsonable(_globals["context"]), "done": True}))
        elif op == "set_context":
            _globals["context"][req["key"]] = req["value"]
            print(json.dumps({"done": True}))
        elif op == "clear_context":
            _globals["context"] = {}
            print(json.dumps({"done": True}))
        else:
            new_stdout, new_stderr = StringIO(), StringIO()
            old_stdout, old_stderr = sys.stdout, sys.stderr
            sys.stdout, sys.stderr = new_stdout, new_stderr
            error = None
            try:
                exec(req["code"], _globals)
            except BaseException as e:
                error = f"{type(e).__name__}: {e}"
            finally:
                sys.stdout, sys.stderr = old_stdout, old_stderr
            out = new_stdout.getvalue()
            if new_stderr.getvalue():
                out += new_stderr.getvalue()
            print(json.dumps({"output": out, "error": error, "done": True}))
        sys.stdout.flush()
    except Exception as e:
        print(json.dumps({"error": f"protocol error: {e}", "done": True}))
        sys.stdout.flush()
`

// PythonExecutor runs code in a long-lived python3 subprocess. Variables
// assigned by one execution are visible to later ones. Not safe for
// concurrent Execute calls from multiple completions; each completion
// should own its executor or serialize access.
type PythonExecutor struct {
	mu             sync.Mutex
	cmd            *exec.Cmd
	stdin          io.WriteCloser
	stdout         *bufio.Reader
	tempDir        string
	pythonBin      string
	defaultTimeout time.Duration
	maxOutput      int
}

// PythonOptions configures a PythonExecutor.
type PythonOptions struct {
	PythonBin      string        // interpreter binary, default "python3"
	DefaultTimeout time.Duration // per-call ceiling when Execute gets zero
	MaxOutputBytes int           // output cap, default MaxOutputBytes
}

// NewPythonExecutor starts the interpreter subprocess.
func NewPythonExecutor(ctx context.Context, opts PythonOptions) (*PythonExecutor, error) {
	if opts.PythonBin == "" {
		opts.PythonBin = "python3"
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = MaxOutputBytes
	}

	p := &PythonExecutor{
		pythonBin:      opts.PythonBin,
		defaultTimeout: opts.DefaultTimeout,
		maxOutput:      opts.MaxOutputBytes,
	}
	if err := p.start(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PythonExecutor) start(ctx context.Context) error {
	tempDir, err := os.MkdirTemp("", "rlm-sandbox-*")
	if err != nil {
		return &ExecutionError{Op: "start", Err: err}
	}

	wrapperPath := tempDir + "/wrapper.py"
	if err := os.WriteFile(wrapperPath, []byte(wrapperScript), 0o644); err != nil {
		os.RemoveAll(tempDir)
		return &ExecutionError{Op: "start", Err: err}
	}

	cmd := exec.CommandContext(ctx, p.pythonBin, wrapperPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		os.RemoveAll(tempDir)
		return &ExecutionError{Op: "start", Err: err}
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		os.RemoveAll(tempDir)
		return &ExecutionError{Op: "start", Err: err}
	}
	if err := cmd.Start(); err != nil {
		os.RemoveAll(tempDir)
		return &ExecutionError{Op: "start", Err: err}
	}

	p.cmd = cmd
	p.stdin = stdin
	p.stdout = bufio.NewReader(stdoutPipe)
	p.tempDir = tempDir
	return nil
}

type wrapperReply struct {
	Output  string         `json:"output"`
	Error   string         `json:"error"`
	Context map[string]any `json:"context"`
	Done    bool           `json:"done"`
}

// roundTrip sends one request line and waits for the reply, bounded by
// timeout. A timed-out interpreter is killed and restarted so the next
// call gets a clean process (losing the persistent namespace).
func (p *PythonExecutor) roundTrip(req map[string]any, timeout time.Duration) (*wrapperReply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil {
		return nil, &ExecutionError{Op: "roundtrip", Err: fmt.Errorf("executor is closed")}
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, &ExecutionError{Op: "roundtrip", Err: err}
	}
	if _, err := p.stdin.Write(append(data, '\n')); err != nil {
		return nil, &ExecutionError{Op: "roundtrip", Err: err}
	}

	type lineResult struct {
		line string
		err  error
	}
	ch := make(chan lineResult, 1)
	go func() {
		line, err := p.stdout.ReadString('\n')
		ch <- lineResult{line: line, err: err}
	}()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, &ExecutionError{Op: "roundtrip", Err: res.err}
		}
		var reply wrapperReply
		if err := json.Unmarshal([]byte(res.line), &reply); err != nil {
			return nil, &ExecutionError{Op: "roundtrip", Err: err}
		}
		return &reply, nil
	case <-timer:
		slog.Warn("sandbox execution timed out, restarting interpreter", "timeout", timeout)
		p.killLocked()
		if err := p.start(context.Background()); err != nil {
			return nil, err
		}
		return nil, &timeoutError{timeout: timeout}
	}
}

type timeoutError struct {
	timeout time.Duration
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("execution timed out after %s", e.timeout)
}

// Execute runs code in the interpreter. Code-level errors (exceptions,
// timeouts) are reported in Result.Error; only environment failures return
// a non-nil error.
func (p *PythonExecutor) Execute(ctx context.Context, code string, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = p.defaultTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	start := time.Now()
	reply, err := p.roundTrip(map[string]any{"op": "exec", "code": code}, timeout)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		var te *timeoutError
		if errors.As(err, &te) {
			return &Result{Error: te.Error(), ExecutionTimeMS: elapsed}, nil
		}
		return nil, err
	}

	output, truncated := Truncate(reply.Output, p.maxOutput)
	return &Result{
		Output:          output,
		Error:           reply.Error,
		Truncated:       truncated,
		ExecutionTimeMS: elapsed,
	}, nil
}

// GetContext returns a copy of the persistent variable namespace. Values
// that are not JSON-serializable come back as their repr strings.
func (p *PythonExecutor) GetContext() (map[string]any, error) {
	reply, err := p.roundTrip(map[string]any{"op": "get_context"}, p.defaultTimeout)
	if err != nil {
		return nil, err
	}
	if reply.Context == nil {
		return map[string]any{}, nil
	}
	return reply.Context, nil
}

// SetContext stores a value in the persistent namespace.
func (p *PythonExecutor) SetContext(key string, value any) error {
	_, err := p.roundTrip(map[string]any{"op": "set_context", "key": key, "value": value}, p.defaultTimeout)
	return err
}

// ClearContext empties the persistent namespace.
func (p *PythonExecutor) ClearContext() error {
	_, err := p.roundTrip(map[string]any{"op": "clear_context"}, p.defaultTimeout)
	return err
}

// Close terminates the interpreter and removes its temp files.
func (p *PythonExecutor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killLocked()
	return nil
}

func (p *PythonExecutor) killLocked() {
	if p.stdin != nil {
		p.stdin.Close()
		p.stdin = nil
	}
	if p.cmd != nil && p.cmd.Process != nil {
		p.cmd.Process.Kill()
		p.cmd.Wait()
	}
	p.cmd = nil
	if p.tempDir != "" {
		os.RemoveAll(p.tempDir)
		p.tempDir = ""
	}
}
