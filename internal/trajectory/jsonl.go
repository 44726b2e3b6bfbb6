package trajectory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/iuriikogan/rlm-orchestrator/internal/types"
)

// JSONLLogger appends events as JSON lines to a single file, one event
// per line. Useful for ad-hoc inspection without a database.
type JSONLLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewJSONLLogger opens (or creates) the log file for appending.
func NewJSONLLogger(path string) (*JSONLLogger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trajectory log: %w", err)
	}
	return &JSONLLogger{file: f}, nil
}

func (l *JSONLLogger) Append(_ context.Context, events []types.TrajectoryEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	enc := json.NewEncoder(l.file)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("write trajectory event: %w", err)
		}
	}
	return nil
}

func (l *JSONLLogger) Close() error {
	return l.file.Close()
}
