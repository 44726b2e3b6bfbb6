// Package trajectory persists the event trees produced by completions.
package trajectory

import (
	"context"

	"github.com/iuriikogan/rlm-orchestrator/internal/types"
)

// Logger receives a completion's full event list after aggregation. The
// events are read-only at this point; implementations must not mutate
// them.
type Logger interface {
	Append(ctx context.Context, events []types.TrajectoryEvent) error
}

// Discard drops every event. The default when no store is configured.
type Discard struct{}

func (Discard) Append(context.Context, []types.TrajectoryEvent) error { return nil }
