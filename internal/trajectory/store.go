package trajectory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/iuriikogan/rlm-orchestrator/internal/types"
)

// Store is an append-only SQLite store for trajectory events. Events are
// indexed by trajectory so a full completion tree can be read back in
// one query. All public methods are safe for concurrent use (SQLite
// serializes writes).
type Store struct {
	db *sql.DB
}

// NewStore creates a trajectory store at the given database path. The
// schema is created automatically on first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open trajectory database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate trajectory schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trajectory_events (
		call_id        TEXT PRIMARY KEY,
		trajectory_id  TEXT NOT NULL,
		parent_call_id TEXT,
		recorded_at    TEXT NOT NULL,
		depth          INTEGER NOT NULL,
		prompt         TEXT,
		response       TEXT,
		tool_calls     TEXT,
		tool_results   TEXT,
		input_tokens   INTEGER NOT NULL,
		output_tokens  INTEGER NOT NULL,
		duration_ms    INTEGER NOT NULL,
		error          TEXT,
		cost_usd       REAL
	);
	CREATE INDEX IF NOT EXISTS idx_trajectory_events_trajectory ON trajectory_events(trajectory_id);
	CREATE INDEX IF NOT EXISTS idx_trajectory_events_parent ON trajectory_events(parent_call_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append persists a completion's events in one transaction.
func (s *Store) Append(ctx context.Context, events []types.TrajectoryEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin trajectory append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trajectory_events
			(call_id, trajectory_id, parent_call_id, recorded_at, depth, prompt, response,
			 tool_calls, tool_results, input_tokens, output_tokens, duration_ms, error, cost_usd)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare trajectory insert: %w", err)
	}
	defer stmt.Close()

	recordedAt := time.Now().UTC().Format(time.RFC3339)
	for _, ev := range events {
		toolCalls, err := json.Marshal(ev.ToolCalls)
		if err != nil {
			return fmt.Errorf("encode tool calls: %w", err)
		}
		toolResults, err := json.Marshal(ev.ToolResults)
		if err != nil {
			return fmt.Errorf("encode tool results: %w", err)
		}

		var parent any
		if ev.ParentCallID != nil {
			parent = ev.ParentCallID.String()
		}
		var cost any
		if ev.EstimatedCostUSD != nil {
			cost = *ev.EstimatedCostUSD
		}

		if _, err := stmt.ExecContext(ctx,
			ev.CallID.String(),
			ev.TrajectoryID.String(),
			parent,
			recordedAt,
			ev.Depth,
			ev.Prompt,
			ev.Response,
			string(toolCalls),
			string(toolResults),
			ev.InputTokens,
			ev.OutputTokens,
			ev.DurationMS,
			ev.Error,
			cost,
		); err != nil {
			return fmt.Errorf("insert trajectory event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit trajectory append: %w", err)
	}
	return nil
}

// Load reads back every event of one trajectory in insertion order.
func (s *Store) Load(ctx context.Context, trajectoryID uuid.UUID) ([]types.TrajectoryEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT call_id, trajectory_id, parent_call_id, depth, prompt, response,
		        tool_calls, tool_results, input_tokens, output_tokens, duration_ms, error, cost_usd
		 FROM trajectory_events
		 WHERE trajectory_id = ?
		 ORDER BY rowid`,
		trajectoryID.String())
	if err != nil {
		return nil, fmt.Errorf("query trajectory events: %w", err)
	}
	defer rows.Close()

	var events []types.TrajectoryEvent
	for rows.Next() {
		var (
			ev          types.TrajectoryEvent
			callID      string
			trajID      string
			parent      sql.NullString
			toolCalls   string
			toolResults string
			cost        sql.NullFloat64
		)
		if err := rows.Scan(&callID, &trajID, &parent, &ev.Depth, &ev.Prompt, &ev.Response,
			&toolCalls, &toolResults, &ev.InputTokens, &ev.OutputTokens, &ev.DurationMS, &ev.Error, &cost); err != nil {
			return nil, fmt.Errorf("scan trajectory event: %w", err)
		}
		if ev.CallID, err = uuid.Parse(callID); err != nil {
			return nil, fmt.Errorf("parse call id: %w", err)
		}
		if ev.TrajectoryID, err = uuid.Parse(trajID); err != nil {
			return nil, fmt.Errorf("parse trajectory id: %w", err)
		}
		if parent.Valid {
			id, err := uuid.Parse(parent.String)
			if err != nil {
				return nil, fmt.Errorf("parse parent call id: %w", err)
			}
			ev.ParentCallID = &id
		}
		if cost.Valid {
			c := cost.Float64
			ev.EstimatedCostUSD = &c
		}
		if err := json.Unmarshal([]byte(toolCalls), &ev.ToolCalls); err != nil {
			return nil, fmt.Errorf("decode tool calls: %w", err)
		}
		if err := json.Unmarshal([]byte(toolResults), &ev.ToolResults); err != nil {
			return nil, fmt.Errorf("decode tool results: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
