package store

import (
	"context"
	"fmt"
	"time"

	"github.com/stewardhq/steward/pkg/schema"
)

// TraceLog provides append-only decision-trace operations on top of a
// LibSQLStore, assigning a monotonically increasing per-trace sequence.
type TraceLog struct {
	store *LibSQLStore
}

// NewTraceLog wraps a LibSQLStore to provide trace-log operations.
func NewTraceLog(s *LibSQLStore) *TraceLog {
	return &TraceLog{store: s}
}

// Append appends an event with the next sequence for its trace. Uses a
// write-intent statement inside the transaction so concurrent appenders
// cannot interleave sequence reads and writes.
func (tl *TraceLog) Append(ctx context.Context, event *TraceEvent) error {
	db := tl.store.DB()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin immediate tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode, BeginTx alone may start a deferred transaction.
	// We use an immediate-mode write to force lock acquisition.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM trace_events WHERE trace_id = ?`, event.TraceID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO trace_events (trace_id, conversation_id, user_id, node, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.TraceID, nullStr(event.ConversationID), nullStr(event.UserID),
		nullStr(event.Node), event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert trace event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit trace event: %w", err)
	}
	return nil
}

// Get returns events for a trace with sequence > since, ordered by sequence ASC.
func (tl *TraceLog) Get(ctx context.Context, traceID string, since int64) ([]*TraceEvent, error) {
	return tl.store.GetTrace(ctx, traceID, since)
}

// NodeVisit is the reconstructed record of one node execution within a trace.
type NodeVisit struct {
	Node        string     `json:"node"`
	Status      string     `json:"status"` // running, completed, failed, retried
	EnteredAt   *time.Time `json:"entered_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms,omitempty"`
	Retries     int        `json:"retries"`
}

// Replay reconstructs the ordered node timeline for a trace from its events.
// Returns an error on sequence gaps, which indicate a lost write.
func (tl *TraceLog) Replay(ctx context.Context, traceID string) ([]*NodeVisit, error) {
	return ReplayTrace(ctx, tl.store, traceID)
}

// ReplayTrace rebuilds the node timeline for a trace from any Store.
func ReplayTrace(ctx context.Context, s Store, traceID string) ([]*NodeVisit, error) {
	events, err := s.GetTrace(ctx, traceID, 0)
	if err != nil {
		return nil, fmt.Errorf("get trace for replay: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in trace %s: expected %d, got %d", traceID, expected, e.Sequence)
		}
	}

	var visits []*NodeVisit
	open := make(map[string]*NodeVisit)

	for _, e := range events {
		if e.Node == "" {
			continue
		}
		switch e.Type {
		case schema.EventNodeEntered:
			ts := e.Timestamp
			v := &NodeVisit{Node: e.Node, Status: "running", EnteredAt: &ts}
			visits = append(visits, v)
			open[e.Node] = v

		case schema.EventNodeCompleted:
			if v, ok := open[e.Node]; ok {
				ts := e.Timestamp
				v.Status = "completed"
				v.CompletedAt = &ts
				if v.EnteredAt != nil {
					v.DurationMs = ts.Sub(*v.EnteredAt).Milliseconds()
				}
				delete(open, e.Node)
			}

		case schema.EventNodeFailed:
			// Stays open: a retry event for this node may still follow.
			if v, ok := open[e.Node]; ok {
				v.Status = "failed"
			}

		case schema.EventNodeRetried:
			if v, ok := open[e.Node]; ok {
				v.Status = "retried"
				v.Retries++
			}
		}
	}

	return visits, nil
}
