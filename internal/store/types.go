package store

import (
	"encoding/json"
	"time"

	"github.com/stewardhq/steward/pkg/schema"
)

// ConversationRow is the persisted form of an in-flight clarification
// exchange.
type ConversationRow struct {
	ID         string          `json:"id"`
	Intent     schema.Intent   `json:"intent"`
	UserID     string          `json:"user_id"`
	TurnCount  int             `json:"turn_count"`
	LastQuery  string          `json:"last_query,omitempty"`
	LastResult json.RawMessage `json:"last_supervision_result,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TraceEvent is an immutable entry in the decision trace: one observation
// per node transition, classification, supervision verdict, or gate denial.
type TraceEvent struct {
	ID             int64           `json:"id"`
	TraceID        string          `json:"trace_id"`
	ConversationID string          `json:"conversation_id,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
	Node           string          `json:"node,omitempty"`
	Type           string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	Sequence       int64           `json:"sequence"`
}

// Briefing is a cron-triggered summary request.
type Briefing struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	CronExpression string          `json:"cron_expression"`
	Topics         json.RawMessage `json:"topics,omitempty"`
	Enabled        bool            `json:"enabled"`
	LastRunAt      *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time      `json:"next_run_at,omitempty"`
	LastRunStatus  string          `json:"last_run_status,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// --- Filter and update types ---

// ConversationFilter specifies criteria for listing conversations.
type ConversationFilter struct {
	UserID string        `json:"user_id,omitempty"`
	Intent schema.Intent `json:"intent,omitempty"`
	Limit  int           `json:"limit,omitempty"`
	Offset int           `json:"offset,omitempty"`
}

// TraceFilter specifies criteria for listing trace events.
type TraceFilter struct {
	TraceID        string     `json:"trace_id,omitempty"`
	ConversationID string     `json:"conversation_id,omitempty"`
	UserID         string     `json:"user_id,omitempty"`
	EventType      string     `json:"event_type,omitempty"`
	Node           string     `json:"node,omitempty"`
	Since          *time.Time `json:"since,omitempty"`
	Limit          int        `json:"limit,omitempty"`
}

// BriefingUpdate specifies mutable fields of a briefing.
type BriefingUpdate struct {
	CronExpression string     `json:"cron_expression,omitempty"`
	Enabled        *bool      `json:"enabled,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus  string     `json:"last_run_status,omitempty"`
}

// BriefingFilter specifies criteria for listing briefings.
type BriefingFilter struct {
	UserID  string `json:"user_id,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}
