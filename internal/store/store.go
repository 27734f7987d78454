// Package store is the persistence layer: durable conversation records,
// the append-only decision trace, and scheduled briefing definitions.
package store

import (
	"context"
	"time"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Conversations
	UpsertConversation(ctx context.Context, row *ConversationRow) error
	GetConversation(ctx context.Context, id string) (*ConversationRow, error)
	ListConversations(ctx context.Context, filter ConversationFilter) ([]*ConversationRow, error)
	DeleteConversation(ctx context.Context, id string) error
	// DeleteExpiredConversations removes rows idle since before the cutoff
	// and returns the deleted conversation IDs.
	DeleteExpiredConversations(ctx context.Context, cutoff time.Time) ([]string, error)

	// Decision trace (append-only)
	AppendTraceEvent(ctx context.Context, event *TraceEvent) error
	GetTrace(ctx context.Context, traceID string, since int64) ([]*TraceEvent, error)
	ListTraceEvents(ctx context.Context, filter TraceFilter) ([]*TraceEvent, error)

	// Scheduled briefings
	CreateBriefing(ctx context.Context, b *Briefing) error
	GetBriefing(ctx context.Context, id string) (*Briefing, error)
	UpdateBriefing(ctx context.Context, id string, update BriefingUpdate) error
	ListBriefings(ctx context.Context, filter BriefingFilter) ([]*Briefing, error)
	DeleteBriefing(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
