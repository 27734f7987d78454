package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/stewardhq/steward/internal/store"
	"github.com/stewardhq/steward/pkg/schema"
)

// DurableConversationStore keeps conversation records in the persistence
// layer, so in-flight clarification exchanges survive restarts and are
// visible to the conversation listing surface.
type DurableConversationStore struct {
	store store.Store
	ttl   time.Duration
	clock func() time.Time
}

// NewDurableConversationStore wraps a store. A non-positive TTL falls back
// to 30 minutes.
func NewDurableConversationStore(s store.Store, ttl time.Duration) *DurableConversationStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &DurableConversationStore{store: s, ttl: ttl, clock: time.Now}
}

func (d *DurableConversationStore) Get(ctx context.Context, conversationID string) (*ConversationRecord, bool, error) {
	row, err := d.store.GetConversation(ctx, conversationID)
	if err != nil {
		var serr *schema.StewardError
		if errors.As(err, &serr) && serr.Code == schema.ErrCodeNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}

	rec := &ConversationRecord{
		ConversationID: row.ID,
		Intent:         row.Intent,
		UserID:         row.UserID,
		StartedAt:      row.StartedAt,
		UpdatedAt:      row.UpdatedAt,
		TurnCount:      row.TurnCount,
		LastQuery:      row.LastQuery,
	}
	if len(row.LastResult) > 0 {
		var res schema.SupervisionResult
		if err := json.Unmarshal(row.LastResult, &res); err == nil {
			rec.LastResult = &res
		}
	}
	return rec, true, nil
}

func (d *DurableConversationStore) Upsert(ctx context.Context, record *ConversationRecord) error {
	if record == nil || record.ConversationID == "" {
		return schema.NewError(schema.ErrCodeValidation, "conversation record requires an id")
	}

	row := &store.ConversationRow{
		ID:        record.ConversationID,
		Intent:    record.Intent,
		UserID:    record.UserID,
		TurnCount: record.TurnCount,
		LastQuery: record.LastQuery,
		StartedAt: record.StartedAt,
		UpdatedAt: d.clock().UTC(),
	}
	if record.LastResult != nil {
		payload, err := json.Marshal(record.LastResult)
		if err != nil {
			return schema.NewError(schema.ErrCodeValidation, "encode supervision result").WithCause(err)
		}
		row.LastResult = payload
	}
	return d.store.UpsertConversation(ctx, row)
}

func (d *DurableConversationStore) Delete(ctx context.Context, conversationID string) error {
	return d.store.DeleteConversation(ctx, conversationID)
}

func (d *DurableConversationStore) EvictExpired(ctx context.Context) ([]string, error) {
	cutoff := d.clock().UTC().Add(-d.ttl)
	return d.store.DeleteExpiredConversations(ctx, cutoff)
}

func (d *DurableConversationStore) Len(ctx context.Context) (int, error) {
	rows, err := d.store.ListConversations(ctx, store.ConversationFilter{})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
