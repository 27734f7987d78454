package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/internal/store"
	"github.com/stewardhq/steward/pkg/schema"
)

func TestDurableConversationStoreRoundTrip(t *testing.T) {
	d := NewDurableConversationStore(store.NewMemoryStore(), time.Hour)
	ctx := context.Background()

	record := &ConversationRecord{
		ConversationID: "conv-1",
		Intent:         schema.IntentTodo,
		UserID:         "u1",
		StartedAt:      time.Now().UTC(),
		TurnCount:      2,
		LastQuery:      "it's due friday",
		LastResult: &schema.SupervisionResult{
			OperationType:        "create",
			ClarificationMessage: "Which priority?",
			MissingContext:       []string{"priority"},
			Confidence:           0.8,
		},
	}
	require.NoError(t, d.Upsert(ctx, record))

	got, found, err := d.Get(ctx, "conv-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, schema.IntentTodo, got.Intent)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, 2, got.TurnCount)
	assert.Equal(t, "it's due friday", got.LastQuery)
	require.NotNil(t, got.LastResult)
	assert.Equal(t, "Which priority?", got.LastResult.ClarificationMessage)
	assert.Equal(t, []string{"priority"}, got.LastResult.MissingContext)

	require.NoError(t, d.Delete(ctx, "conv-1"))
	_, found, err = d.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDurableConversationStoreMissingIsNotAnError(t *testing.T) {
	d := NewDurableConversationStore(store.NewMemoryStore(), time.Hour)

	_, found, err := d.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting an unknown conversation is a no-op.
	require.NoError(t, d.Delete(context.Background(), "nope"))
}

func TestDurableConversationStoreRejectsEmptyID(t *testing.T) {
	d := NewDurableConversationStore(store.NewMemoryStore(), time.Hour)
	assert.Error(t, d.Upsert(context.Background(), &ConversationRecord{}))
	assert.Error(t, d.Upsert(context.Background(), nil))
}

func TestDurableConversationStoreEvictsIdleRecords(t *testing.T) {
	st := store.NewMemoryStore()
	d := NewDurableConversationStore(st, 30*time.Minute)
	ctx := context.Background()

	require.NoError(t, st.UpsertConversation(ctx, &store.ConversationRow{
		ID:        "conv-stale",
		Intent:    schema.IntentTodo,
		UserID:    "u1",
		UpdatedAt: time.Now().UTC().Add(-time.Hour),
	}))
	require.NoError(t, d.Upsert(ctx, &ConversationRecord{
		ConversationID: "conv-fresh",
		Intent:         schema.IntentTodo,
		UserID:         "u1",
	}))

	evicted, err := d.EvictExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"conv-stale"}, evicted)

	n, err := d.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// A clarification turn recorded through the orchestrator must land in the
// persistence layer, where the conversation listing surface reads it.
func TestOrchestratorPersistsTurnsThroughDurableStore(t *testing.T) {
	st := store.NewMemoryStore()
	o := NewOrchestrator(NewDurableConversationStore(st, time.Hour), nil, nil)
	require.NoError(t, o.Register(&scriptedSupervisor{
		wt:      schema.IntentTodo,
		results: []schema.SupervisionResult{notReady("When is it due?"), ready()},
	}))
	ctx := context.Background()

	first := o.Supervise(ctx, schema.IntentTodo, Request{Query: "add my essay", UserID: "u1"})
	require.False(t, first.ReadyToExecute)
	require.NotEmpty(t, first.ConversationID)

	rows, err := st.ListConversations(ctx, store.ConversationFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, first.ConversationID, rows[0].ID)
	assert.Equal(t, schema.IntentTodo, rows[0].Intent)
	assert.Equal(t, 1, rows[0].TurnCount)
	assert.Equal(t, "add my essay", rows[0].LastQuery)
	assert.NotEmpty(t, rows[0].LastResult)

	second := o.Supervise(ctx, schema.IntentTodo, Request{
		Query: "friday", UserID: "u1", ConversationID: first.ConversationID,
	})
	require.True(t, second.ReadyToExecute)

	rows, err = st.ListConversations(ctx, store.ConversationFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
