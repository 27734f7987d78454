package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

// --- Conversation Tests ---

func TestUpsertAndGetConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := &ConversationRow{
		ID:         uuid.New().String(),
		Intent:     schema.IntentTodo,
		UserID:     "user-1",
		TurnCount:  1,
		LastQuery:  "add my essay",
		LastResult: json.RawMessage(`{"ready_to_execute":false}`),
	}
	require.NoError(t, s.UpsertConversation(ctx, row))

	got, err := s.GetConversation(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, row.ID, got.ID)
	assert.Equal(t, schema.IntentTodo, got.Intent)
	assert.Equal(t, 1, got.TurnCount)
	assert.Equal(t, "add my essay", got.LastQuery)
	assert.JSONEq(t, `{"ready_to_execute":false}`, string(got.LastResult))
}

func TestUpsertConversationIncrementsTurns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := &ConversationRow{ID: uuid.New().String(), Intent: schema.IntentTodo, UserID: "user-1", TurnCount: 1}
	require.NoError(t, s.UpsertConversation(ctx, row))

	row.TurnCount = 2
	row.LastQuery = "it's due friday"
	require.NoError(t, s.UpsertConversation(ctx, row))

	got, err := s.GetConversation(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TurnCount)
	assert.Equal(t, "it's due friday", got.LastQuery)
}

func TestGetConversationNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetConversation(context.Background(), "missing")
	require.Error(t, err)

	var serr *schema.StewardError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeNotFound, serr.Code)
}

func TestDeleteConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := &ConversationRow{ID: uuid.New().String(), Intent: schema.IntentTodo, UserID: "u1"}
	require.NoError(t, s.UpsertConversation(ctx, row))
	require.NoError(t, s.DeleteConversation(ctx, row.ID))

	_, err := s.GetConversation(ctx, row.ID)
	assert.Error(t, err)
}

func TestListConversationsFiltered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, u := range []string{"u1", "u1", "u2"} {
		require.NoError(t, s.UpsertConversation(ctx, &ConversationRow{
			ID: uuid.New().String(), Intent: schema.IntentTodo, UserID: u,
		}))
	}

	rows, err := s.ListConversations(ctx, ConversationFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestDeleteExpiredConversations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := &ConversationRow{
		ID: "old", Intent: schema.IntentTodo, UserID: "u1",
		StartedAt: time.Now().Add(-2 * time.Hour).UTC(),
		UpdatedAt: time.Now().Add(-2 * time.Hour).UTC(),
	}
	fresh := &ConversationRow{ID: "fresh", Intent: schema.IntentTodo, UserID: "u1"}
	require.NoError(t, s.UpsertConversation(ctx, old))
	require.NoError(t, s.UpsertConversation(ctx, fresh))

	expired, err := s.DeleteExpiredConversations(ctx, time.Now().Add(-time.Hour).UTC())
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, expired)

	_, err = s.GetConversation(ctx, "fresh")
	assert.NoError(t, err)
}

// --- Trace Tests ---

func TestTraceLogAppendAssignsSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tl := NewTraceLog(s)

	traceID := uuid.New().String()
	for i := 0; i < 3; i++ {
		require.NoError(t, tl.Append(ctx, &TraceEvent{
			TraceID: traceID,
			UserID:  "u1",
			Node:    "intent_classifier",
			Type:    schema.EventNodeCompleted,
		}))
	}

	events, err := tl.Get(ctx, traceID, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Sequence)
	}
}

func TestGetTraceSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tl := NewTraceLog(s)

	traceID := uuid.New().String()
	for i := 0; i < 5; i++ {
		require.NoError(t, tl.Append(ctx, &TraceEvent{
			TraceID: traceID, Type: schema.EventNodeEntered, Node: "supervisor",
		}))
	}

	events, err := s.GetTrace(ctx, traceID, 3)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(4), events[0].Sequence)
}

func TestListTraceEventsByType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tl := NewTraceLog(s)

	traceID := uuid.New().String()
	require.NoError(t, tl.Append(ctx, &TraceEvent{
		TraceID: traceID, Type: schema.EventIntentClassified, Node: "intent_classifier",
		Payload: json.RawMessage(`{"intent":"todo","confidence":0.9}`),
	}))
	require.NoError(t, tl.Append(ctx, &TraceEvent{
		TraceID: traceID, Type: schema.EventSupervisionReady, Node: "supervisor",
	}))

	events, err := s.ListTraceEvents(ctx, TraceFilter{EventType: schema.EventIntentClassified})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "intent_classifier", events[0].Node)
	assert.JSONEq(t, `{"intent":"todo","confidence":0.9}`, string(events[0].Payload))
}

func TestTraceReplayBuildsNodeTimeline(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tl := NewTraceLog(s)

	traceID := uuid.New().String()
	appendAt := func(node, typ string) {
		require.NoError(t, tl.Append(ctx, &TraceEvent{TraceID: traceID, Node: node, Type: typ}))
	}
	appendAt("input_validator", schema.EventNodeEntered)
	appendAt("input_validator", schema.EventNodeCompleted)
	appendAt("intent_classifier", schema.EventNodeEntered)
	appendAt("intent_classifier", schema.EventNodeRetried)
	appendAt("intent_classifier", schema.EventNodeCompleted)
	appendAt("supervisor", schema.EventNodeEntered)
	appendAt("supervisor", schema.EventNodeFailed)

	visits, err := tl.Replay(ctx, traceID)
	require.NoError(t, err)
	require.Len(t, visits, 3)

	assert.Equal(t, "completed", visits[0].Status)
	assert.Equal(t, "completed", visits[1].Status)
	assert.Equal(t, 1, visits[1].Retries)
	assert.Equal(t, "failed", visits[2].Status)
}

// --- Briefing Tests ---

func TestBriefingCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := &Briefing{
		ID:             uuid.New().String(),
		UserID:         "u1",
		CronExpression: "0 8 * * *",
		Topics:         json.RawMessage(`["calendar","task"]`),
		Enabled:        true,
	}
	require.NoError(t, s.CreateBriefing(ctx, b))

	got, err := s.GetBriefing(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "0 8 * * *", got.CronExpression)
	assert.True(t, got.Enabled)

	disabled := false
	ranAt := time.Now().UTC()
	require.NoError(t, s.UpdateBriefing(ctx, b.ID, BriefingUpdate{
		Enabled: &disabled, LastRunAt: &ranAt, LastRunStatus: "ok",
	}))

	got, err = s.GetBriefing(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, "ok", got.LastRunStatus)
	require.NotNil(t, got.LastRunAt)

	require.NoError(t, s.DeleteBriefing(ctx, b.ID))
	_, err = s.GetBriefing(ctx, b.ID)
	assert.Error(t, err)
}

func TestUpdateBriefingNotFound(t *testing.T) {
	s := newTestStore(t)
	enabled := true
	err := s.UpdateBriefing(context.Background(), "missing", BriefingUpdate{Enabled: &enabled})
	require.Error(t, err)

	var serr *schema.StewardError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeNotFound, serr.Code)
}
