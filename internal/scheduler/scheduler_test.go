package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/internal/store"
	"github.com/stewardhq/steward/internal/streaming"
	"github.com/stewardhq/steward/pkg/schema"
)

// mockRunner records briefings it was asked to run.
type mockRunner struct {
	mu  sync.Mutex
	ran []string
	err error
}

func (m *mockRunner) RunBriefing(_ context.Context, b *store.Briefing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ran = append(m.ran, b.ID)
	return m.err
}

func (m *mockRunner) runs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.ran...)
}

type mockEvictor struct {
	evicted []string
	calls   int
}

func (m *mockEvictor) EvictExpired(context.Context) ([]string, error) {
	m.calls++
	return m.evicted, nil
}

func newTestScheduler(t *testing.T, runner BriefingRunner, evictor ConversationEvictor) (*Scheduler, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewScheduler(st, runner, evictor, nil, 30*time.Minute, slog.Default()), st
}

func seedBriefing(t *testing.T, st *store.MemoryStore, id string, nextRun time.Time, enabled bool) {
	t.Helper()
	require.NoError(t, st.CreateBriefing(context.Background(), &store.Briefing{
		ID:             id,
		UserID:         "u-1",
		CronExpression: "0 8 * * *",
		Enabled:        enabled,
		NextRunAt:      &nextRun,
	}))
}

func TestScheduleValidatesCronAndStampsNextRun(t *testing.T) {
	runner := &mockRunner{}
	s, st := newTestScheduler(t, runner, nil)

	b, err := s.Schedule(context.Background(), "u-1", "0 8 * * *", []string{"calendar", "todos"})
	require.NoError(t, err)
	require.NotEmpty(t, b.ID)
	require.NotNil(t, b.NextRunAt)
	assert.True(t, b.NextRunAt.After(time.Now().UTC()))
	assert.True(t, b.Enabled)

	stored, err := st.GetBriefing(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, "0 8 * * *", stored.CronExpression)
	assert.JSONEq(t, `["calendar","todos"]`, string(stored.Topics))
}

func TestScheduleRejectsBadCron(t *testing.T) {
	s, _ := newTestScheduler(t, &mockRunner{}, nil)

	_, err := s.Schedule(context.Background(), "u-1", "every tuesday", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse cron expression")
}

func TestTickRunsDueBriefings(t *testing.T) {
	runner := &mockRunner{}
	s, st := newTestScheduler(t, runner, nil)

	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)
	seedBriefing(t, st, "due", past, true)
	seedBriefing(t, st, "later", future, true)
	seedBriefing(t, st, "disabled", past, false)

	s.tick(context.Background())

	assert.Equal(t, []string{"due"}, runner.runs())

	updated, err := st.GetBriefing(context.Background(), "due")
	require.NoError(t, err)
	assert.Equal(t, "success", updated.LastRunStatus)
	require.NotNil(t, updated.LastRunAt)
	require.NotNil(t, updated.NextRunAt)
	assert.True(t, updated.NextRunAt.After(time.Now().UTC()))
}

func TestTickRecordsRunnerFailure(t *testing.T) {
	runner := &mockRunner{err: errors.New("engine unavailable")}
	s, st := newTestScheduler(t, runner, nil)

	seedBriefing(t, st, "b-1", time.Now().UTC().Add(-time.Minute), true)

	s.tick(context.Background())

	updated, err := st.GetBriefing(context.Background(), "b-1")
	require.NoError(t, err)
	assert.Equal(t, "error", updated.LastRunStatus)
	// A failed run still advances next_run_at so it does not retry hot.
	assert.True(t, updated.NextRunAt.After(time.Now().UTC()))
}

func TestTickSweepsExpiredConversations(t *testing.T) {
	runner := &mockRunner{}
	evictor := &mockEvictor{evicted: []string{"c-old"}}
	s, st := newTestScheduler(t, runner, evictor)

	stale := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, st.UpsertConversation(context.Background(), &store.ConversationRow{
		ID:        "c-old",
		Intent:    schema.IntentTodo,
		UserID:    "u-1",
		UpdatedAt: stale,
	}))
	require.NoError(t, st.UpsertConversation(context.Background(), &store.ConversationRow{
		ID:     "c-fresh",
		Intent: schema.IntentTodo,
		UserID: "u-1",
	}))

	s.tick(context.Background())

	assert.Equal(t, 1, evictor.calls)

	_, err := st.GetConversation(context.Background(), "c-old")
	require.Error(t, err)
	_, err = st.GetConversation(context.Background(), "c-fresh")
	require.NoError(t, err)
}

func TestSweepPublishesExpiredConversationEvents(t *testing.T) {
	hub := streaming.NewMemoryHub()
	st := store.NewMemoryStore()
	evictor := &mockEvictor{evicted: []string{"c-mem"}}
	s := NewScheduler(st, &mockRunner{}, evictor, hub, 30*time.Minute, slog.Default())

	require.NoError(t, st.UpsertConversation(context.Background(), &store.ConversationRow{
		ID:        "c-db",
		Intent:    schema.IntentTodo,
		UserID:    "u-1",
		UpdatedAt: time.Now().UTC().Add(-time.Hour),
	}))

	events, cancel, err := hub.Subscribe(context.Background(), streaming.EventFilter{
		EventTypes: []string{schema.EventConversationExpired},
	})
	require.NoError(t, err)
	defer cancel()

	s.sweepConversations(context.Background())

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case e := <-events:
			got = append(got, e.ConversationID)
		default:
			t.Fatal("expected a conversation.expired event")
		}
	}
	assert.ElementsMatch(t, []string{"c-mem", "c-db"}, got)
}

func TestRecoverMissedRunsOverdueBriefings(t *testing.T) {
	runner := &mockRunner{}
	s, st := newTestScheduler(t, runner, nil)

	seedBriefing(t, st, "missed", time.Now().UTC().Add(-2*time.Hour), true)
	seedBriefing(t, st, "upcoming", time.Now().UTC().Add(time.Hour), true)

	require.NoError(t, s.RecoverMissed(context.Background()))
	assert.Equal(t, []string{"missed"}, runner.runs())
}

func TestCalculateNextRun(t *testing.T) {
	s, _ := newTestScheduler(t, &mockRunner{}, nil)

	from := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	next, err := s.CalculateNextRun("0 8 * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), next)
}

func TestStartStopLifecycle(t *testing.T) {
	runner := &mockRunner{}
	s, st := newTestScheduler(t, runner, nil)
	seedBriefing(t, st, "due", time.Now().UTC().Add(-time.Minute), true)

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	// The initial tick fires immediately on start.
	require.Eventually(t, func() bool {
		return len(runner.runs()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}
