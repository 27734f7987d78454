package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stewardhq/steward/pkg/schema"
)

// MemoryStore is an in-process Store used in tests and single-node setups
// that do not need durability.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*ConversationRow
	traces        map[string][]*TraceEvent
	briefings     map[string]*Briefing
	nextEventID   int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*ConversationRow),
		traces:        make(map[string][]*TraceEvent),
		briefings:     make(map[string]*Briefing),
	}
}

func (s *MemoryStore) UpsertConversation(_ context.Context, row *ConversationRow) error {
	if row == nil || row.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "conversation row requires an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *row
	if cp.StartedAt.IsZero() {
		cp.StartedAt = time.Now().UTC()
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	s.conversations[row.ID] = &cp
	return nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (*ConversationRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.conversations[id]
	if !ok {
		return nil, storeNotFound("conversation", id)
	}
	cp := *row
	return &cp, nil
}

func (s *MemoryStore) ListConversations(_ context.Context, filter ConversationFilter) ([]*ConversationRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ConversationRow
	for _, row := range s.conversations {
		if filter.UserID != "" && row.UserID != filter.UserID {
			continue
		}
		if filter.Intent != "" && row.Intent != filter.Intent {
			continue
		}
		cp := *row
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, id)
	return nil
}

func (s *MemoryStore) DeleteExpiredConversations(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for id, row := range s.conversations {
		if row.UpdatedAt.Before(cutoff) {
			delete(s.conversations, id)
			expired = append(expired, id)
		}
	}
	return expired, nil
}

func (s *MemoryStore) AppendTraceEvent(_ context.Context, event *TraceEvent) error {
	if event == nil || event.TraceID == "" {
		return schema.NewError(schema.ErrCodeValidation, "trace event requires a trace_id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *event
	s.nextEventID++
	cp.ID = s.nextEventID
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now().UTC()
	}
	if cp.Sequence == 0 {
		cp.Sequence = int64(len(s.traces[event.TraceID])) + 1
	}
	s.traces[event.TraceID] = append(s.traces[event.TraceID], &cp)
	event.ID = cp.ID
	event.Sequence = cp.Sequence
	return nil
}

func (s *MemoryStore) GetTrace(_ context.Context, traceID string, since int64) ([]*TraceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*TraceEvent
	for _, e := range s.traces[traceID] {
		if e.Sequence > since {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *MemoryStore) ListTraceEvents(_ context.Context, filter TraceFilter) ([]*TraceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*TraceEvent
	for traceID, events := range s.traces {
		if filter.TraceID != "" && traceID != filter.TraceID {
			continue
		}
		for _, e := range events {
			if filter.ConversationID != "" && e.ConversationID != filter.ConversationID {
				continue
			}
			if filter.UserID != "" && e.UserID != filter.UserID {
				continue
			}
			if filter.EventType != "" && e.Type != filter.EventType {
				continue
			}
			if filter.Node != "" && e.Node != filter.Node {
				continue
			}
			if filter.Since != nil && e.Timestamp.Before(*filter.Since) {
				continue
			}
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) CreateBriefing(_ context.Context, b *Briefing) error {
	if b == nil || b.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "briefing requires an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.briefings[b.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "briefing %q already exists", b.ID)
	}
	cp := *b
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.briefings[b.ID] = &cp
	return nil
}

func (s *MemoryStore) GetBriefing(_ context.Context, id string) (*Briefing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.briefings[id]
	if !ok {
		return nil, storeNotFound("briefing", id)
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) UpdateBriefing(_ context.Context, id string, update BriefingUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.briefings[id]
	if !ok {
		return storeNotFound("briefing", id)
	}
	if update.CronExpression != "" {
		b.CronExpression = update.CronExpression
	}
	if update.Enabled != nil {
		b.Enabled = *update.Enabled
	}
	if update.LastRunAt != nil {
		b.LastRunAt = update.LastRunAt
	}
	if update.NextRunAt != nil {
		b.NextRunAt = update.NextRunAt
	}
	if update.LastRunStatus != "" {
		b.LastRunStatus = update.LastRunStatus
	}
	return nil
}

func (s *MemoryStore) ListBriefings(_ context.Context, filter BriefingFilter) ([]*Briefing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Briefing
	for _, b := range s.briefings {
		if filter.UserID != "" && b.UserID != filter.UserID {
			continue
		}
		if filter.Enabled != nil && b.Enabled != *filter.Enabled {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return strings.Compare(out[i].ID, out[j].ID) < 0
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteBriefing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.briefings[id]; !ok {
		return storeNotFound("briefing", id)
	}
	delete(s.briefings, id)
	return nil
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Vacuum(context.Context) error  { return nil }
func (s *MemoryStore) Close() error                  { return nil }
