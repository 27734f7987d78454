package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/stewardhq/steward/pkg/schema"
)

// ConversationRecord tracks one in-flight clarification exchange. Created on
// the first non-ready result, updated every turn, deleted the moment a
// result becomes ready.
type ConversationRecord struct {
	ConversationID string                    `json:"conversation_id"`
	Intent         schema.Intent             `json:"intent"`
	UserID         string                    `json:"user_id"`
	StartedAt      time.Time                 `json:"started_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
	TurnCount      int                       `json:"turn_count"`
	LastQuery      string                    `json:"last_query"`
	LastResult     *schema.SupervisionResult `json:"last_supervision_result,omitempty"`
}

// ConversationStore is the injected registry backing conversation lifecycle.
// Implementations must be safe for concurrent use and must support TTL
// eviction so abandoned conversations cannot accumulate.
type ConversationStore interface {
	Get(ctx context.Context, conversationID string) (*ConversationRecord, bool, error)
	Upsert(ctx context.Context, record *ConversationRecord) error
	Delete(ctx context.Context, conversationID string) error
	// EvictExpired drops records idle longer than the TTL and returns the
	// evicted conversation IDs.
	EvictExpired(ctx context.Context) ([]string, error)
	Len(ctx context.Context) (int, error)
}

// MemoryConversationStore is the in-process default: a mutex-guarded map
// with idle-time TTL eviction.
type MemoryConversationStore struct {
	mu      sync.RWMutex
	records map[string]*ConversationRecord
	ttl     time.Duration
	clock   func() time.Time
}

// NewMemoryConversationStore creates an in-memory store. A non-positive TTL
// falls back to 30 minutes.
func NewMemoryConversationStore(ttl time.Duration) *MemoryConversationStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &MemoryConversationStore{
		records: make(map[string]*ConversationRecord),
		ttl:     ttl,
		clock:   time.Now,
	}
}

func (s *MemoryConversationStore) Get(_ context.Context, conversationID string) (*ConversationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[conversationID]
	if !ok {
		return nil, false, nil
	}
	cp := *rec
	return &cp, true, nil
}

func (s *MemoryConversationStore) Upsert(_ context.Context, record *ConversationRecord) error {
	if record == nil || record.ConversationID == "" {
		return schema.NewError(schema.ErrCodeValidation, "conversation record requires an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *record
	cp.UpdatedAt = s.clock()
	s.records[record.ConversationID] = &cp
	return nil
}

func (s *MemoryConversationStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, conversationID)
	return nil
}

func (s *MemoryConversationStore) EvictExpired(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock().Add(-s.ttl)
	var evicted []string
	for id, rec := range s.records {
		if rec.UpdatedAt.Before(cutoff) {
			delete(s.records, id)
			evicted = append(evicted, id)
		}
	}
	return evicted, nil
}

func (s *MemoryConversationStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}
