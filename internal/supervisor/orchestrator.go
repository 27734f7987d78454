package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stewardhq/steward/internal/metrics"
	"github.com/stewardhq/steward/pkg/schema"
)

// Route values produced by the supervision router.
const (
	RouteExecute = "execute"
	RouteClarify = "clarify"
)

// Orchestrator dispatches supervision requests to the supervisor registered
// for the classified intent and owns the conversation lifecycle around
// non-ready results. Supervise never propagates a failure: every panic or
// error degrades to an unknown/not-ready result.
type Orchestrator struct {
	mu            sync.RWMutex
	supervisors   map[schema.Intent]Supervisor
	conversations ConversationStore
	metrics       *metrics.Metrics
	logger        *slog.Logger
	clock         func() time.Time
	newID         func() string
}

// NewOrchestrator creates an orchestrator backed by the given conversation
// store. A nil store falls back to the in-memory default; metrics may be nil.
func NewOrchestrator(store ConversationStore, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	if store == nil {
		store = NewMemoryConversationStore(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		supervisors:   make(map[schema.Intent]Supervisor),
		conversations: store,
		metrics:       m,
		logger:        logger,
		clock:         time.Now,
		newID:         uuid.NewString,
	}
}

// Register adds a workflow supervisor. Duplicate workflow types conflict.
func (o *Orchestrator) Register(s Supervisor) error {
	if s == nil {
		return schema.NewError(schema.ErrCodeValidation, "supervisor is nil")
	}
	wt := s.WorkflowType()
	if !wt.Routable() {
		return schema.NewErrorf(schema.ErrCodeValidation, "supervisor workflow type %q is not a known intent", wt)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.supervisors[wt]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "supervisor for %q already registered", wt)
	}
	o.supervisors[wt] = s
	return nil
}

// Registered reports whether a supervisor covers the intent.
func (o *Orchestrator) Registered(intent schema.Intent) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.supervisors[intent]
	return ok
}

// Supervise dispatches one turn and applies the conversation lifecycle. A
// conversation ID is minted before dispatch so the first turn's history is
// keyed under the same ID the caller sees on a not-ready result. The ID is
// kept only while the result stays not ready; the record and history are
// deleted the moment a result becomes ready.
func (o *Orchestrator) Supervise(ctx context.Context, intent schema.Intent, req Request) schema.SupervisionResult {
	if req.ConversationID == "" {
		req.ConversationID = o.newID()
	}

	result := o.dispatch(ctx, intent, req)
	if result.ConversationID == "" {
		result.ConversationID = req.ConversationID
	}

	if result.ReadyToExecute {
		o.closeConversation(ctx, intent, result.ConversationID)
		result.ConversationID = ""
		return result
	}

	o.recordTurn(ctx, intent, req, &result)
	return result
}

// Route is the pure supervision router.
func Route(result *schema.SupervisionResult) string {
	if result.ReadyToExecute {
		return RouteExecute
	}
	return RouteClarify
}

// EvictExpired drops idle conversations from the store and clears the
// matching supervisor history logs. Intended to run on a periodic sweep.
func (o *Orchestrator) EvictExpired(ctx context.Context) ([]string, error) {
	evicted, err := o.conversations.EvictExpired(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range evicted {
		o.clearHistories(id)
	}
	if len(evicted) > 0 {
		o.logger.InfoContext(ctx, "evicted expired conversations", "count", len(evicted))
	}
	o.updateActiveGauge(ctx)
	return evicted, nil
}

// Conversations exposes the backing store for read paths such as the
// conversation listing tool.
func (o *Orchestrator) Conversations() ConversationStore {
	return o.conversations
}

// dispatch looks up the registered supervisor and runs it with full
// exception safety.
func (o *Orchestrator) dispatch(ctx context.Context, intent schema.Intent, req Request) (result schema.SupervisionResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.ErrorContext(ctx, "supervisor panicked",
				"intent", intent, "panic", r)
			result = degradedResult(req.ConversationID,
				fmt.Sprintf("Supervision failed: %v", r))
		}
	}()

	o.mu.RLock()
	s, ok := o.supervisors[intent]
	o.mu.RUnlock()

	if !ok {
		return schema.SupervisionResult{
			OperationType:        "unknown",
			ReadyToExecute:       false,
			ClarificationMessage: fmt.Sprintf("No supervisor available for intent: %s", intent),
			ConversationID:       req.ConversationID,
		}
	}

	result, err := s.Supervise(ctx, req)
	if err != nil {
		o.logger.ErrorContext(ctx, "supervisor failed",
			"intent", intent, "error", err)
		return degradedResult(req.ConversationID,
			fmt.Sprintf("Supervision failed: %s", err.Error()))
	}
	return result
}

func degradedResult(conversationID, message string) schema.SupervisionResult {
	return schema.SupervisionResult{
		OperationType:        "unknown",
		ReadyToExecute:       false,
		ClarificationMessage: message,
		PolicyViolations:     []string{message},
		ConversationID:       conversationID,
	}
}

// closeConversation deletes the record and history for a completed exchange
// and records its total turn count, the final ready turn included.
func (o *Orchestrator) closeConversation(ctx context.Context, intent schema.Intent, conversationID string) {
	turns := 1
	if existing, found, err := o.conversations.Get(ctx, conversationID); err == nil && found {
		turns = existing.TurnCount + 1
	}

	if err := o.conversations.Delete(ctx, conversationID); err != nil {
		o.logger.WarnContext(ctx, "failed to delete completed conversation",
			"intent", intent, "conversation_id", conversationID, "error", err)
	}
	o.clearHistories(conversationID)

	if o.metrics != nil {
		o.metrics.ObserveConversationClose(turns)
	}
	o.updateActiveGauge(ctx)
}

// recordTurn upserts the conversation record with an incremented turn count.
func (o *Orchestrator) recordTurn(ctx context.Context, intent schema.Intent, req Request, result *schema.SupervisionResult) {
	existing, found, err := o.conversations.Get(ctx, result.ConversationID)
	if err != nil {
		o.logger.WarnContext(ctx, "conversation lookup failed",
			"conversation_id", result.ConversationID, "error", err)
	}

	record := &ConversationRecord{
		ConversationID: result.ConversationID,
		Intent:         intent,
		UserID:         req.UserID,
		StartedAt:      o.clock(),
		TurnCount:      1,
	}
	if found {
		record.StartedAt = existing.StartedAt
		record.TurnCount = existing.TurnCount + 1
	}
	record.LastQuery = req.Query
	resultCopy := *result
	record.LastResult = &resultCopy

	if err := o.conversations.Upsert(ctx, record); err != nil {
		o.logger.WarnContext(ctx, "failed to persist conversation turn",
			"conversation_id", result.ConversationID, "error", err)
	}
	o.updateActiveGauge(ctx)
}

// updateActiveGauge refreshes the open-conversation gauge from the store.
func (o *Orchestrator) updateActiveGauge(ctx context.Context) {
	if o.metrics == nil {
		return
	}
	if n, err := o.conversations.Len(ctx); err == nil {
		o.metrics.SetActiveConversations(n)
	}
}

// clearHistories drops the bounded history log on every supervisor that
// keeps one.
func (o *Orchestrator) clearHistories(conversationID string) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, s := range o.supervisors {
		if b, ok := s.(*Base); ok {
			b.History().Clear(conversationID)
		}
	}
}
