package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/stewardhq/steward/internal/store"
	"github.com/stewardhq/steward/internal/streaming"
	"github.com/stewardhq/steward/pkg/schema"
)

// BriefingRunner is the interface the scheduler uses to run a due briefing.
// Satisfied by the workflow engine wrapper (avoids import cycle).
type BriefingRunner interface {
	RunBriefing(ctx context.Context, briefing *store.Briefing) error
}

// ConversationEvictor expires idle in-memory conversations. Satisfied by the
// supervisor orchestrator.
type ConversationEvictor interface {
	EvictExpired(ctx context.Context) ([]string, error)
}

// Scheduler polls the store for due briefings and runs them, and sweeps
// expired conversations on the same cadence.
type Scheduler struct {
	store   store.Store
	runner  BriefingRunner
	evictor ConversationEvictor
	hub     streaming.EventHub
	parser  cron.Parser
	ttl     time.Duration
	logger  *slog.Logger
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // briefing IDs currently executing (dedup)
}

// NewScheduler creates a new Scheduler. The evictor and hub may be nil; ttl
// bounds how long an idle persisted conversation survives the sweep.
func NewScheduler(s store.Store, runner BriefingRunner, evictor ConversationEvictor, hub streaming.EventHub, ttl time.Duration, logger *slog.Logger) *Scheduler {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Scheduler{
		store:    s,
		runner:   runner,
		evictor:  evictor,
		hub:      hub,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		ttl:      ttl,
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Start launches the background scheduling loop with a 60s ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs all due briefings and sweeps expired conversations.
func (s *Scheduler) tick(ctx context.Context) {
	enabled := true
	briefings, err := s.store.ListBriefings(ctx, store.BriefingFilter{Enabled: &enabled})
	if err != nil {
		s.logger.Error("failed to list briefings", slog.String("error", err.Error()))
	} else {
		now := time.Now().UTC()
		for _, b := range briefings {
			if b.NextRunAt == nil || !b.NextRunAt.After(now) {
				if !s.tryAcquire(b.ID) {
					continue // already running (dedup)
				}
				if err := s.runBriefing(ctx, b, now); err != nil {
					s.logger.Error("failed to run briefing",
						slog.String("briefing_id", b.ID),
						slog.String("error", err.Error()),
					)
				}
				s.release(b.ID)
			}
		}
	}

	s.sweepConversations(ctx)
}

// runBriefing executes one briefing and updates its timestamps.
func (s *Scheduler) runBriefing(ctx context.Context, b *store.Briefing, now time.Time) error {
	s.logger.Info("running briefing",
		slog.String("briefing_id", b.ID),
		slog.String("user_id", b.UserID),
	)
	s.publish(ctx, b, schema.EventBriefingTriggered)

	err := s.runner.RunBriefing(ctx, b)
	status := "success"
	if err != nil {
		status = "error"
		s.logger.Error("briefing execution failed",
			slog.String("briefing_id", b.ID),
			slog.String("error", err.Error()),
		)
	}

	return s.updateBriefingStatus(ctx, b, now, status)
}

func (s *Scheduler) updateBriefingStatus(ctx context.Context, b *store.Briefing, now time.Time, status string) error {
	nextRun, err := s.CalculateNextRun(b.CronExpression, now)
	if err != nil {
		return fmt.Errorf("calculate next run for briefing %q: %w", b.ID, err)
	}

	return s.store.UpdateBriefing(ctx, b.ID, store.BriefingUpdate{
		LastRunAt:     &now,
		NextRunAt:     &nextRun,
		LastRunStatus: status,
	})
}

// sweepConversations expires idle conversations, both the orchestrator's
// in-memory records and the persisted rows.
func (s *Scheduler) sweepConversations(ctx context.Context) {
	seen := make(map[string]bool)
	var expired []string

	if s.evictor != nil {
		evicted, err := s.evictor.EvictExpired(ctx)
		if err != nil {
			s.logger.Error("conversation eviction failed", slog.String("error", err.Error()))
		} else if len(evicted) > 0 {
			s.logger.Info("evicted idle conversations", slog.Int("count", len(evicted)))
		}
		for _, id := range evicted {
			if !seen[id] {
				seen[id] = true
				expired = append(expired, id)
			}
		}
	}

	// Catches rows the orchestrator's store never held, such as records
	// persisted by a previous process.
	cutoff := time.Now().UTC().Add(-s.ttl)
	deleted, err := s.store.DeleteExpiredConversations(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to delete expired conversations", slog.String("error", err.Error()))
	}
	for _, id := range deleted {
		if !seen[id] {
			seen[id] = true
			expired = append(expired, id)
		}
	}

	for _, id := range expired {
		if s.hub != nil {
			_ = s.hub.Publish(ctx, streaming.StreamEvent{
				ConversationID: id,
				EventType:      schema.EventConversationExpired,
			})
		}
	}
}

// tryAcquire returns true and marks the briefing as in-flight if it is not
// already running.
func (s *Scheduler) tryAcquire(id string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

// release removes the briefing from the in-flight set.
func (s *Scheduler) release(id string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, id)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Schedule validates the cron expression, stamps the first run time, and
// persists the briefing.
func (s *Scheduler) Schedule(ctx context.Context, userID, cronExpr string, topics []string) (*store.Briefing, error) {
	now := time.Now().UTC()
	nextRun, err := s.CalculateNextRun(cronExpr, now)
	if err != nil {
		return nil, err
	}

	var rawTopics json.RawMessage
	if len(topics) > 0 {
		rawTopics, err = json.Marshal(topics)
		if err != nil {
			return nil, fmt.Errorf("marshal topics: %w", err)
		}
	}

	b := &store.Briefing{
		ID:             uuid.NewString(),
		UserID:         userID,
		CronExpression: cronExpr,
		Topics:         rawTopics,
		Enabled:        true,
		NextRunAt:      &nextRun,
		CreatedAt:      now,
	}
	if err := s.store.CreateBriefing(ctx, b); err != nil {
		return nil, err
	}

	s.publish(ctx, b, schema.EventBriefingScheduled)
	return b, nil
}

func (s *Scheduler) publish(ctx context.Context, b *store.Briefing, eventType string) {
	if s.hub == nil {
		return
	}
	_ = s.hub.Publish(ctx, streaming.StreamEvent{
		UserID:    b.UserID,
		EventType: eventType,
		Payload:   map[string]any{"briefing_id": b.ID, "cron": b.CronExpression},
	})
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

// RecoverMissed runs enabled briefings whose next_run_at passed while the
// process was down.
func (s *Scheduler) RecoverMissed(ctx context.Context) error {
	enabled := true
	briefings, err := s.store.ListBriefings(ctx, store.BriefingFilter{Enabled: &enabled})
	if err != nil {
		return fmt.Errorf("list missed briefings: %w", err)
	}

	now := time.Now().UTC()
	recovered := 0
	for _, b := range briefings {
		if b.NextRunAt != nil && b.NextRunAt.Before(now) {
			if !s.tryAcquire(b.ID) {
				continue
			}
			if err := s.runBriefing(ctx, b, now); err != nil {
				s.logger.Error("failed to recover missed briefing",
					slog.String("briefing_id", b.ID),
					slog.String("error", err.Error()),
				)
				s.release(b.ID)
				continue
			}
			s.release(b.ID)
			recovered++
		}
	}

	if recovered > 0 {
		s.logger.Info("recovered missed briefings", slog.Int("count", recovered))
	}
	return nil
}
