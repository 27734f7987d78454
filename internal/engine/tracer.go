package engine

import (
	"context"
	"encoding/json"

	"github.com/stewardhq/steward/internal/store"
	"github.com/stewardhq/steward/internal/streaming"
)

// TraceSink is satisfied by the Store and TraceLog; the runner emits one
// trace event per node transition and decision.
type TraceSink interface {
	AppendTraceEvent(ctx context.Context, event *store.TraceEvent) error
}

// traceLogSink adapts a TraceLog, which assigns sequences itself.
type traceLogSink struct {
	tl *store.TraceLog
}

func (s *traceLogSink) AppendTraceEvent(ctx context.Context, event *store.TraceEvent) error {
	return s.tl.Append(ctx, event)
}

// SinkFromTraceLog wraps a TraceLog as a TraceSink.
func SinkFromTraceLog(tl *store.TraceLog) TraceSink {
	return &traceLogSink{tl: tl}
}

// Tracer fans trace events out to the persistent sink and the live hub.
// Either side may be nil.
type Tracer struct {
	sink TraceSink
	hub  streaming.EventHub
}

// NewTracer creates a Tracer.
func NewTracer(sink TraceSink, hub streaming.EventHub) *Tracer {
	return &Tracer{sink: sink, hub: hub}
}

// Emit records one trace event. Persistence failures are returned; hub
// publishes are best-effort and never fail the caller.
func (t *Tracer) Emit(ctx context.Context, s *WorkflowState, node, eventType string, payload map[string]any) error {
	var raw json.RawMessage
	if len(payload) > 0 {
		b, err := json.Marshal(payload)
		if err == nil {
			raw = b
		}
	}

	if t.hub != nil {
		_ = t.hub.Publish(ctx, streaming.StreamEvent{
			TraceID:        s.TraceID,
			ConversationID: s.ConversationID,
			UserID:         s.UserID,
			Node:           node,
			EventType:      eventType,
			Payload:        payload,
		})
	}

	if t.sink == nil {
		return nil
	}
	return t.sink.AppendTraceEvent(ctx, &store.TraceEvent{
		TraceID:        s.TraceID,
		ConversationID: s.ConversationID,
		UserID:         s.UserID,
		Node:           node,
		Type:           eventType,
		Payload:        raw,
	})
}
