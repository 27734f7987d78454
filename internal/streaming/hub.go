// Package streaming provides pub/sub for real-time supervision trace events.
package streaming

import "context"

// StreamEvent is a real-time event emitted during workflow execution.
type StreamEvent struct {
	TraceID        string `json:"trace_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	Node           string `json:"node,omitempty"`
	EventType      string `json:"event_type"`
	Payload        any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	TraceID        string   `json:"trace_id,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	UserID         string   `json:"user_id,omitempty"`
	EventTypes     []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time trace events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
