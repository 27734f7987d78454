package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"github.com/stewardhq/steward/internal/streaming"
)

// UserNotifier pushes notifications to connected users.
type UserNotifier interface {
	Notify(ctx context.Context, userID string, payload map[string]any) error
}

// MCPNotifier implements UserNotifier using MCP SSE push.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes via MCP SSE.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify sends a notification to the user's SSE session.
// Best-effort: returns nil if the user is not connected.
func (n *MCPNotifier) Notify(_ context.Context, userID string, payload map[string]any) error {
	sessionID, ok := n.sessions.SessionFor(userID)
	if !ok {
		return nil // user not connected, best-effort
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session expired between lookup and send — not an error.
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}

// WatchHub subscribes to the live event hub and forwards workflow and
// briefing events to each event's user. Blocks until ctx is cancelled.
func (s *StewardServer) WatchHub(ctx context.Context) error {
	if s.hub == nil {
		return nil
	}

	events, cancel, err := s.hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		return err
	}
	defer cancel()

	notifier := NewMCPNotifier(s.mcpServer, s.sessions)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if event.UserID == "" {
				continue
			}
			if err := notifier.Notify(ctx, event.UserID, map[string]any{
				"event_type":      event.EventType,
				"trace_id":        event.TraceID,
				"conversation_id": event.ConversationID,
				"node":            event.Node,
				"payload":         event.Payload,
			}); err != nil {
				s.logger.Warn("notification push failed",
					"user_id", event.UserID, "error", err)
			}
		}
	}
}
