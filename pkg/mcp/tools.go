package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stewardhq/steward/internal/engine"
	"github.com/stewardhq/steward/internal/store"
	"github.com/stewardhq/steward/pkg/schema"
)

// handleAsk runs one user request through the workflow graph.
func (s *StewardServer) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query is required"), nil
	}
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("user_id is required"), nil
	}

	// Capture session mapping for notifications.
	s.captureSession(ctx, userID)

	state, runErr := s.runner.Execute(ctx, engine.Request{
		UserID:    userID,
		SessionID: req.GetString("session_id", ""),
		Query:     query,
		Context:   mcp.ParseStringMap(req, "context", nil),
	})
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("request failed: %v", runErr)), nil
	}

	return marshalResult(stateEnvelope(state))
}

// handleReply continues an open clarification conversation.
func (s *StewardServer) handleReply(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID, err := req.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("conversation_id is required"), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query is required"), nil
	}
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("user_id is required"), nil
	}

	s.captureSession(ctx, userID)

	state, runErr := s.runner.Execute(ctx, engine.Request{
		UserID:         userID,
		SessionID:      req.GetString("session_id", ""),
		Query:          query,
		ConversationID: conversationID,
	})
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("request failed: %v", runErr)), nil
	}

	return marshalResult(stateEnvelope(state))
}

// handleConversations lists open clarification conversations.
func (s *StewardServer) handleConversations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := mcp.ParseStringMap(req, "filter", nil)

	cf := store.ConversationFilter{
		UserID: req.GetString("user_id", ""),
		Intent: schema.Intent(req.GetString("intent", "")),
		Limit:  extractInt(filter, "limit", 50),
		Offset: extractInt(filter, "offset", 0),
	}

	rows, err := s.store.ListConversations(ctx, cf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"conversations": rows})
}

// handleTrace returns a request's decision trace.
func (s *StewardServer) handleTrace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	traceID, err := req.RequireString("trace_id")
	if err != nil {
		return mcp.NewToolResultError("trace_id is required"), nil
	}

	switch format := req.GetString("format", "events"); format {
	case "events":
		events, getErr := s.store.GetTrace(ctx, traceID, 0)
		if getErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("trace lookup failed: %v", getErr)), nil
		}
		return marshalResult(map[string]any{"trace_id": traceID, "events": events})

	case "timeline":
		visits, replayErr := store.ReplayTrace(ctx, s.store, traceID)
		if replayErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("trace replay failed: %v", replayErr)), nil
		}
		return marshalResult(map[string]any{"trace_id": traceID, "timeline": visits})

	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown trace format: %s", format)), nil
	}
}

// handleSchedule manages recurring briefings.
func (s *StewardServer) handleSchedule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}

	switch action {
	case "create":
		return s.scheduleCreate(ctx, req)
	case "list":
		return s.scheduleList(ctx, req)
	case "enable":
		return s.scheduleSetEnabled(ctx, req, true)
	case "disable":
		return s.scheduleSetEnabled(ctx, req, false)
	case "delete":
		return s.scheduleDelete(ctx, req)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown schedule action: %s", action)), nil
	}
}

// --- Schedule helpers ---

func (s *StewardServer) scheduleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required for create"), nil
	}
	cronExpr := req.GetString("cron", "")
	if cronExpr == "" {
		return mcp.NewToolResultError("cron is required for create"), nil
	}

	s.captureSession(ctx, userID)

	b, err := s.scheduler.Schedule(ctx, userID, cronExpr, stringArg(req, "topics"))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("schedule failed: %v", err)), nil
	}
	return marshalResult(map[string]any{
		"briefing_id": b.ID,
		"cron":        b.CronExpression,
		"next_run_at": b.NextRunAt,
	})
}

func (s *StewardServer) scheduleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	briefings, err := s.store.ListBriefings(ctx, store.BriefingFilter{
		UserID: req.GetString("user_id", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"briefings": briefings})
}

func (s *StewardServer) scheduleSetEnabled(ctx context.Context, req mcp.CallToolRequest, enabled bool) (*mcp.CallToolResult, error) {
	briefingID := req.GetString("briefing_id", "")
	if briefingID == "" {
		return mcp.NewToolResultError("briefing_id is required"), nil
	}

	if err := s.store.UpdateBriefing(ctx, briefingID, store.BriefingUpdate{Enabled: &enabled}); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("update failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"briefing_id": briefingID, "enabled": enabled})
}

func (s *StewardServer) scheduleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	briefingID := req.GetString("briefing_id", "")
	if briefingID == "" {
		return mcp.NewToolResultError("briefing_id is required"), nil
	}

	if err := s.store.DeleteBriefing(ctx, briefingID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("delete failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"briefing_id": briefingID, "deleted": true})
}

// --- Internal helpers ---

// stateEnvelope flattens the final workflow state into the tool response.
func stateEnvelope(state *engine.WorkflowState) map[string]any {
	envelope := map[string]any{
		"trace_id": state.TraceID,
		"intent":   string(state.FinalIntent),
		"outcome":  string(state.Outcome()),
		"output":   state.OutputData,
	}
	if state.ConversationID != "" {
		envelope["conversation_id"] = state.ConversationID
	}
	return envelope
}

// stringArg extracts an array argument as strings, tolerating mixed input.
func stringArg(req mcp.CallToolRequest, key string) []string {
	raw, ok := req.GetArguments()[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// captureSession maps the user ID to its current MCP session for notifications.
func (s *StewardServer) captureSession(ctx context.Context, userID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(userID, session.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
