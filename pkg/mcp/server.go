// Package mcp exposes the steward engine to agents over the Model Context
// Protocol: one tool per user-facing operation, stdio transport by default.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stewardhq/steward/internal/engine"
	"github.com/stewardhq/steward/internal/store"
	"github.com/stewardhq/steward/internal/streaming"
)

// WorkflowRunner is the interface the server uses to run one user turn.
// Satisfied by the engine.
type WorkflowRunner interface {
	Execute(ctx context.Context, req engine.Request) (*engine.WorkflowState, error)
}

// BriefingScheduler creates cron-triggered briefings. Satisfied by the
// scheduler.
type BriefingScheduler interface {
	Schedule(ctx context.Context, userID, cronExpr string, topics []string) (*store.Briefing, error)
}

// StewardServerDeps holds the dependencies for creating a StewardServer.
type StewardServerDeps struct {
	Runner    WorkflowRunner
	Store     store.Store
	Scheduler BriefingScheduler
	Hub       streaming.EventHub
	Logger    *slog.Logger
}

// StewardServer wraps an MCP server with steward-specific tool handlers.
type StewardServer struct {
	runner    WorkflowRunner
	store     store.Store
	scheduler BriefingScheduler
	hub       streaming.EventHub
	sessions  *SessionRegistry
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewStewardServer creates a new StewardServer with all 5 tools registered.
func NewStewardServer(deps StewardServerDeps) *StewardServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &StewardServer{
		runner:    deps.Runner,
		store:     deps.Store,
		scheduler: deps.Scheduler,
		hub:       deps.Hub,
		sessions:  NewSessionRegistry(),
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"steward",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Steward is a supervised academic-planning assistant. Use steward.ask to submit a request, steward.reply to answer a clarification question in an open conversation, steward.conversations to list open conversations, steward.trace to inspect a request's decision trace, and steward.schedule to manage recurring briefings."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *StewardServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *StewardServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 5 registered MCP tools as ServerTool entries.
func (s *StewardServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: askTool(), Handler: s.handleAsk},
		{Tool: replyTool(), Handler: s.handleReply},
		{Tool: conversationsTool(), Handler: s.handleConversations},
		{Tool: traceTool(), Handler: s.handleTrace},
		{Tool: scheduleTool(), Handler: s.handleSchedule},
	}
}

// --- Tool definitions ---

func askTool() mcp.Tool {
	return mcp.NewTool("steward.ask",
		mcp.WithDescription("Submit a natural-language request. Returns either an execution result or a clarification question with a conversation_id"),
		mcp.WithString("query", mcp.Required(), mcp.Description("The user's request in natural language")),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("ID of the requesting user")),
		mcp.WithString("session_id", mcp.Description("Client session identifier")),
		mcp.WithObject("context", mcp.Description("Additional request context (timezone, locale, ...)")),
	)
}

func replyTool() mcp.Tool {
	return mcp.NewTool("steward.reply",
		mcp.WithDescription("Continue an open clarification conversation with the missing information"),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("ID returned by a previous clarification")),
		mcp.WithString("query", mcp.Required(), mcp.Description("The user's answer")),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("ID of the requesting user")),
		mcp.WithString("session_id", mcp.Description("Client session identifier")),
	)
}

func conversationsTool() mcp.Tool {
	return mcp.NewTool("steward.conversations",
		mcp.WithDescription("List open clarification conversations"),
		mcp.WithString("user_id", mcp.Description("Filter by user")),
		mcp.WithString("intent", mcp.Description("Filter by workflow intent")),
		mcp.WithObject("filter", mcp.Description("Additional criteria (limit, offset)")),
	)
}

func traceTool() mcp.Tool {
	return mcp.NewTool("steward.trace",
		mcp.WithDescription("Inspect the decision trace of a request: raw events or the reconstructed node timeline"),
		mcp.WithString("trace_id", mcp.Required(), mcp.Description("Trace ID returned by steward.ask")),
		mcp.WithString("format", mcp.Enum("events", "timeline"), mcp.Description("Output format (default: events)")),
	)
}

func scheduleTool() mcp.Tool {
	return mcp.NewTool("steward.schedule",
		mcp.WithDescription("Manage recurring briefings"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("create", "list", "enable", "disable", "delete"),
			mcp.Description("Operation to perform"),
		),
		mcp.WithString("user_id", mcp.Description("Owning user (required for create and list)")),
		mcp.WithString("cron", mcp.Description("Cron expression, five fields (required for create)")),
		mcp.WithArray("topics", mcp.Description("Topics the briefing should cover")),
		mcp.WithString("briefing_id", mcp.Description("Target briefing (required for enable, disable, delete)")),
	)
}
