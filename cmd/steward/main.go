package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stewardhq/steward/internal/classifier"
	"github.com/stewardhq/steward/internal/engine"
	"github.com/stewardhq/steward/internal/llm"
	"github.com/stewardhq/steward/internal/logging"
	"github.com/stewardhq/steward/internal/metrics"
	"github.com/stewardhq/steward/internal/policy"
	"github.com/stewardhq/steward/internal/routers"
	"github.com/stewardhq/steward/internal/scheduler"
	"github.com/stewardhq/steward/internal/store"
	"github.com/stewardhq/steward/internal/streaming"
	"github.com/stewardhq/steward/internal/supervisor"
	"github.com/stewardhq/steward/pkg/mcp"
	"github.com/stewardhq/steward/pkg/schema"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "steward:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence.
	if err := os.MkdirAll(stewardDir(), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	// Ambient infrastructure.
	hub := streaming.NewMemoryHub()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	tracer := engine.NewTracer(engine.SinkFromTraceLog(store.NewTraceLog(st)), hub)

	// LLM collaborators and parsing.
	client := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	parser, err := llm.NewParser()
	if err != nil {
		return fmt.Errorf("compile response schemas: %w", err)
	}

	// Classification and supervision.
	thresholds := schema.DefaultThresholds()
	cls, err := classifier.New(client, parser, logger)
	if err != nil {
		return fmt.Errorf("build classifier: %w", err)
	}

	policies, err := policy.DefaultRegistry()
	if err != nil {
		return fmt.Errorf("build policy registry: %w", err)
	}
	constraints := policy.NewConstraintEngine()
	ttl := time.Duration(cfg.ConversationTTLMinutes) * time.Minute
	orch := supervisor.NewOrchestrator(supervisor.NewDurableConversationStore(st, ttl), m, logger)

	todoSup, err := supervisor.NewTodoSupervisor(client, parser, nil, policies, constraints, thresholds, logger)
	if err != nil {
		return fmt.Errorf("build todo supervisor: %w", err)
	}
	if err := orch.Register(todoSup); err != nil {
		return err
	}
	chatSup, err := supervisor.NewChatSupervisor(client, parser, nil, policies, constraints, thresholds, logger)
	if err != nil {
		return fmt.Errorf("build chat supervisor: %w", err)
	}
	if err := orch.Register(chatSup); err != nil {
		return err
	}

	// Execution surface.
	gate, err := policy.NewGate(policy.DefaultGateRules())
	if err != nil {
		return fmt.Errorf("compile gate rules: %w", err)
	}
	registry := routers.NewRegistry()
	if err := registry.Register(routers.NewTodoRouter()); err != nil {
		return err
	}
	if err := registry.Register(routers.NewChatRouter(client)); err != nil {
		return err
	}

	eng, err := engine.New(engine.Config{
		Classifier:   cls,
		Orchestrator: orch,
		Gate:         gate,
		Routers:      registry,
		Thresholds:   thresholds,
		RateLimiter:  engine.NewRateLimiter(cfg.RatePerMinute, cfg.RateBurst),
		Metrics:      m,
		Tracer:       tracer,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	// Briefings and conversation expiry.
	sched := scheduler.NewScheduler(st, &briefingRunner{engine: eng}, orch, hub, ttl, logger)
	if err := sched.RecoverMissed(ctx); err != nil {
		logger.Warn("briefing recovery failed", "error", err)
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = sched.Stop() }()

	// Metrics endpoint.
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// MCP server on stdio.
	server := mcp.NewStewardServer(mcp.StewardServerDeps{
		Runner:    eng,
		Store:     st,
		Scheduler: sched,
		Hub:       hub,
		Logger:    logger,
	})
	go func() {
		if err := server.WatchHub(ctx); err != nil {
			logger.Warn("event hub watcher stopped", "error", err)
		}
	}()

	logger.Info("steward started", "db", cfg.DBPath, "metrics", cfg.MetricsAddr)
	return server.Serve(ctx)
}

// briefingRunner drives a due briefing through the workflow graph as a
// normal request owned by the briefing's user.
type briefingRunner struct {
	engine *engine.Engine
}

func (r *briefingRunner) RunBriefing(ctx context.Context, b *store.Briefing) error {
	query := "Give me my briefing"
	var topics []string
	if len(b.Topics) > 0 {
		if err := json.Unmarshal(b.Topics, &topics); err == nil && len(topics) > 0 {
			query = "Give me my briefing covering " + strings.Join(topics, ", ")
		}
	}

	state, err := r.engine.Execute(ctx, engine.Request{
		UserID: b.UserID,
		Query:  query,
	})
	if err != nil {
		return err
	}
	if state.Error != nil {
		return fmt.Errorf("briefing workflow failed at %s: %s", state.Error.Node, state.Error.Message)
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	// stdout carries the MCP transport; logs go to stderr.
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
