package engine

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/stewardhq/steward/internal/classifier"
	"github.com/stewardhq/steward/internal/logging"
	"github.com/stewardhq/steward/internal/metrics"
	"github.com/stewardhq/steward/internal/policy"
	"github.com/stewardhq/steward/internal/routers"
	"github.com/stewardhq/steward/internal/supervisor"
	"github.com/stewardhq/steward/pkg/schema"
)

// Config assembles an Engine. Classifier, Orchestrator, Gate, and Routers
// are required; the rest default sensibly.
type Config struct {
	Classifier   *classifier.Classifier
	Orchestrator *supervisor.Orchestrator
	Gate         *policy.Gate
	Routers      *routers.Registry
	Thresholds   schema.Thresholds
	RateLimiter  *RateLimiter
	Metrics      *metrics.Metrics
	Tracer       *Tracer
	Logger       *slog.Logger
}

// Engine ties the graph together and runs requests through it.
type Engine struct {
	runner *Runner
	logger *slog.Logger
}

// New validates the config, builds the node set, and compiles the graph.
func New(cfg Config) (*Engine, error) {
	if cfg.Classifier == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "engine classifier is nil")
	}
	if cfg.Orchestrator == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "engine orchestrator is nil")
	}
	if cfg.Gate == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "engine policy gate is nil")
	}
	if cfg.Routers == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "engine router registry is nil")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	thresholds := cfg.Thresholds
	if thresholds == (schema.Thresholds{}) {
		thresholds = schema.DefaultThresholds()
	}
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = NewRateLimiter(0, 0)
	}

	nodes := []Node{
		&inputValidator{},
		&intentClassifier{classifier: cfg.Classifier, thresholds: thresholds, metrics: cfg.Metrics, tracer: cfg.Tracer},
		&supervisorNode{orchestrator: cfg.Orchestrator, metrics: cfg.Metrics, tracer: cfg.Tracer},
		&clarificationHandler{},
		&executionHandler{},
		&policyGate{gate: cfg.Gate, metrics: cfg.Metrics, tracer: cfg.Tracer},
		&rateLimiterNode{limiter: limiter, metrics: cfg.Metrics, tracer: cfg.Tracer},
		&clarificationGenerator{tracer: cfg.Tracer},
		&resultProcessor{},
		&traceUpdater{tracer: cfg.Tracer, metrics: cfg.Metrics},
		&errorHandler{},
	}
	for _, intent := range schema.KnownIntents {
		nodes = append(nodes, &intentRouter{intent: intent, registry: cfg.Routers, tracer: cfg.Tracer})
	}

	graph, err := NewGraph(nodes)
	if err != nil {
		return nil, err
	}

	return &Engine{
		runner: NewRunner(graph, logger, cfg.Metrics, cfg.Tracer),
		logger: logger,
	}, nil
}

// Request is one user turn entering the graph.
type Request struct {
	UserID         string
	SessionID      string
	Query          string
	ConversationID string
	Context        map[string]any
}

// Execute runs one request through the graph and returns the final state.
// OutputData always carries either an execution result, a clarification
// payload, or the terminal error payload.
func (e *Engine) Execute(ctx context.Context, req Request) (*WorkflowState, error) {
	traceID := uuid.NewString()
	ctx = logging.WithIDs(ctx, traceID, req.UserID, req.ConversationID)

	s := NewWorkflowState(traceID, req.UserID, req.SessionID, req.Query, req.Context)
	s.ConversationID = req.ConversationID

	return e.runner.Run(ctx, s)
}
