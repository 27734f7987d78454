package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stewardhq/steward/internal/metrics"
	"github.com/stewardhq/steward/pkg/schema"
)

// Node name constants. Router nodes are derived per intent via RouterNode.
const (
	NodeInputValidator         = "input_validator"
	NodeIntentClassifier       = "intent_classifier"
	NodeSupervisor             = "supervisor"
	NodeClarificationHandler   = "clarification_handler"
	NodeExecutionHandler       = "execution_handler"
	NodePolicyGate             = "policy_gate"
	NodeRateLimiter            = "rate_limiter"
	NodeClarificationGenerator = "clarification_generator"
	NodeResultProcessor        = "result_processor"
	NodeTraceUpdater           = "trace_updater"
	NodeErrorHandler           = "error_handler"

	// EndNode marks graph termination; it has no implementation.
	EndNode = "END"
)

// RouterNode returns the graph node name for an intent's router.
func RouterNode(intent schema.Intent) string {
	return string(intent) + "_router"
}

// Node is one state of the workflow graph. Run mutates the state; a returned
// error is recorded on the state and routed to the error handler.
type Node interface {
	Name() string
	Run(ctx context.Context, s *WorkflowState) error
}

// staticEdges are the unconditional transitions. Conditional transitions are
// pure functions of the state, resolved in next().
var staticEdges = map[string]string{
	NodeInputValidator:         NodeIntentClassifier,
	NodeClarificationHandler:   NodeResultProcessor,
	NodeExecutionHandler:       NodePolicyGate,
	NodePolicyGate:             NodeRateLimiter,
	NodeClarificationGenerator: NodeResultProcessor,
	NodeResultProcessor:        NodeTraceUpdater,
	NodeTraceUpdater:           EndNode,
	NodeErrorHandler:           EndNode,
}

// Graph is the compiled workflow state machine: a node set plus the edge
// function. Construction validates that every reachable node exists and that
// every routable intent has a router node.
type Graph struct {
	nodes map[string]Node
}

// NewGraph compiles the node set into a graph.
func NewGraph(nodes []Node) (*Graph, error) {
	g := &Graph{nodes: make(map[string]Node, len(nodes))}
	for _, n := range nodes {
		if n == nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "graph node is nil")
		}
		if _, exists := g.nodes[n.Name()]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeConflict, "duplicate graph node %q", n.Name())
		}
		g.nodes[n.Name()] = n
	}
	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// validate checks structural completeness at startup so a missing node can
// never surface as a mid-request routing failure.
func (g *Graph) validate() error {
	required := []string{
		NodeInputValidator, NodeIntentClassifier, NodeSupervisor,
		NodeClarificationHandler, NodeExecutionHandler, NodePolicyGate,
		NodeRateLimiter, NodeClarificationGenerator, NodeResultProcessor,
		NodeTraceUpdater, NodeErrorHandler,
	}
	for _, name := range required {
		if _, ok := g.nodes[name]; !ok {
			return schema.NewErrorf(schema.ErrCodeValidation, "graph is missing node %q", name)
		}
	}
	for _, intent := range schema.KnownIntents {
		if _, ok := g.nodes[RouterNode(intent)]; !ok {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"graph is missing router node for intent %q", intent)
		}
	}
	for from, to := range staticEdges {
		if to == EndNode {
			continue
		}
		if _, ok := g.nodes[to]; !ok {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"edge %s -> %s targets a missing node", from, to)
		}
	}
	return nil
}

// next is the pure edge-selection function: a projection of the state with
// no hidden inputs.
func (g *Graph) next(current string, s *WorkflowState) (string, error) {
	if to, ok := staticEdges[current]; ok {
		return to, nil
	}

	switch current {
	case NodeIntentClassifier:
		if s.FinalIntent.Routable() {
			return NodeSupervisor, nil
		}
		return NodeClarificationGenerator, nil

	case NodeSupervisor:
		if s.Route == "execute" {
			return NodeExecutionHandler, nil
		}
		return NodeClarificationHandler, nil

	case NodeRateLimiter:
		return RouterNode(s.FinalIntent), nil
	}

	// Router nodes all converge on the result processor.
	if _, ok := g.nodes[current]; ok {
		return NodeResultProcessor, nil
	}
	return "", schema.NewErrorf(schema.ErrCodeValidation, "no edge defined from node %q", current)
}

// Runner executes one request through the graph, strictly sequentially.
type Runner struct {
	graph   *Graph
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  *Tracer
}

// NewRunner creates a Runner. Metrics and tracer may be nil.
func NewRunner(graph *Graph, logger *slog.Logger, m *metrics.Metrics, tracer *Tracer) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{graph: graph, logger: logger, metrics: m, tracer: tracer}
}

// Run drives the state from input_validator to END. Node failures route to
// the error handler; recoverable failures re-enter the failing node up to
// the retry bound. The returned state always carries OutputData.
func (r *Runner) Run(ctx context.Context, s *WorkflowState) (*WorkflowState, error) {
	current := NodeInputValidator
	s.ExecutionStart = time.Now()

	r.trace(ctx, s, "", schema.EventWorkflowStarted, map[string]any{"query": s.Query})

	// Upper bound on node executions: graph depth plus worst-case retries.
	// Guards against an edge-function bug looping forever.
	for steps := 0; steps < 64; steps++ {
		if current == EndNode {
			r.observeCompletion(ctx, s)
			return s, nil
		}
		if err := ctx.Err(); err != nil {
			return s, err
		}

		node, ok := r.graph.nodes[current]
		if !ok {
			return s, schema.NewErrorf(schema.ErrCodeValidation, "unknown graph node %q", current)
		}

		s.CurrentNode = current
		s.VisitedNodes = append(s.VisitedNodes, current)
		r.trace(ctx, s, current, schema.EventNodeEntered, nil)

		started := time.Now()
		err := node.Run(ctx, s)
		if r.metrics != nil {
			r.metrics.ObserveNode(current, time.Since(started))
		}

		if err != nil {
			s.SetError(current, err)
			r.trace(ctx, s, current, schema.EventNodeFailed, map[string]any{"error": err.Error()})
			r.logger.WarnContext(ctx, "node failed",
				"node", current, "error", err, "recoverable", s.Error.Recoverable)

			if s.Error.Recoverable && s.RetryCount < maxNodeRetries {
				s.RetryCount++
				s.Error = nil
				if r.metrics != nil {
					r.metrics.NodeRetries.WithLabelValues(current).Inc()
				}
				r.trace(ctx, s, current, schema.EventNodeRetried, map[string]any{"retry": s.RetryCount})
				continue // re-enter the same node
			}

			current = NodeErrorHandler
			continue
		}

		r.trace(ctx, s, current, schema.EventNodeCompleted, nil)

		next, err := r.graph.next(current, s)
		if err != nil {
			return s, err
		}
		current = next
	}

	return s, schema.NewErrorf(schema.ErrCodeExecution,
		"graph did not terminate within step bound (trace %s)", s.TraceID)
}

func (r *Runner) observeCompletion(ctx context.Context, s *WorkflowState) {
	outcome := s.Outcome()
	elapsed := time.Since(s.ExecutionStart)
	if r.metrics != nil {
		r.metrics.ObserveWorkflow(string(s.FinalIntent), string(outcome), elapsed)
	}

	eventType := schema.EventWorkflowCompleted
	if outcome == schema.OutcomeFailed {
		eventType = schema.EventWorkflowFailed
	}
	r.trace(ctx, s, "", eventType, map[string]any{
		"outcome":        string(outcome),
		"execution_time": elapsed.String(),
		"nodes_visited":  len(s.VisitedNodes),
	})

	r.logger.InfoContext(ctx, "workflow finished",
		"trace_id", s.TraceID,
		"intent", s.FinalIntent,
		"outcome", outcome,
		"nodes", len(s.VisitedNodes),
		"duration", elapsed)
}

func (r *Runner) trace(ctx context.Context, s *WorkflowState, node, eventType string, payload map[string]any) {
	if r.tracer == nil {
		return
	}
	if err := r.tracer.Emit(ctx, s, node, eventType, payload); err != nil {
		r.logger.WarnContext(ctx, "trace emit failed",
			"event_type", eventType, "error", fmt.Errorf("emit: %w", err))
	}
}
