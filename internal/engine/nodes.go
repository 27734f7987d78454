package engine

import (
	"context"
	"strings"
	"time"

	"github.com/stewardhq/steward/internal/classifier"
	"github.com/stewardhq/steward/internal/metrics"
	"github.com/stewardhq/steward/internal/policy"
	"github.com/stewardhq/steward/internal/routers"
	"github.com/stewardhq/steward/internal/supervisor"
	"github.com/stewardhq/steward/pkg/schema"
)

// --- input_validator ---

// inputValidator is the single fatal gate: a structurally invalid request
// never reaches classification.
type inputValidator struct{}

const maxQueryLength = 10000

func (n *inputValidator) Name() string { return NodeInputValidator }

func (n *inputValidator) Run(_ context.Context, s *WorkflowState) error {
	if strings.TrimSpace(s.Query) == "" {
		return schema.NewError(schema.ErrCodeValidation, "query is empty").
			WithNode(NodeInputValidator)
	}
	if len(s.Query) > maxQueryLength {
		return schema.NewErrorf(schema.ErrCodeValidation, "query exceeds %d characters", maxQueryLength).
			WithNode(NodeInputValidator)
	}
	if s.UserID == "" {
		return schema.NewError(schema.ErrCodeValidation, "user_id is required").
			WithNode(NodeInputValidator)
	}
	s.Query = strings.TrimSpace(s.Query)
	if s.Context == nil {
		s.Context = make(map[string]any)
	}
	s.Context["user_id"] = s.UserID
	s.Context["query"] = s.Query
	return nil
}

// --- intent_classifier ---

type intentClassifier struct {
	classifier *classifier.Classifier
	thresholds schema.Thresholds
	metrics    *metrics.Metrics
	tracer     *Tracer
}

func (n *intentClassifier) Name() string { return NodeIntentClassifier }

func (n *intentClassifier) Run(ctx context.Context, s *WorkflowState) error {
	c := n.classifier.Classify(ctx, s.Query)
	resolution := classifier.Resolve(c, n.thresholds)

	s.Classification = &c
	s.FinalIntent = resolution.FinalIntent
	s.UncertainClass = resolution.Uncertain
	s.ClassificationDetails = resolution.Details

	if n.metrics != nil {
		n.metrics.ObserveClassification(string(resolution.FinalIntent), c.Confidence,
			n.thresholds.AmbiguousBelow, n.thresholds.ConfidentAt)
	}
	if n.tracer != nil {
		eventType := schema.EventIntentClassified
		if resolution.FinalIntent == schema.IntentAmbiguous {
			eventType = schema.EventIntentAmbiguous
		}
		_ = n.tracer.Emit(ctx, s, NodeIntentClassifier, eventType, map[string]any{
			"intent":     string(resolution.FinalIntent),
			"confidence": c.Confidence,
			"uncertain":  resolution.Uncertain,
		})
	}
	return nil
}

// --- supervisor ---

type supervisorNode struct {
	orchestrator *supervisor.Orchestrator
	metrics      *metrics.Metrics
	tracer       *Tracer
}

func (n *supervisorNode) Name() string { return NodeSupervisor }

func (n *supervisorNode) Run(ctx context.Context, s *WorkflowState) error {
	result := n.orchestrator.Supervise(ctx, s.FinalIntent, supervisor.Request{
		Query:          s.Query,
		UserID:         s.UserID,
		SessionID:      s.SessionID,
		ConversationID: s.ConversationID,
		Context:        s.Context,
	})

	s.Supervision = &result
	s.ConversationID = result.ConversationID
	s.Route = supervisor.Route(&result)

	if n.metrics != nil {
		n.metrics.ObserveSupervision(string(s.FinalIntent), result.ReadyToExecute)
	}
	if n.tracer != nil {
		eventType := schema.EventSupervisionClarify
		if result.ReadyToExecute {
			eventType = schema.EventSupervisionReady
		}
		_ = n.tracer.Emit(ctx, s, NodeSupervisor, eventType, map[string]any{
			"operation_type": result.OperationType,
			"confidence":     result.Confidence,
			"violations":     len(result.PolicyViolations),
		})
	}
	return nil
}

// --- clarification_handler ---

// clarificationHandler converts a non-ready supervision result into the
// clarification payload surfaced to the user. Clarification turns never
// execute.
type clarificationHandler struct{}

func (n *clarificationHandler) Name() string { return NodeClarificationHandler }

func (n *clarificationHandler) Run(_ context.Context, s *WorkflowState) error {
	result := s.Supervision
	s.OutputData = map[string]any{
		"type":            "clarification_request",
		"message":         result.ClarificationMessage,
		"missing_context": result.MissingContext,
		"conversation_id": result.ConversationID,
		"intent":          string(s.FinalIntent),
		"suggestions":     clarificationSuggestions(s.FinalIntent),
	}
	return nil
}

// --- execution_handler ---

type executionHandler struct{}

func (n *executionHandler) Name() string { return NodeExecutionHandler }

func (n *executionHandler) Run(_ context.Context, s *WorkflowState) error {
	result := s.Supervision
	s.Payload = &schema.ExecutionPayload{
		WorkflowType:  s.FinalIntent,
		OperationType: result.OperationType,
		Parameters:    result.Parameters,
		UserID:        s.UserID,
		Context:       s.Context,
		SupervisionMetadata: map[string]any{
			"confidence": result.Confidence,
		},
	}
	return nil
}

// --- policy_gate ---

type policyGate struct {
	gate    *policy.Gate
	metrics *metrics.Metrics
	tracer  *Tracer
}

func (n *policyGate) Name() string { return NodePolicyGate }

func (n *policyGate) Run(ctx context.Context, s *WorkflowState) error {
	denials, err := n.gate.Evaluate(ctx, s.Payload)
	if err != nil {
		return err
	}
	if len(denials) == 0 {
		return nil
	}

	s.GateDenials = denials
	if n.metrics != nil {
		n.metrics.GateDenials.Inc()
	}
	if n.tracer != nil {
		_ = n.tracer.Emit(ctx, s, NodePolicyGate, schema.EventPolicyGateDenied, map[string]any{
			"denials": denials,
		})
	}
	// Gate denials are deterministic; retrying cannot change the verdict.
	return schema.NewErrorf(schema.ErrCodePolicy,
		"execution denied by policy gate: %s", strings.Join(denials, "; ")).
		WithNode(NodePolicyGate)
}

// --- rate_limiter ---

type rateLimiterNode struct {
	limiter *RateLimiter
	metrics *metrics.Metrics
	tracer  *Tracer
}

func (n *rateLimiterNode) Name() string { return NodeRateLimiter }

func (n *rateLimiterNode) Run(ctx context.Context, s *WorkflowState) error {
	if n.limiter.Allow(s.UserID) {
		return nil
	}
	if n.metrics != nil {
		n.metrics.RateLimited.Inc()
	}
	if n.tracer != nil {
		_ = n.tracer.Emit(ctx, s, NodeRateLimiter, schema.EventRateLimited, nil)
	}
	// Transient by definition; the retry loop re-enters after the handler
	// classifies it recoverable.
	return schema.NewErrorf(schema.ErrCodeRateLimited,
		"rate limit exceeded for user %s", s.UserID).
		WithNode(NodeRateLimiter)
}

// --- {intent}_router ---

type intentRouter struct {
	intent   schema.Intent
	registry *routers.Registry
	tracer   *Tracer
}

func (n *intentRouter) Name() string { return RouterNode(n.intent) }

func (n *intentRouter) Run(ctx context.Context, s *WorkflowState) error {
	if n.tracer != nil {
		_ = n.tracer.Emit(ctx, s, n.Name(), schema.EventExecutionDispatched, map[string]any{
			"operation_type": s.Payload.OperationType,
		})
	}
	out, err := n.registry.Execute(ctx, s.Payload)
	if err != nil {
		return err
	}
	s.ExecutionResult = out
	return nil
}

// --- clarification_generator ---

// clarificationGenerator handles queries that never reached a supervisor:
// unknown or ambiguous classifications.
type clarificationGenerator struct {
	tracer *Tracer
}

func (n *clarificationGenerator) Name() string { return NodeClarificationGenerator }

func (n *clarificationGenerator) Run(ctx context.Context, s *WorkflowState) error {
	message := "I'm not sure what you'd like me to do. Could you rephrase that?"
	var suggestions []string

	if s.FinalIntent == schema.IntentAmbiguous && s.ClassificationDetails != nil {
		if original, ok := s.ClassificationDetails["original_intent"].(string); ok && original != string(schema.IntentUnknown) {
			message = "Did you mean something related to " + original + "? Tell me a bit more and I'll take it from there."
		}
		if alts, ok := s.ClassificationDetails["alternative_intents"].([]string); ok {
			suggestions = alts
		}
	}
	if len(suggestions) == 0 {
		suggestions = clarificationSuggestions(s.FinalIntent)
	}

	s.OutputData = map[string]any{
		"type":            "clarification_request",
		"message":         message,
		"missing_context": []string{"intent"},
		"conversation_id": s.ConversationID,
		"intent":          string(s.FinalIntent),
		"suggestions":     suggestions,
	}
	if n.tracer != nil {
		_ = n.tracer.Emit(ctx, s, NodeClarificationGenerator, schema.EventClarificationIssued, nil)
	}
	return nil
}

// --- result_processor ---

type resultProcessor struct{}

func (n *resultProcessor) Name() string { return NodeResultProcessor }

func (n *resultProcessor) Run(_ context.Context, s *WorkflowState) error {
	if s.OutputData == nil {
		if s.ExecutionResult != nil {
			s.OutputData = s.ExecutionResult
		} else {
			s.OutputData = map[string]any{}
		}
	}
	s.OutputData["metadata"] = map[string]any{
		"workflow_type":  string(s.FinalIntent),
		"execution_time": time.Since(s.ExecutionStart).String(),
		"nodes_visited":  append([]string{}, s.VisitedNodes...),
	}
	return nil
}

// --- trace_updater ---

// traceUpdater closes out the request's trace. The runner emits the terminal
// workflow event itself; this node records conversation disposition.
type traceUpdater struct {
	tracer  *Tracer
	metrics *metrics.Metrics
}

func (n *traceUpdater) Name() string { return NodeTraceUpdater }

func (n *traceUpdater) Run(ctx context.Context, s *WorkflowState) error {
	if s.Supervision == nil {
		return nil
	}
	if s.Supervision.ReadyToExecute {
		if n.tracer != nil {
			_ = n.tracer.Emit(ctx, s, NodeTraceUpdater, schema.EventConversationClosed, nil)
		}
	} else if s.ConversationID != "" && n.tracer != nil {
		_ = n.tracer.Emit(ctx, s, NodeTraceUpdater, schema.EventConversationResumed, map[string]any{
			"conversation_id": s.ConversationID,
		})
	}
	return nil
}

// --- error_handler ---

// errorHandler is entered only when a node recorded a non-recoverable error
// (or retries are exhausted). It synthesizes the terminal failure payload.
type errorHandler struct{}

func (n *errorHandler) Name() string { return NodeErrorHandler }

func (n *errorHandler) Run(_ context.Context, s *WorkflowState) error {
	nodeErr := s.Error
	message := "Something went wrong while handling your request."
	if nodeErr != nil && nodeErr.Code == schema.ErrCodeValidation {
		message = nodeErr.Message
	}

	s.OutputData = map[string]any{
		"type":        "error",
		"message":     message,
		"error":       nodeErr,
		"recoverable": false,
		"suggestions": []string{
			"Try rephrasing your request",
			"Break the request into smaller steps",
			"Try again in a few moments",
		},
		"metadata": map[string]any{
			"workflow_type":  string(s.FinalIntent),
			"execution_time": time.Since(s.ExecutionStart).String(),
			"nodes_visited":  append([]string{}, s.VisitedNodes...),
		},
	}
	return nil
}

// clarificationSuggestions offers example phrasings per intent family.
func clarificationSuggestions(intent schema.Intent) []string {
	switch intent {
	case schema.IntentTodo:
		return []string{"Add buy milk to my list", "Show my todos", "Mark my essay as done"}
	case schema.IntentCalendar:
		return []string{"Schedule a meeting tomorrow at 3pm", "What's on my calendar today?"}
	case schema.IntentTask:
		return []string{"Create a task to finish the report by Friday"}
	default:
		return []string{
			"Add something to my todo list",
			"Check my calendar",
			"Summarize my day",
		}
	}
}
