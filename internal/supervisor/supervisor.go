// Package supervisor implements the two-phase supervision contract: a
// probabilistic LLM proposal phase followed by deterministic policy
// enforcement, folded into a uniform SupervisionResult. The orchestrator
// dispatches requests to per-workflow supervisors and owns the conversation
// lifecycle around non-ready results.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stewardhq/steward/internal/llm"
	"github.com/stewardhq/steward/internal/policy"
	"github.com/stewardhq/steward/pkg/schema"
)

// genericClarification is surfaced when the model gave us nothing usable.
const genericClarification = "I could not work out what you want to do. Could you rephrase your request?"

// lowConfidenceClarification is surfaced when the proposal parsed but the
// model's own confidence is below the readiness floor.
const lowConfidenceClarification = "I'm not confident I understood that correctly. Could you give me a bit more detail?"

// Request carries one supervision turn.
type Request struct {
	Query          string
	UserID         string
	SessionID      string
	ConversationID string
	Context        map[string]any
}

// Supervisor is the contract every workflow supervisor satisfies. Supervise
// must not fail on LLM or parse errors; those degrade to a non-ready result.
// The returned error is reserved for context cancellation.
type Supervisor interface {
	WorkflowType() schema.Intent
	Supervise(ctx context.Context, req Request) (schema.SupervisionResult, error)
}

// EnrichFunc lets a workflow supervisor normalize proposal parameters after
// a successful parse: relative date resolution, priority and tag inference.
type EnrichFunc func(params map[string]any, query string, now time.Time)

// Base runs one supervision cycle for a single workflow family. Per-workflow
// supervisors are a Base configured with their validator, operation
// catalogue, and enrichment hook.
type Base struct {
	workflowType   schema.Intent
	proposer       llm.Proposer
	parser         *llm.Parser
	contextBuilder llm.ContextBuilder
	validator      policy.Validator
	engine         *policy.ConstraintEngine
	operations     []OperationSpec
	enrich         EnrichFunc
	thresholds     schema.Thresholds
	history        *HistoryLog
	logger         *slog.Logger
	clock          func() time.Time
}

// Config assembles a Base supervisor. Proposer, Parser, Validator, and
// Engine are required; ContextBuilder and Enrich are optional.
type Config struct {
	WorkflowType   schema.Intent
	Proposer       llm.Proposer
	Parser         *llm.Parser
	ContextBuilder llm.ContextBuilder
	Validator      policy.Validator
	Engine         *policy.ConstraintEngine
	Operations     []OperationSpec
	Enrich         EnrichFunc
	Thresholds     schema.Thresholds
	Logger         *slog.Logger
}

// NewBase validates the config and returns a ready supervisor.
func NewBase(cfg Config) (*Base, error) {
	if cfg.Proposer == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "supervisor proposer is nil")
	}
	if cfg.Parser == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "supervisor parser is nil")
	}
	if cfg.Validator == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "supervisor validator is nil")
	}
	if cfg.Engine == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "supervisor constraint engine is nil")
	}
	if !cfg.WorkflowType.Routable() {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "workflow type %q is not a known intent", cfg.WorkflowType)
	}
	if cfg.WorkflowType != cfg.Validator.WorkflowType() {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"validator covers %q, supervisor covers %q", cfg.Validator.WorkflowType(), cfg.WorkflowType)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	thresholds := cfg.Thresholds
	if thresholds == (schema.Thresholds{}) {
		thresholds = schema.DefaultThresholds()
	}

	return &Base{
		workflowType:   cfg.WorkflowType,
		proposer:       cfg.Proposer,
		parser:         cfg.Parser,
		contextBuilder: cfg.ContextBuilder,
		validator:      cfg.Validator,
		engine:         cfg.Engine,
		operations:     cfg.Operations,
		enrich:         cfg.Enrich,
		thresholds:     thresholds,
		history:        NewHistoryLog(),
		logger:         logger,
		clock:          time.Now,
	}, nil
}

func (b *Base) WorkflowType() schema.Intent {
	return b.workflowType
}

// History exposes the bounded conversation log so the orchestrator can clear
// it when a conversation completes or expires.
func (b *Base) History() *HistoryLog {
	return b.history
}

// Supervise runs one propose/validate/synthesize cycle.
func (b *Base) Supervise(ctx context.Context, req Request) (schema.SupervisionResult, error) {
	if err := ctx.Err(); err != nil {
		return schema.SupervisionResult{}, err
	}

	reqCtx := b.buildRequestContext(ctx, req)
	proposal := b.propose(ctx, req, reqCtx)

	enforcement := policy.Enforce(b.validator, b.engine, &proposal, reqCtx)

	result := b.synthesize(req, &proposal, &enforcement)

	b.history.Append(req.ConversationID, "user", req.Query)
	if result.ClarificationMessage != "" {
		b.history.Append(req.ConversationID, "assistant", result.ClarificationMessage)
	}

	b.logger.DebugContext(ctx, "supervision cycle complete",
		"workflow_type", b.workflowType,
		"operation_type", result.OperationType,
		"ready", result.ReadyToExecute,
		"confidence", result.Confidence,
		"violations", len(result.PolicyViolations))

	return result, nil
}

// buildRequestContext merges the caller-supplied context with the context
// builder's output. Builder failures are logged and tolerated; supervision
// proceeds with what the caller gave us.
func (b *Base) buildRequestContext(ctx context.Context, req Request) map[string]any {
	merged := make(map[string]any, len(req.Context)+2)
	for k, v := range req.Context {
		merged[k] = v
	}

	if b.contextBuilder != nil {
		built, err := b.contextBuilder.BuildContext(ctx, req.UserID, req.SessionID,
			string(b.workflowType), req.Query, nil)
		if err != nil {
			b.logger.WarnContext(ctx, "context builder failed, continuing without",
				"workflow_type", b.workflowType, "error", err)
		} else {
			for k, v := range built {
				if _, exists := merged[k]; !exists {
					merged[k] = v
				}
			}
		}
	}

	if req.UserID != "" {
		merged["user_id"] = req.UserID
	}
	return merged
}

// propose runs Phase A. Every failure path returns the synthesized
// zero-confidence fallback proposal instead of an error.
func (b *Base) propose(ctx context.Context, req Request, reqCtx map[string]any) schema.LLMProposal {
	prompt := BuildProposalPrompt(b.workflowType, b.operations, req.Query,
		renderContext(reqCtx), b.history.Render(req.ConversationID))

	raw, err := b.proposer.Propose(ctx, prompt)
	if err != nil {
		b.logger.WarnContext(ctx, "proposal call failed",
			"workflow_type", b.workflowType, "error", err)
		return fallbackProposal()
	}

	proposal, tier := b.parser.ParseProposal(raw)
	switch tier {
	case llm.TierFailed:
		b.logger.WarnContext(ctx, "proposal response unparseable",
			"workflow_type", b.workflowType)
		return fallbackProposal()
	case llm.TierFallback:
		b.logger.DebugContext(ctx, "proposal recovered via lenient parse",
			"workflow_type", b.workflowType, "operation_type", proposal.OperationType)
	}

	if proposal.Parameters == nil {
		proposal.Parameters = make(map[string]any)
	}
	if b.enrich != nil {
		b.enrich(proposal.Parameters, req.Query, b.clock())
	}
	return proposal
}

func fallbackProposal() schema.LLMProposal {
	return schema.LLMProposal{
		OperationType:           "unknown",
		Parameters:              map[string]any{},
		Confidence:              0,
		MissingContext:          []string{"operation_type"},
		ClarificationSuggestion: genericClarification,
	}
}

// synthesize runs Phase C: readiness plus the clarification message
// precedence chain (violations, then the model's own suggestion, then the
// missing-context prompt, then the generic low-confidence prompt).
func (b *Base) synthesize(req Request, proposal *schema.LLMProposal, enforcement *schema.PolicyEnforcement) schema.SupervisionResult {
	// A required field the model already reported as missing context is not
	// re-surfaced as a violation; the model's own clarification question
	// reads better than the rule text, and missing_context still blocks
	// readiness on its own.
	acknowledged := make(map[string]bool, len(proposal.MissingContext))
	for _, f := range proposal.MissingContext {
		acknowledged[f] = true
	}
	violations := make([]string, 0, len(enforcement.Violations)+len(enforcement.PermissionErrors))
	for _, v := range enforcement.Violations {
		if f, ok := strings.CutPrefix(v, "Missing required field: "); ok && acknowledged[f] {
			continue
		}
		violations = append(violations, v)
	}
	violations = append(violations, enforcement.PermissionErrors...)

	result := schema.SupervisionResult{
		OperationType:    proposal.OperationType,
		Parameters:       proposal.Parameters,
		MissingContext:   proposal.MissingContext,
		Confidence:       proposal.Confidence,
		PolicyViolations: violations,
		ConversationID:   req.ConversationID,
	}
	result.ReadyToExecute = result.Ready(b.thresholds.ReadinessFloor)
	if result.ReadyToExecute {
		return result
	}

	switch {
	case len(violations) > 0:
		result.ClarificationMessage = formatViolations(violations)
	case proposal.ClarificationSuggestion != "":
		result.ClarificationMessage = proposal.ClarificationSuggestion
	case len(proposal.MissingContext) > 0:
		result.ClarificationMessage = fmt.Sprintf("I need to know: %s",
			strings.Join(proposal.MissingContext, ", "))
	default:
		result.ClarificationMessage = lowConfidenceClarification
	}
	return result
}

func formatViolations(violations []string) string {
	if len(violations) == 1 {
		return violations[0]
	}
	var b strings.Builder
	b.WriteString("I can't do that yet:\n")
	for _, v := range violations {
		fmt.Fprintf(&b, "- %s\n", v)
	}
	return strings.TrimRight(b.String(), "\n")
}
