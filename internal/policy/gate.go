package policy

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/stewardhq/steward/pkg/schema"
)

// GateRule is one deterministic execution-gate rule. The expression is CEL
// over the execution payload and must evaluate to true for the request to
// pass. Rules are compiled once at startup; a rule that fails to compile is
// a configuration error, not a runtime denial.
type GateRule struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Message    string `json:"message,omitempty"`
}

// DefaultGateRules are the built-in execution-gate rules applied to every
// payload that reaches the policy_gate node.
func DefaultGateRules() []GateRule {
	return []GateRule{
		{
			Name:       "authenticated_user",
			Expression: `payload.user_id != ""`,
			Message:    "execution requires an authenticated user",
		},
		{
			Name:       "operation_named",
			Expression: `payload.operation_type != "" && payload.operation_type != "unknown"`,
			Message:    "execution requires a resolved operation type",
		},
		{
			Name:       "bounded_bulk",
			Expression: `!("todo_ids" in params) || size(params["todo_ids"]) <= 50`,
			Message:    "bulk operations are limited to 50 items",
		},
	}
}

// compiledRule pairs a rule with its compiled CEL program.
type compiledRule struct {
	rule GateRule
	prg  cel.Program
}

// Gate evaluates compiled gate rules against execution payloads.
// Thread-safe: programs are immutable after construction.
type Gate struct {
	rules []compiledRule
}

// NewGate compiles the given rules into a Gate. The CEL environment exposes:
//   - payload: map(string, dyn) — the execution payload envelope
//   - params:  map(string, dyn) — the proposal parameters
//   - context: map(string, dyn) — the request context
func NewGate(rules []GateRule) (*Gate, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)
	env, err := cel.NewEnv(
		cel.Variable("payload", mapType),
		cel.Variable("params", mapType),
		cel.Variable("context", mapType),
	)
	if err != nil {
		return nil, fmt.Errorf("create gate CEL environment: %w", err)
	}

	g := &Gate{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"gate rule %q compile error: %s", r.Name, issues.Err().Error()).
				WithCause(issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"gate rule %q program error: %s", r.Name, err.Error()).
				WithCause(err)
		}
		g.rules = append(g.rules, compiledRule{rule: r, prg: prg})
	}
	return g, nil
}

// Evaluate runs every rule against the payload and returns the denial
// messages, in rule order. An empty slice means the payload may execute.
// Denials are data, never errors; only rule-evaluation failures error.
func (g *Gate) Evaluate(ctx context.Context, payload *schema.ExecutionPayload) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	activation := map[string]any{
		"payload": map[string]any{
			"workflow_type":  string(payload.WorkflowType),
			"operation_type": payload.OperationType,
			"user_id":        payload.UserID,
		},
		"params":  nonNil(payload.Parameters),
		"context": nonNil(payload.Context),
	}

	var denials []string
	for _, cr := range g.rules {
		out, _, err := cr.prg.Eval(activation)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodePolicy,
				"gate rule %q evaluation failed: %s", cr.rule.Name, err.Error()).
				WithCause(err)
		}
		passed, ok := out.Value().(bool)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"gate rule %q did not evaluate to a boolean", cr.rule.Name)
		}
		if !passed {
			msg := cr.rule.Message
			if msg == "" {
				msg = fmt.Sprintf("denied by gate rule %q", cr.rule.Name)
			}
			denials = append(denials, msg)
		}
	}
	return denials, nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
