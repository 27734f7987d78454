package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/pkg/schema"
)

func newTestEngine(t *testing.T) *ConstraintEngine {
	t.Helper()
	return NewConstraintEngine()
}

func authedCtx() map[string]any {
	return map[string]any{"user_id": "user-1"}
}

func TestEnforceValidProposal(t *testing.T) {
	v := NewTodoValidator()
	engine := newTestEngine(t)

	proposal := &schema.LLMProposal{
		OperationType: "create",
		Parameters: map[string]any{
			"title":    "buy milk",
			"priority": "medium",
		},
		Confidence: 0.9,
	}

	result := Enforce(v, engine, proposal, authedCtx())

	assert.True(t, result.Valid)
	assert.Empty(t, result.Violations)
	assert.Empty(t, result.PermissionErrors)
	assert.Equal(t, []string{"title"}, result.RequiredFields)
}

func TestEnforceMissingRequiredField(t *testing.T) {
	v := NewTodoValidator()
	engine := newTestEngine(t)

	proposal := &schema.LLMProposal{
		OperationType: "create",
		Parameters:    map[string]any{"priority": "high"},
	}

	result := Enforce(v, engine, proposal, authedCtx())

	assert.False(t, result.Valid)
	assert.Contains(t, result.Violations, "Missing required field: title")
}

func TestEnforceEmptyStringCountsAsMissing(t *testing.T) {
	v := NewTodoValidator()
	engine := newTestEngine(t)

	proposal := &schema.LLMProposal{
		OperationType: "update",
		Parameters:    map[string]any{"todo_id": "   "},
	}

	result := Enforce(v, engine, proposal, authedCtx())

	assert.False(t, result.Valid)
	assert.Contains(t, result.Violations, "Missing required field: todo_id")
}

func TestEnforceInvalidAllowedValue(t *testing.T) {
	v := NewTodoValidator()
	engine := newTestEngine(t)

	proposal := &schema.LLMProposal{
		OperationType: "create",
		Parameters: map[string]any{
			"title":    "buy milk",
			"priority": "critical",
		},
	}

	result := Enforce(v, engine, proposal, authedCtx())

	assert.False(t, result.Valid)
	assert.Contains(t, result.Violations,
		"Invalid value 'critical' for field 'priority'. Allowed: low, medium, high")
	assert.Equal(t, []string{"low", "medium", "high"}, result.AllowedValues["priority"])
}

func TestEnforceConstraintViolation(t *testing.T) {
	v := NewTodoValidator()
	engine := newTestEngine(t)

	long := make([]byte, 201)
	for i := range long {
		long[i] = 'x'
	}

	proposal := &schema.LLMProposal{
		OperationType: "create",
		Parameters:    map[string]any{"title": string(long)},
	}

	result := Enforce(v, engine, proposal, authedCtx())

	assert.False(t, result.Valid)
	require.Len(t, result.Violations, 1)
	assert.Contains(t, result.Violations[0], "Value for field 'title' violates constraint")
}

func TestEnforceTagsConstraint(t *testing.T) {
	v := NewTodoValidator()
	engine := newTestEngine(t)

	tooMany := make([]any, 11)
	for i := range tooMany {
		tooMany[i] = "tag"
	}

	cases := []struct {
		name  string
		tags  []any
		valid bool
	}{
		{"within limit", []any{"shopping", "errand"}, true},
		{"over limit", tooMany, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			proposal := &schema.LLMProposal{
				OperationType: "create",
				Parameters: map[string]any{
					"title": "buy milk",
					"tags":  tc.tags,
				},
			}
			result := Enforce(v, engine, proposal, authedCtx())
			assert.Equal(t, tc.valid, result.Valid)
		})
	}
}

func TestEnforcePermissionErrors(t *testing.T) {
	v := NewTodoValidator()
	engine := newTestEngine(t)

	proposal := &schema.LLMProposal{
		OperationType: "list",
		Parameters:    map[string]any{},
	}

	result := Enforce(v, engine, proposal, map[string]any{})

	assert.False(t, result.Valid)
	assert.Empty(t, result.Violations)
	require.Len(t, result.PermissionErrors, 1)
	assert.Contains(t, result.PermissionErrors[0], "authenticated user")
}

func TestEnforceUnknownOperation(t *testing.T) {
	v := NewTodoValidator()
	engine := newTestEngine(t)

	proposal := &schema.LLMProposal{
		OperationType: "teleport",
		Parameters:    map[string]any{},
	}

	result := Enforce(v, engine, proposal, authedCtx())

	assert.False(t, result.Valid)
	assert.Contains(t, result.Violations, "Missing required field: operation_type")
}

// Enforcing the same proposal twice yields identical output.
func TestEnforceIdempotent(t *testing.T) {
	v := NewTodoValidator()
	engine := newTestEngine(t)

	proposal := &schema.LLMProposal{
		OperationType: "create",
		Parameters: map[string]any{
			"title":    "",
			"priority": "urgent",
			"status":   "done",
		},
	}

	first := Enforce(v, engine, proposal, map[string]any{})
	second := Enforce(v, engine, proposal, map[string]any{})

	assert.Equal(t, first, second)
	assert.False(t, first.Valid)
}
