// Package policy implements the deterministic half of the supervision
// contract: per-workflow validators, pure policy enforcement over LLM
// proposals, and the CEL-based execution gate.
package policy

import "github.com/stewardhq/steward/pkg/schema"

// Validator is the capability set one workflow family implements to make its
// operations policy-checkable. Implementations must be pure: no I/O beyond
// lookups on the supplied context.
type Validator interface {
	// WorkflowType identifies the intent this validator covers.
	WorkflowType() schema.Intent

	// RequiredFields lists the parameter names an operation cannot execute
	// without. Unknown operations return a single sentinel requirement so the
	// proposal is never silently executable.
	RequiredFields(operationType string) []string

	// AllowedValues returns the closed value set for a field, or nil when the
	// field is unconstrained.
	AllowedValues(field string) []string

	// Constraints returns per-field expression constraints evaluated against
	// supplied parameter values. The expression environment exposes `value`
	// (the field value) and `params` (all parameters).
	Constraints() map[string]string

	// ValidatePermissions checks the caller is allowed to perform the
	// operation given the request context. Returns human-readable errors.
	ValidatePermissions(operationType string, reqCtx map[string]any) []string
}
