package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stewardhq/steward/pkg/schema"
)

// Enforce runs the deterministic policy phase over an LLM proposal:
// required-field presence, allowed-value membership, field constraints, and
// permission checks. It is pure — identical inputs produce identical output,
// with all slices in a stable order.
func Enforce(v Validator, engine *ConstraintEngine, proposal *schema.LLMProposal, reqCtx map[string]any) schema.PolicyEnforcement {
	out := schema.PolicyEnforcement{
		AllowedValues: make(map[string][]string),
	}

	// 1. Required fields: absent or null is a violation.
	out.RequiredFields = v.RequiredFields(proposal.OperationType)
	for _, field := range out.RequiredFields {
		val, present := proposal.Parameters[field]
		if !present || val == nil || isEmptyString(val) {
			out.Violations = append(out.Violations, fmt.Sprintf("Missing required field: %s", field))
		}
	}

	// 2. Allowed values for every supplied field, in sorted field order so
	// the violation list is deterministic.
	fields := make([]string, 0, len(proposal.Parameters))
	for field := range proposal.Parameters {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	constraints := v.Constraints()
	for _, field := range fields {
		val := proposal.Parameters[field]

		if allowed := v.AllowedValues(field); len(allowed) > 0 {
			out.AllowedValues[field] = allowed
			if s, ok := val.(string); ok && !contains(allowed, s) {
				out.Violations = append(out.Violations, fmt.Sprintf(
					"Invalid value '%s' for field '%s'. Allowed: %s",
					s, field, strings.Join(allowed, ", ")))
			}
		}

		if expression, ok := constraints[field]; ok && val != nil {
			passed, err := engine.Check(expression, val, proposal.Parameters)
			if err != nil {
				out.Violations = append(out.Violations, fmt.Sprintf(
					"Constraint check failed for field '%s': %s", field, err.Error()))
			} else if !passed {
				out.Violations = append(out.Violations, fmt.Sprintf(
					"Value for field '%s' violates constraint: %s", field, expression))
			}
		}
	}

	// 3. Permissions.
	out.PermissionErrors = v.ValidatePermissions(proposal.OperationType, reqCtx)

	out.Valid = len(out.Violations) == 0 && len(out.PermissionErrors) == 0
	return out
}

func isEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
