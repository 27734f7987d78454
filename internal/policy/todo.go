package policy

import (
	"fmt"

	"github.com/stewardhq/steward/pkg/schema"
)

// todoRequiredFields maps todo operations to the fields they cannot run without.
var todoRequiredFields = map[string][]string{
	"create":          {"title"},
	"update":          {"todo_id"},
	"delete":          {"todo_id"},
	"get":             {"todo_id"},
	"list":            {},
	"bulk_toggle":     {"todo_ids"},
	"convert_to_task": {"todo_id"},
}

// todoAllowedValues are the closed value sets for todo fields.
var todoAllowedValues = map[string][]string{
	"priority": {"low", "medium", "high"},
	"status":   {"pending", "in_progress", "completed", "cancelled"},
}

// todoConstraints are expression constraints on supplied todo fields.
var todoConstraints = map[string]string{
	"title": `type(value) == "string" && len(value) > 0 && len(value) <= 200`,
	"tags":  `type(value) == "array" && len(value) <= 10`,
}

// TodoValidator is the canonical Validator instance: the policy capability
// set for the todo workflow family.
type TodoValidator struct{}

// NewTodoValidator returns the todo workflow validator.
func NewTodoValidator() *TodoValidator {
	return &TodoValidator{}
}

func (v *TodoValidator) WorkflowType() schema.Intent {
	return schema.IntentTodo
}

func (v *TodoValidator) RequiredFields(operationType string) []string {
	fields, ok := todoRequiredFields[operationType]
	if !ok {
		// Unknown operations must never look executable.
		return []string{"operation_type"}
	}
	return fields
}

func (v *TodoValidator) AllowedValues(field string) []string {
	return todoAllowedValues[field]
}

func (v *TodoValidator) Constraints() map[string]string {
	return todoConstraints
}

func (v *TodoValidator) ValidatePermissions(operationType string, reqCtx map[string]any) []string {
	userID, _ := reqCtx["user_id"].(string)
	if userID == "" {
		return []string{fmt.Sprintf("operation %q requires an authenticated user", operationType)}
	}
	return nil
}

// Operations returns the todo operation catalogue, used by the supervisor to
// describe the workflow's capabilities in its proposal prompt.
func (v *TodoValidator) Operations() []string {
	return []string{"create", "update", "delete", "get", "list", "bulk_toggle", "convert_to_task"}
}
