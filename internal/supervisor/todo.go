package supervisor

import (
	"log/slog"
	"time"

	"github.com/stewardhq/steward/internal/extract"
	"github.com/stewardhq/steward/internal/llm"
	"github.com/stewardhq/steward/internal/policy"
	"github.com/stewardhq/steward/pkg/schema"
)

// todoOperations is the todo workflow's capability catalogue as advertised
// in the proposal prompt. Required fields mirror the todo policy validator.
var todoOperations = []OperationSpec{
	{Name: "create", RequiredFields: []string{"title"}, OptionalFields: []string{"due_date", "priority", "tags", "notes"}, Hint: "add a new todo item"},
	{Name: "update", RequiredFields: []string{"todo_id"}, OptionalFields: []string{"title", "due_date", "priority", "status", "tags"}, Hint: "change an existing todo"},
	{Name: "delete", RequiredFields: []string{"todo_id"}, Hint: "remove a todo"},
	{Name: "get", RequiredFields: []string{"todo_id"}, Hint: "show one todo"},
	{Name: "list", OptionalFields: []string{"status", "priority", "tags"}, Hint: "show todos, optionally filtered"},
	{Name: "bulk_toggle", RequiredFields: []string{"todo_ids"}, Hint: "mark several todos done or not done"},
	{Name: "convert_to_task", RequiredFields: []string{"todo_id"}, Hint: "promote a todo into a scheduled task"},
}

// NewTodoSupervisor builds the canonical workflow supervisor: the registered
// todo policy validator plus date, priority, and tag enrichment.
func NewTodoSupervisor(proposer llm.Proposer, parser *llm.Parser, builder llm.ContextBuilder, policies *policy.Registry, engine *policy.ConstraintEngine, thresholds schema.Thresholds, logger *slog.Logger) (*Base, error) {
	if policies == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "policy registry is nil")
	}
	validator, err := policies.Get(schema.IntentTodo)
	if err != nil {
		return nil, err
	}
	return NewBase(Config{
		WorkflowType:   schema.IntentTodo,
		Proposer:       proposer,
		Parser:         parser,
		ContextBuilder: builder,
		Validator:      validator,
		Engine:         engine,
		Operations:     todoOperations,
		Enrich:         enrichTodoParams,
		Thresholds:     thresholds,
		Logger:         logger,
	})
}

// enrichTodoParams normalizes a parsed todo proposal: relative due dates
// become ISO 8601, and priority and tags are inferred from the query when
// the model extracted none.
func enrichTodoParams(params map[string]any, query string, now time.Time) {
	if raw, ok := params["due_date"].(string); ok && raw != "" {
		if ts, ok := extract.ParseDate(raw, now); ok {
			params["due_date"] = ts.Format("2006-01-02")
		}
	}

	if _, ok := params["priority"]; !ok {
		params["priority"] = extract.InferPriority(query)
	}

	if _, ok := params["tags"]; !ok {
		if tags := extract.InferTags(query); len(tags) > 0 {
			inferred := make([]any, len(tags))
			for i, t := range tags {
				inferred[i] = t
			}
			params["tags"] = inferred
		}
	}
}
