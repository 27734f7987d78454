package supervisor

import (
	"log/slog"

	"github.com/stewardhq/steward/internal/llm"
	"github.com/stewardhq/steward/internal/policy"
	"github.com/stewardhq/steward/pkg/schema"
)

var chatOperations = []OperationSpec{
	{Name: "respond", OptionalFields: []string{"message"}, Hint: "answer a conversational question"},
}

// NewChatSupervisor builds the conversational workflow supervisor. Chat has
// no required fields, so supervision gates only on confidence and the
// authenticated-user policy.
func NewChatSupervisor(proposer llm.Proposer, parser *llm.Parser, builder llm.ContextBuilder, policies *policy.Registry, engine *policy.ConstraintEngine, thresholds schema.Thresholds, logger *slog.Logger) (*Base, error) {
	if policies == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "policy registry is nil")
	}
	validator, err := policies.Get(schema.IntentChat)
	if err != nil {
		return nil, err
	}
	return NewBase(Config{
		WorkflowType:   schema.IntentChat,
		Proposer:       proposer,
		Parser:         parser,
		ContextBuilder: builder,
		Validator:      validator,
		Engine:         engine,
		Operations:     chatOperations,
		Thresholds:     thresholds,
		Logger:         logger,
	})
}
