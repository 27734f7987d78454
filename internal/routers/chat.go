package routers

import (
	"context"

	"github.com/stewardhq/steward/internal/llm"
	"github.com/stewardhq/steward/pkg/schema"
)

// ChatRouter handles conversational requests by relaying them to an LLM
// collaborator. Chat has no parameters to validate, so anything routed here
// executes directly.
type ChatRouter struct {
	responder llm.Proposer
}

// NewChatRouter creates a chat router backed by the given collaborator.
func NewChatRouter(responder llm.Proposer) *ChatRouter {
	return &ChatRouter{responder: responder}
}

func (r *ChatRouter) WorkflowType() schema.Intent {
	return schema.IntentChat
}

func (r *ChatRouter) Execute(ctx context.Context, payload *schema.ExecutionPayload) (map[string]any, error) {
	message, _ := payload.Parameters["message"].(string)
	if message == "" {
		message, _ = payload.Context["query"].(string)
	}

	reply, err := r.responder.Propose(ctx, message)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeTimeout,
			"chat response failed: %s", err.Error()).WithCause(err)
	}

	return map[string]any{
		"type":    "chat_response",
		"message": reply,
	}, nil
}
