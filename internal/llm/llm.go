package llm

import "context"

// Classifier is the LLM intent-classification collaborator. It receives a
// fully built prompt and returns the model's raw text response, expected to
// contain JSON of the shape {intent, confidence, reasoning, ambiguous,
// alternative_intents}.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (string, error)
}

// Proposer is the LLM proposal collaborator used by supervisors. The raw
// response is expected to contain JSON of the shape {operation_type,
// parameters, confidence, reasoning, missing_context,
// clarification_suggestion}.
type Proposer interface {
	Propose(ctx context.Context, prompt string) (string, error)
}

// ContextBuilder supplies user profile, memory, and conversation text that
// supervisors inject into proposal prompts.
type ContextBuilder interface {
	BuildContext(ctx context.Context, userID, sessionID, workflowType, message string, opts map[string]any) (map[string]any, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, prompt string) (string, error)

func (f ClassifierFunc) Classify(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ProposerFunc adapts a function to the Proposer interface.
type ProposerFunc func(ctx context.Context, prompt string) (string, error)

func (f ProposerFunc) Propose(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
