package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/internal/llm"
	"github.com/stewardhq/steward/internal/policy"
	"github.com/stewardhq/steward/pkg/schema"
)

// staticProposer returns a canned model response.
type staticProposer struct {
	response string
	err      error
	prompts  []string
}

func (s *staticProposer) Propose(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.response, s.err
}

func proposalJSON(t *testing.T, p map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return string(raw)
}

func newTodoSupervisor(t *testing.T, proposer llm.Proposer) *Base {
	t.Helper()
	parser, err := llm.NewParser()
	require.NoError(t, err)

	policies, err := policy.DefaultRegistry()
	require.NoError(t, err)

	s, err := NewTodoSupervisor(proposer, parser, nil, policies,
		policy.NewConstraintEngine(), schema.DefaultThresholds(), slog.Default())
	require.NoError(t, err)
	return s
}

func authedRequest(query string) Request {
	return Request{
		Query:   query,
		UserID:  "user-1",
		Context: map[string]any{"user_id": "user-1"},
	}
}

func TestSupervisorRequiresRegisteredValidator(t *testing.T) {
	parser, err := llm.NewParser()
	require.NoError(t, err)

	_, err = NewTodoSupervisor(&staticProposer{}, parser, nil, policy.NewRegistry(),
		policy.NewConstraintEngine(), schema.DefaultThresholds(), slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no validator registered")

	_, err = NewTodoSupervisor(&staticProposer{}, parser, nil, nil,
		policy.NewConstraintEngine(), schema.DefaultThresholds(), slog.Default())
	require.Error(t, err)
}

func TestSuperviseReadyResult(t *testing.T) {
	proposer := &staticProposer{response: proposalJSON(t, map[string]any{
		"operation_type": "create",
		"parameters":     map[string]any{"title": "buy milk", "priority": "medium"},
		"confidence":     0.92,
		"reasoning":      "clear create request",
	})}
	s := newTodoSupervisor(t, proposer)

	result, err := s.Supervise(context.Background(), authedRequest("add buy milk to my list"))
	require.NoError(t, err)

	assert.True(t, result.ReadyToExecute)
	assert.Equal(t, "create", result.OperationType)
	assert.Empty(t, result.PolicyViolations)
	assert.Empty(t, result.ClarificationMessage)
	assert.InDelta(t, 0.92, result.Confidence, 1e-9)
}

func TestSuperviseEnrichesParameters(t *testing.T) {
	proposer := &staticProposer{response: proposalJSON(t, map[string]any{
		"operation_type": "create",
		"parameters":     map[string]any{"title": "buy milk"},
		"confidence":     0.9,
	})}
	s := newTodoSupervisor(t, proposer)

	result, err := s.Supervise(context.Background(), authedRequest("remind me to buy milk"))
	require.NoError(t, err)

	assert.Equal(t, "medium", result.Parameters["priority"])
	assert.Equal(t, []any{"shopping"}, result.Parameters["tags"])
}

func TestSupervisePolicyViolationBlocksExecution(t *testing.T) {
	proposer := &staticProposer{response: proposalJSON(t, map[string]any{
		"operation_type": "create",
		"parameters":     map[string]any{"priority": "high"},
		"confidence":     0.95,
	})}
	s := newTodoSupervisor(t, proposer)

	result, err := s.Supervise(context.Background(), authedRequest("add something important"))
	require.NoError(t, err)

	assert.False(t, result.ReadyToExecute)
	assert.Contains(t, result.PolicyViolations, "Missing required field: title")
	assert.Equal(t, "Missing required field: title", result.ClarificationMessage)
}

func TestSuperviseMultipleViolationsBulleted(t *testing.T) {
	proposer := &staticProposer{response: proposalJSON(t, map[string]any{
		"operation_type": "create",
		"parameters":     map[string]any{"priority": "critical"},
		"confidence":     0.95,
	})}
	s := newTodoSupervisor(t, proposer)

	result, err := s.Supervise(context.Background(), authedRequest("add something"))
	require.NoError(t, err)

	assert.False(t, result.ReadyToExecute)
	assert.Len(t, result.PolicyViolations, 2)
	assert.Contains(t, result.ClarificationMessage, "- Missing required field: title")
	assert.Contains(t, result.ClarificationMessage, "- Invalid value 'critical'")
}

func TestSuperviseMissingContextPromptsClarification(t *testing.T) {
	proposer := &staticProposer{response: proposalJSON(t, map[string]any{
		"operation_type":  "create",
		"parameters":      map[string]any{"title": "finish essay"},
		"confidence":      0.8,
		"missing_context": []string{"due_date"},
	})}
	s := newTodoSupervisor(t, proposer)

	result, err := s.Supervise(context.Background(), authedRequest("I need to finish my essay"))
	require.NoError(t, err)

	assert.False(t, result.ReadyToExecute)
	assert.Equal(t, "I need to know: due_date", result.ClarificationMessage)
}

func TestSupervisePrefersModelSuggestion(t *testing.T) {
	proposer := &staticProposer{response: proposalJSON(t, map[string]any{
		"operation_type":           "create",
		"parameters":               map[string]any{"title": "study"},
		"confidence":               0.8,
		"missing_context":          []string{"due_date"},
		"clarification_suggestion": "When is it due?",
	})}
	s := newTodoSupervisor(t, proposer)

	result, err := s.Supervise(context.Background(), authedRequest("I should study"))
	require.NoError(t, err)

	assert.False(t, result.ReadyToExecute)
	assert.Equal(t, "When is it due?", result.ClarificationMessage)
}

func TestSuperviseLLMFailureNeverRaises(t *testing.T) {
	proposer := &staticProposer{err: errors.New("upstream timeout")}
	s := newTodoSupervisor(t, proposer)

	result, err := s.Supervise(context.Background(), authedRequest("add buy milk"))
	require.NoError(t, err)

	assert.False(t, result.ReadyToExecute)
	assert.Equal(t, "unknown", result.OperationType)
	assert.Equal(t, []string{"operation_type"}, result.MissingContext)
	assert.Zero(t, result.Confidence)
}

func TestSuperviseUnparseableResponseFallsBack(t *testing.T) {
	proposer := &staticProposer{response: "I think you want to create a todo!"}
	s := newTodoSupervisor(t, proposer)

	result, err := s.Supervise(context.Background(), authedRequest("add buy milk"))
	require.NoError(t, err)

	assert.False(t, result.ReadyToExecute)
	assert.Equal(t, "unknown", result.OperationType)
}

func TestSuperviseLowConfidenceBlocksExecution(t *testing.T) {
	proposer := &staticProposer{response: proposalJSON(t, map[string]any{
		"operation_type": "create",
		"parameters":     map[string]any{"title": "something"},
		"confidence":     0.2,
	})}
	s := newTodoSupervisor(t, proposer)

	result, err := s.Supervise(context.Background(), authedRequest("maybe add something?"))
	require.NoError(t, err)

	assert.False(t, result.ReadyToExecute)
	assert.Equal(t, lowConfidenceClarification, result.ClarificationMessage)
}

func TestSuperviseAppendsConversationHistory(t *testing.T) {
	proposer := &staticProposer{response: proposalJSON(t, map[string]any{
		"operation_type":  "create",
		"parameters":      map[string]any{"title": "essay"},
		"confidence":      0.8,
		"missing_context": []string{"due_date"},
	})}
	s := newTodoSupervisor(t, proposer)

	req := authedRequest("add my essay")
	req.ConversationID = "conv-1"

	_, err := s.Supervise(context.Background(), req)
	require.NoError(t, err)

	entries := s.History().Get("conv-1")
	require.Len(t, entries, 2)
	assert.Equal(t, "user", entries[0].Role)
	assert.Equal(t, "add my essay", entries[0].Text)
	assert.Equal(t, "assistant", entries[1].Role)

	// The next turn's prompt carries the history.
	req.Query = "it's due friday"
	_, err = s.Supervise(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, proposer.prompts, 2)
	assert.Contains(t, proposer.prompts[1], "Conversation so far:")
	assert.Contains(t, proposer.prompts[1], "add my essay")
}

func TestSupervisePromptListsOperations(t *testing.T) {
	proposer := &staticProposer{response: proposalJSON(t, map[string]any{
		"operation_type": "list",
		"parameters":     map[string]any{},
		"confidence":     0.9,
	})}
	s := newTodoSupervisor(t, proposer)

	_, err := s.Supervise(context.Background(), authedRequest("show my todos"))
	require.NoError(t, err)

	require.Len(t, proposer.prompts, 1)
	for _, op := range []string{"create", "update", "delete", "get", "list", "bulk_toggle", "convert_to_task"} {
		assert.Contains(t, proposer.prompts[0], op)
	}
	assert.Contains(t, proposer.prompts[0], "requires: title")
}

func TestHistoryLogBounded(t *testing.T) {
	log := NewHistoryLog()
	for i := 0; i < 30; i++ {
		log.Append("conv-1", "user", "turn")
	}
	assert.Len(t, log.Get("conv-1"), maxHistoryEntries)
}

func TestHistoryLogIgnoresEmptyConversation(t *testing.T) {
	log := NewHistoryLog()
	log.Append("", "user", "hello")
	assert.Empty(t, log.Get(""))
}
