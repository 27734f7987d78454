package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/internal/llm"
	"github.com/stewardhq/steward/pkg/schema"
)

func newClassifier(t *testing.T, fn llm.ClassifierFunc) *Classifier {
	t.Helper()
	parser, err := llm.NewParser()
	require.NoError(t, err)
	c, err := New(fn, parser, nil)
	require.NoError(t, err)
	return c
}

func TestClassifyStructuredResponse(t *testing.T) {
	c := newClassifier(t, func(context.Context, string) (string, error) {
		return `{"intent":"todo","confidence":0.93,"reasoning":"checklist item","ambiguous":false}`, nil
	})

	result := c.Classify(context.Background(), "add buy milk to my list")

	assert.Equal(t, schema.IntentTodo, result.Intent)
	assert.InDelta(t, 0.93, result.Confidence, 1e-9)
	assert.False(t, result.Ambiguous)
}

func TestClassifyEmbeddedJSON(t *testing.T) {
	c := newClassifier(t, func(context.Context, string) (string, error) {
		return "Sure! Here is the classification:\n```json\n{\"intent\":\"calendar\",\"confidence\":0.8}\n```", nil
	})

	result := c.Classify(context.Background(), "book a meeting")

	assert.Equal(t, schema.IntentCalendar, result.Intent)
	assert.InDelta(t, 0.8, result.Confidence, 1e-9)
}

func TestClassifyKeywordFallback(t *testing.T) {
	c := newClassifier(t, func(context.Context, string) (string, error) {
		return "This looks like a todo request to me.", nil
	})

	result := c.Classify(context.Background(), "add buy milk")

	assert.Equal(t, schema.IntentTodo, result.Intent)
	assert.InDelta(t, 0.5, result.Confidence, 1e-9)
	assert.True(t, result.Ambiguous)
}

func TestClassifyNothingMatches(t *testing.T) {
	c := newClassifier(t, func(context.Context, string) (string, error) {
		return "I have no idea.", nil
	})

	result := c.Classify(context.Background(), "asdf qwerty")

	assert.Equal(t, schema.IntentUnknown, result.Intent)
	assert.InDelta(t, 0.1, result.Confidence, 1e-9)
}

func TestClassifyLLMErrorNeverRaises(t *testing.T) {
	c := newClassifier(t, func(context.Context, string) (string, error) {
		return "", errors.New("connection reset")
	})

	result := c.Classify(context.Background(), "add buy milk")

	assert.Equal(t, schema.IntentUnknown, result.Intent)
	assert.Zero(t, result.Confidence)
}

func TestClassifyPromptContainsQuery(t *testing.T) {
	var prompt string
	c := newClassifier(t, func(_ context.Context, p string) (string, error) {
		prompt = p
		return `{"intent":"chat","confidence":0.9}`, nil
	})

	c.Classify(context.Background(), "hello there")

	assert.Contains(t, prompt, "hello there")
	assert.Contains(t, prompt, "todo")
	assert.Contains(t, prompt, "canvas")
}

func TestResolveThresholdBoundaries(t *testing.T) {
	thresholds := schema.DefaultThresholds()

	cases := []struct {
		name       string
		confidence float64
		ambiguous  bool
		wantIntent schema.Intent
		wantFlag   bool
	}{
		{"just below ambiguity boundary", 0.39, false, schema.IntentAmbiguous, false},
		{"at ambiguity boundary", 0.40, false, schema.IntentTodo, true},
		{"top of uncertain band", 0.69, false, schema.IntentTodo, true},
		{"at confident boundary", 0.70, false, schema.IntentTodo, false},
		{"high confidence", 0.95, false, schema.IntentTodo, false},
		{"self-flagged ambiguous overrides confidence", 0.95, true, schema.IntentAmbiguous, false},
		{"zero confidence", 0.0, false, schema.IntentAmbiguous, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Resolve(schema.Classification{
				Intent:     schema.IntentTodo,
				Confidence: tc.confidence,
				Ambiguous:  tc.ambiguous,
			}, thresholds)

			assert.Equal(t, tc.wantIntent, r.FinalIntent)
			assert.Equal(t, tc.wantFlag, r.Uncertain)
		})
	}
}

func TestResolvePreservesClassificationDetails(t *testing.T) {
	r := Resolve(schema.Classification{
		Intent:             schema.IntentTask,
		Confidence:         0.35,
		Reasoning:          "could be task or todo",
		AlternativeIntents: []string{"todo"},
	}, schema.DefaultThresholds())

	assert.Equal(t, schema.IntentAmbiguous, r.FinalIntent)
	assert.Equal(t, "task", r.Details["original_intent"])
	assert.Equal(t, "could be task or todo", r.Details["reasoning"])
	assert.Equal(t, []string{"todo"}, r.Details["alternative_intents"])
}
