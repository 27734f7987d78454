// Package classifier turns free-form queries into intent classifications and
// applies the confidence thresholding that decides routing.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stewardhq/steward/internal/llm"
	"github.com/stewardhq/steward/pkg/schema"
)

const classificationPromptTemplate = `Classify the user's request into exactly one intent for an academic planning assistant.

Intents:
- calendar: events, meetings, appointments
- task: scheduled work items with deadlines
- todo: simple checklist items
- briefing: daily or weekly summaries
- scheduling: finding time, availability
- email: reading or sending mail
- canvas: courses, assignments, grades
- search: looking up information
- chat: small talk, anything conversational
- unknown: none of the above

User request: %s

Respond with only a JSON object:
{"intent": "<intent>", "confidence": 0.0, "reasoning": "<one sentence>", "ambiguous": false, "alternative_intents": []}`

// Classifier delegates intent classification to an LLM collaborator and
// degrades gracefully on every failure path: it never returns an error.
type Classifier struct {
	llm    llm.Classifier
	parser *llm.Parser
	logger *slog.Logger
}

// New creates a Classifier.
func New(collaborator llm.Classifier, parser *llm.Parser, logger *slog.Logger) (*Classifier, error) {
	if collaborator == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "classifier collaborator is nil")
	}
	if parser == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "classifier parser is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{llm: collaborator, parser: parser, logger: logger}, nil
}

// Classify maps a query to a Classification. Failure handling is layered:
// an LLM error yields unknown with confidence 0; an unparseable response
// falls back to scanning the raw text for a known intent keyword at
// confidence 0.5; a scan with no hit yields unknown at confidence 0.1.
func (c *Classifier) Classify(ctx context.Context, query string) schema.Classification {
	raw, err := c.llm.Classify(ctx, fmt.Sprintf(classificationPromptTemplate, query))
	if err != nil {
		c.logger.WarnContext(ctx, "classification call failed", "error", err)
		return schema.Classification{Intent: schema.IntentUnknown, Confidence: 0}
	}

	result, tier := c.parser.ParseClassification(raw)
	switch tier {
	case llm.TierParsed, llm.TierFallback:
		if !result.Intent.Routable() && result.Intent != schema.IntentUnknown {
			// A made-up intent is worse than no intent.
			c.logger.WarnContext(ctx, "classifier returned unrecognized intent",
				"intent", result.Intent)
			return scanForIntent(raw)
		}
		return result
	default:
		c.logger.WarnContext(ctx, "classification response unparseable")
		return scanForIntent(raw)
	}
}

// scanForIntent is the last-resort parse fallback: look for any known intent
// name in the raw model output.
func scanForIntent(raw string) schema.Classification {
	lowered := strings.ToLower(raw)
	for _, intent := range schema.KnownIntents {
		if strings.Contains(lowered, string(intent)) {
			return schema.Classification{
				Intent:     intent,
				Confidence: 0.5,
				Ambiguous:  true,
				Reasoning:  "recovered from unstructured classifier output",
			}
		}
	}
	return schema.Classification{Intent: schema.IntentUnknown, Confidence: 0.1}
}
