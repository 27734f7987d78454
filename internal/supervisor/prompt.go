package supervisor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/stewardhq/steward/pkg/schema"
)

// OperationSpec describes one operation in the workflow's capability
// catalogue, embedded into every proposal prompt.
type OperationSpec struct {
	Name           string
	RequiredFields []string
	OptionalFields []string
	Hint           string
}

// proposalResponseShape is the JSON contract the proposal prompt asks the
// model to follow. Kept as a literal so the prompt and the parser schema
// cannot drift apart silently without a failing test.
const proposalResponseShape = `{
  "operation_type": "<one of the operations above>",
  "parameters": {"<field>": "<extracted value>"},
  "confidence": 0.0,
  "reasoning": "<one sentence>",
  "missing_context": ["<field you could not extract>"],
  "clarification_suggestion": "<question to ask the user, or empty>"
}`

// BuildProposalPrompt assembles the workflow-specific proposal prompt:
// operation catalogue, extraction hints, accumulated context, bounded
// conversation history, and the user query.
func BuildProposalPrompt(workflowType schema.Intent, ops []OperationSpec, query, contextText, historyText string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You supervise %s operations for an academic planning assistant.\n", workflowType)
	b.WriteString("Map the user's request onto exactly one supported operation and extract its parameters.\n\n")

	b.WriteString("Supported operations:\n")
	for _, op := range ops {
		fmt.Fprintf(&b, "- %s", op.Name)
		if len(op.RequiredFields) > 0 {
			fmt.Fprintf(&b, " (requires: %s)", strings.Join(op.RequiredFields, ", "))
		}
		if len(op.OptionalFields) > 0 {
			fmt.Fprintf(&b, " (optional: %s)", strings.Join(op.OptionalFields, ", "))
		}
		if op.Hint != "" {
			fmt.Fprintf(&b, " — %s", op.Hint)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nExtraction rules:\n")
	b.WriteString("- Resolve relative dates (today, tomorrow, next friday) to ISO 8601.\n")
	b.WriteString("- Infer priority from language intensity: urgent wording is high, casual wording is low, otherwise medium.\n")
	b.WriteString("- Infer tags from topical keywords when the user names none.\n")
	b.WriteString("- List every field you could not extract in missing_context. Never invent values.\n")

	if contextText != "" {
		b.WriteString("\nContext:\n")
		b.WriteString(contextText)
		b.WriteString("\n")
	}
	if historyText != "" {
		b.WriteString("\nConversation so far:\n")
		b.WriteString(historyText)
	}

	fmt.Fprintf(&b, "\nUser request: %s\n", query)
	b.WriteString("\nRespond with only a JSON object of this shape:\n")
	b.WriteString(proposalResponseShape)
	b.WriteString("\n")

	return b.String()
}

// renderContext flattens the context-builder output into stable prompt text.
func renderContext(reqCtx map[string]any) string {
	if len(reqCtx) == 0 {
		return ""
	}

	keys := make([]string, 0, len(reqCtx))
	for k := range reqCtx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v := reqCtx[k]
		switch val := v.(type) {
		case string:
			if val == "" {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", k, val)
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", k, raw)
		}
	}
	return b.String()
}
