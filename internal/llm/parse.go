package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/itchyny/gojq"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/stewardhq/steward/pkg/schema"
)

// Tier tags which stage of the two-tier parser produced a result.
type Tier string

const (
	// TierParsed means the raw response validated against the strict schema.
	TierParsed Tier = "parsed"
	// TierFallback means the strict parse failed but a JSON object recovered
	// from the raw text yielded the required keys.
	TierFallback Tier = "fallback"
	// TierFailed means no usable structure could be recovered. Callers apply
	// their own degradation (keyword scan, zero-confidence proposal).
	TierFailed Tier = "failed"
)

// classificationSchemaJSON validates the strict classification response.
const classificationSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://stewardhq.dev/schemas/classification.json",
  "type": "object",
  "required": ["intent", "confidence"],
  "properties": {
    "intent": { "type": "string", "minLength": 1 },
    "confidence": { "type": "number", "minimum": 0, "maximum": 1 },
    "reasoning": { "type": "string" },
    "ambiguous": { "type": "boolean" },
    "alternative_intents": {
      "type": "array",
      "items": { "type": "string" }
    }
  },
  "additionalProperties": true
}`

// proposalSchemaJSON validates the strict proposal response.
const proposalSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://stewardhq.dev/schemas/proposal.json",
  "type": "object",
  "required": ["operation_type", "confidence"],
  "properties": {
    "operation_type": { "type": "string", "minLength": 1 },
    "parameters": { "type": "object" },
    "confidence": { "type": "number", "minimum": 0, "maximum": 1 },
    "reasoning": { "type": "string" },
    "missing_context": {
      "type": "array",
      "items": { "type": "string" }
    },
    "clarification_suggestion": { "type": "string" }
  },
  "additionalProperties": true
}`

// Parser is the two-tier parser for LLM responses: a strict JSON Schema tier
// followed by a lenient tier that digs a JSON object out of free-form text
// and extracts the required keys with jq queries.
// Thread-safe: compiled schemas and queries are built once.
type Parser struct {
	classificationSchema *jsonschema.Schema
	proposalSchema       *jsonschema.Schema

	queryMu sync.RWMutex
	queries map[string]*gojq.Code
}

// NewParser compiles the response schemas and returns a Parser.
func NewParser() (*Parser, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	classification, err := compileSchema(c, "https://stewardhq.dev/schemas/classification.json", classificationSchemaJSON)
	if err != nil {
		return nil, err
	}
	proposal, err := compileSchema(c, "https://stewardhq.dev/schemas/proposal.json", proposalSchemaJSON)
	if err != nil {
		return nil, err
	}

	return &Parser{
		classificationSchema: classification,
		proposalSchema:       proposal,
		queries:              make(map[string]*gojq.Code),
	}, nil
}

func compileSchema(c *jsonschema.Compiler, url, raw string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema %s: %w", url, err)
	}
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", url, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", url, err)
	}
	return compiled, nil
}

// ParseClassification parses a raw classification response.
// On TierFailed the returned Classification is zero-valued and the caller is
// expected to fall back to keyword scanning.
func (p *Parser) ParseClassification(raw string) (schema.Classification, Tier) {
	var out schema.Classification

	// Tier 1: strict.
	if doc, ok := p.validate(raw, p.classificationSchema); ok {
		out.Intent = schema.ParseIntent(stringAt(doc, "intent"))
		out.Confidence = floatAt(doc, "confidence")
		out.Reasoning = stringAt(doc, "reasoning")
		out.Ambiguous = boolAt(doc, "ambiguous")
		out.AlternativeIntents = stringsAt(doc, "alternative_intents")
		return out, TierParsed
	}

	// Tier 2: lenient — recover an embedded JSON object and query it.
	doc, ok := extractJSONObject(raw)
	if !ok {
		return out, TierFailed
	}
	intent, err := p.queryString(doc, `.intent // empty`)
	if err != nil || intent == "" {
		return out, TierFailed
	}
	out.Intent = schema.ParseIntent(intent)
	out.Confidence = p.queryFloat(doc, `.confidence // 0`)
	out.Reasoning, _ = p.queryString(doc, `.reasoning // ""`)
	out.Ambiguous = true // recovered output is inherently suspect
	return out, TierFallback
}

// ParseProposal parses a raw proposal response.
// On TierFailed the caller synthesizes a zero-confidence proposal.
func (p *Parser) ParseProposal(raw string) (schema.LLMProposal, Tier) {
	var out schema.LLMProposal

	// Tier 1: strict.
	if doc, ok := p.validate(raw, p.proposalSchema); ok {
		out.OperationType = stringAt(doc, "operation_type")
		out.Parameters = mapAt(doc, "parameters")
		out.Confidence = floatAt(doc, "confidence")
		out.Reasoning = stringAt(doc, "reasoning")
		out.MissingContext = stringsAt(doc, "missing_context")
		out.ClarificationSuggestion = stringAt(doc, "clarification_suggestion")
		return out, TierParsed
	}

	// Tier 2: lenient.
	doc, ok := extractJSONObject(raw)
	if !ok {
		return out, TierFailed
	}
	opType, err := p.queryString(doc, `.operation_type // empty`)
	if err != nil || opType == "" {
		return out, TierFailed
	}
	out.OperationType = opType
	out.Confidence = p.queryFloat(doc, `.confidence // 0`)
	out.Parameters = mapAt(doc, "parameters")
	out.MissingContext = stringsAt(doc, "missing_context")
	out.ClarificationSuggestion = stringAt(doc, "clarification_suggestion")
	return out, TierFallback
}

// validate runs the strict tier: the whole response must be the JSON object
// and must satisfy the schema. Returns the decoded document on success.
func (p *Parser) validate(raw string, s *jsonschema.Schema) (map[string]any, bool) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return nil, false
	}

	// The jsonschema library requires json.Number documents.
	numDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(trimmed))
	if err != nil {
		return nil, false
	}
	if err := s.Validate(numDoc); err != nil {
		return nil, false
	}
	return doc, true
}

// extractJSONObject finds the first balanced top-level JSON object embedded
// in free-form text (e.g. surrounded by prose or markdown fences).
func extractJSONObject(raw string) (map[string]any, bool) {
	start := strings.IndexByte(raw, '{')
	for start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(raw); i++ {
			c := raw[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					var doc map[string]any
					if err := json.Unmarshal([]byte(raw[start:i+1]), &doc); err == nil {
						return doc, true
					}
					i = len(raw) // malformed candidate; try the next opening brace
				}
			}
		}
		next := strings.IndexByte(raw[start+1:], '{')
		if next < 0 {
			break
		}
		start = start + 1 + next
	}
	return nil, false
}

// queryString evaluates a jq query expected to yield a string.
func (p *Parser) queryString(doc map[string]any, query string) (string, error) {
	v, err := p.runQuery(doc, query)
	if err != nil || v == nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// queryFloat evaluates a jq query expected to yield a number.
func (p *Parser) queryFloat(doc map[string]any, query string) float64 {
	v, err := p.runQuery(doc, query)
	if err != nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

func (p *Parser) runQuery(doc map[string]any, query string) (any, error) {
	code, err := p.getOrCompileQuery(query)
	if err != nil {
		return nil, err
	}
	iter := code.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if qerr, isErr := v.(error); isErr {
		return nil, qerr
	}
	return v, nil
}

func (p *Parser) getOrCompileQuery(query string) (*gojq.Code, error) {
	p.queryMu.RLock()
	if code, ok := p.queries[query]; ok {
		p.queryMu.RUnlock()
		return code, nil
	}
	p.queryMu.RUnlock()

	p.queryMu.Lock()
	defer p.queryMu.Unlock()

	if code, ok := p.queries[query]; ok {
		return code, nil
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("jq parse %q: %w", query, err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("jq compile %q: %w", query, err)
	}
	p.queries[query] = code
	return code, nil
}

// --- document accessors ---

func stringAt(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

func floatAt(doc map[string]any, key string) float64 {
	switch n := doc[key].(type) {
	case float64:
		return n
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

func boolAt(doc map[string]any, key string) bool {
	b, _ := doc[key].(bool)
	return b
}

func stringsAt(doc map[string]any, key string) []string {
	raw, ok := doc[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func mapAt(doc map[string]any, key string) map[string]any {
	m, _ := doc[key].(map[string]any)
	return m
}
