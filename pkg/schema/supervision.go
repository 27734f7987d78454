package schema

// Classification is the outcome of the intent-classification stage, before
// confidence thresholding is applied by the caller.
type Classification struct {
	Intent             Intent   `json:"intent"`
	Confidence         float64  `json:"confidence"`
	Reasoning          string   `json:"reasoning,omitempty"`
	Ambiguous          bool     `json:"ambiguous"`
	AlternativeIntents []string `json:"alternative_intents,omitempty"`
}

// LLMProposal is the parsed output of the probabilistic proposal phase.
// Produced fresh on every supervision call; never persisted.
type LLMProposal struct {
	OperationType           string         `json:"operation_type"`
	Parameters              map[string]any `json:"parameters,omitempty"`
	Confidence              float64        `json:"confidence"`
	Reasoning               string         `json:"reasoning,omitempty"`
	MissingContext          []string       `json:"missing_context,omitempty"`
	ClarificationSuggestion string         `json:"clarification_suggestion,omitempty"`
}

// PolicyEnforcement is the deterministic validation verdict for a proposal.
// Computed purely from the proposal and context; no side effects.
type PolicyEnforcement struct {
	Valid            bool                `json:"valid"`
	Violations       []string            `json:"violations,omitempty"`
	RequiredFields   []string            `json:"required_fields,omitempty"`
	AllowedValues    map[string][]string `json:"allowed_values,omitempty"`
	PermissionErrors []string            `json:"permission_errors,omitempty"`
}

// SupervisionResult is the uniform contract every supervisor returns.
type SupervisionResult struct {
	OperationType        string         `json:"operation_type"`
	Parameters           map[string]any `json:"parameters,omitempty"`
	ReadyToExecute       bool           `json:"ready_to_execute"`
	ClarificationMessage string         `json:"clarification_message,omitempty"`
	MissingContext       []string       `json:"missing_context,omitempty"`
	Confidence           float64        `json:"confidence"`
	PolicyViolations     []string       `json:"policy_violations,omitempty"`
	ConversationID       string         `json:"conversation_id,omitempty"`
}

// Ready evaluates the readiness invariant: a result is executable iff there
// are no policy violations, no missing context, and confidence clears the
// floor. Supervisors must set ReadyToExecute to exactly this value.
func (r *SupervisionResult) Ready(confidenceFloor float64) bool {
	return len(r.PolicyViolations) == 0 &&
		len(r.MissingContext) == 0 &&
		r.Confidence > confidenceFloor
}

// ExecutionPayload is handed to downstream routers once a supervised request
// is ready to execute.
type ExecutionPayload struct {
	WorkflowType        Intent         `json:"workflow_type"`
	OperationType       string         `json:"operation_type"`
	Parameters          map[string]any `json:"parameters,omitempty"`
	UserID              string         `json:"user_id"`
	Context             map[string]any `json:"context,omitempty"`
	SupervisionMetadata map[string]any `json:"supervision_metadata,omitempty"`
}

// Thresholds holds the hand-tuned confidence boundaries as configuration
// rather than literals.
type Thresholds struct {
	// AmbiguousBelow forces the final intent to ambiguous when the
	// classification confidence falls under it.
	AmbiguousBelow float64 `json:"ambiguous_below"`
	// ConfidentAt marks the boundary above which a classification is no
	// longer flagged uncertain.
	ConfidentAt float64 `json:"confident_at"`
	// ReadinessFloor is the minimum supervision confidence for execution.
	ReadinessFloor float64 `json:"readiness_floor"`
}

// DefaultThresholds returns the tuned production boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AmbiguousBelow: 0.4,
		ConfidentAt:    0.7,
		ReadinessFloor: 0.3,
	}
}
