// Package engine implements the conversational supervision graph: a fixed
// node/edge state machine that sequences validation, intent classification,
// supervision, policy gating, rate limiting, execution dispatch, and result
// finalization for each request.
package engine

import (
	"time"

	"github.com/stewardhq/steward/pkg/schema"
)

// maxNodeRetries bounds recoverable-error re-entries per request.
const maxNodeRetries = 3

// NodeError is a failure recorded on the state by a node. Recoverable errors
// re-enter the failing node up to the retry bound; anything else terminates
// through the error handler.
type NodeError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Node        string `json:"node"`
	Recoverable bool   `json:"recoverable"`
}

// WorkflowState is the per-request execution state. Each request gets its
// own instance; nothing here is shared across concurrent requests.
type WorkflowState struct {
	TraceID        string
	UserID         string
	SessionID      string
	Query          string
	ConversationID string
	Context        map[string]any

	// Classification stage
	Classification        *schema.Classification
	FinalIntent           schema.Intent
	UncertainClass        bool
	ClassificationDetails map[string]any

	// Supervision stage
	Supervision *schema.SupervisionResult
	Route       string

	// Execution stage
	Payload         *schema.ExecutionPayload
	GateDenials     []string
	ExecutionResult map[string]any

	// Finalization
	OutputData map[string]any

	// Runner bookkeeping
	CurrentNode    string
	VisitedNodes   []string
	RetryCount     int
	ExecutionStart time.Time
	Error          *NodeError
}

// NewWorkflowState builds the initial state for one request.
func NewWorkflowState(traceID, userID, sessionID, query string, reqCtx map[string]any) *WorkflowState {
	if reqCtx == nil {
		reqCtx = make(map[string]any)
	}
	return &WorkflowState{
		TraceID:        traceID,
		UserID:         userID,
		SessionID:      sessionID,
		Query:          query,
		Context:        reqCtx,
		ExecutionStart: time.Now(),
	}
}

// SetError records a node failure on the state.
func (s *WorkflowState) SetError(node string, err error) {
	ne := &NodeError{
		Code:        schema.ErrCodeExecution,
		Message:     err.Error(),
		Node:        node,
		Recoverable: isRecoverable(err),
	}
	if serr, ok := err.(*schema.StewardError); ok {
		ne.Code = serr.Code
	}
	s.Error = ne
}

// Outcome reports how the request finished, for metrics and trace records.
func (s *WorkflowState) Outcome() schema.WorkflowOutcome {
	switch {
	case s.Error != nil:
		return schema.OutcomeFailed
	case s.Route == "clarify" || s.FinalIntent == schema.IntentAmbiguous || s.FinalIntent == schema.IntentUnknown:
		return schema.OutcomeClarification
	default:
		return schema.OutcomeExecuted
	}
}

func isRecoverable(err error) bool {
	if serr, ok := err.(*schema.StewardError); ok {
		return serr.IsRetryable()
	}
	return false
}
