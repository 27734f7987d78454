package schema

// Trace event type constants for the decision-trace log.
const (
	EventWorkflowStarted   = "workflow_started"
	EventWorkflowCompleted = "workflow_completed"
	EventWorkflowFailed    = "workflow_failed"

	EventNodeEntered   = "node_entered"
	EventNodeCompleted = "node_completed"
	EventNodeFailed    = "node_failed"
	EventNodeRetried   = "node_retried"

	EventIntentClassified    = "intent_classified"
	EventIntentAmbiguous     = "intent_ambiguous"
	EventSupervisionReady    = "supervision_ready"
	EventSupervisionClarify  = "supervision_clarify"
	EventConversationStarted = "conversation_started"
	EventConversationResumed = "conversation_resumed"
	EventConversationClosed  = "conversation_closed"
	EventConversationExpired = "conversation_expired"
	EventPolicyGateDenied    = "policy_gate_denied"
	EventRateLimited         = "rate_limited"
	EventBriefingScheduled   = "briefing_scheduled"
	EventBriefingTriggered   = "briefing_triggered"
	EventClarificationIssued = "clarification_issued"
	EventExecutionDispatched = "execution_dispatched"
)

// WorkflowOutcome is the terminal disposition of one graph run.
type WorkflowOutcome string

const (
	OutcomeExecuted      WorkflowOutcome = "executed"
	OutcomeClarification WorkflowOutcome = "clarification"
	OutcomeFailed        WorkflowOutcome = "failed"
)
