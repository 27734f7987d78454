// Package metrics exposes Prometheus instrumentation for the supervision
// engine: workflow outcomes, node latencies, classification and supervision
// verdicts, and rate limiting.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the engine's collectors. Create one per process and share
// it across the graph runner and orchestrator.
type Metrics struct {
	WorkflowsTotal      *prometheus.CounterVec
	WorkflowDuration    *prometheus.HistogramVec
	NodeDuration        *prometheus.HistogramVec
	Classifications     *prometheus.CounterVec
	Supervisions        *prometheus.CounterVec
	ConversationTurn    prometheus.Histogram
	ActiveConversations prometheus.Gauge
	RateLimited         prometheus.Counter
	NodeRetries         *prometheus.CounterVec
	GateDenials         prometheus.Counter
}

// New registers the engine collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		WorkflowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steward",
			Name:      "workflows_total",
			Help:      "Workflow executions by type and outcome.",
		}, []string{"workflow_type", "outcome"}),

		WorkflowDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "steward",
			Name:      "workflow_duration_seconds",
			Help:      "End-to-end workflow execution time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"workflow_type"}),

		NodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "steward",
			Name:      "node_duration_seconds",
			Help:      "Per-node execution time.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		}, []string{"node"}),

		Classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steward",
			Name:      "intent_classifications_total",
			Help:      "Intent classifications by final intent and confidence band.",
		}, []string{"intent", "band"}),

		Supervisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steward",
			Name:      "supervisions_total",
			Help:      "Supervision results by workflow type and readiness.",
		}, []string{"workflow_type", "ready"}),

		ConversationTurn: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "steward",
			Name:      "conversation_turns",
			Help:      "Turn count of conversations at completion.",
			Buckets:   []float64{1, 2, 3, 4, 5, 7, 10},
		}),

		ActiveConversations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "steward",
			Name:      "active_conversations",
			Help:      "Clarification exchanges currently awaiting a user reply.",
		}),

		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "steward",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),

		NodeRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steward",
			Name:      "node_retries_total",
			Help:      "Node retries by node name.",
		}, []string{"node"}),

		GateDenials: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "steward",
			Name:      "policy_gate_denials_total",
			Help:      "Execution payloads denied by the policy gate.",
		}),
	}
}

// ObserveNode records one node execution.
func (m *Metrics) ObserveNode(node string, d time.Duration) {
	m.NodeDuration.WithLabelValues(node).Observe(d.Seconds())
}

// ObserveWorkflow records one completed workflow run.
func (m *Metrics) ObserveWorkflow(workflowType, outcome string, d time.Duration) {
	m.WorkflowsTotal.WithLabelValues(workflowType, outcome).Inc()
	m.WorkflowDuration.WithLabelValues(workflowType).Observe(d.Seconds())
}

// ObserveClassification records one thresholded classification.
func (m *Metrics) ObserveClassification(intent string, confidence float64, ambiguousBelow, confidentAt float64) {
	band := "confident"
	switch {
	case confidence < ambiguousBelow:
		band = "ambiguous"
	case confidence < confidentAt:
		band = "uncertain"
	}
	m.Classifications.WithLabelValues(intent, band).Inc()
}

// ObserveConversationClose records the total turn count of a conversation
// that just completed.
func (m *Metrics) ObserveConversationClose(turns int) {
	m.ConversationTurn.Observe(float64(turns))
}

// SetActiveConversations tracks how many clarification exchanges are open.
func (m *Metrics) SetActiveConversations(n int) {
	m.ActiveConversations.Set(float64(n))
}

// ObserveSupervision records one supervision verdict.
func (m *Metrics) ObserveSupervision(workflowType string, ready bool) {
	label := "false"
	if ready {
		label = "true"
	}
	m.Supervisions.WithLabelValues(workflowType, label).Inc()
}
