package schema

// Intent is the classified workflow family for a user query.
type Intent string

const (
	IntentCalendar   Intent = "calendar"
	IntentTask       Intent = "task"
	IntentTodo       Intent = "todo"
	IntentBriefing   Intent = "briefing"
	IntentScheduling Intent = "scheduling"
	IntentEmail      Intent = "email"
	IntentCanvas     Intent = "canvas"
	IntentSearch     Intent = "search"
	IntentChat       Intent = "chat"

	// IntentUnknown is returned when classification cannot name a workflow.
	IntentUnknown Intent = "unknown"
	// IntentAmbiguous is forced by the caller when confidence is below the
	// ambiguity threshold or the classifier flags the query as ambiguous.
	// It is never produced by the classifier itself.
	IntentAmbiguous Intent = "ambiguous"
)

// KnownIntents is the closed set of routable workflow families, in the order
// presented to the classification model.
var KnownIntents = []Intent{
	IntentCalendar,
	IntentTask,
	IntentTodo,
	IntentBriefing,
	IntentScheduling,
	IntentEmail,
	IntentCanvas,
	IntentSearch,
	IntentChat,
}

// ParseIntent maps a raw string to a known Intent, or IntentUnknown.
func ParseIntent(s string) Intent {
	for _, in := range KnownIntents {
		if string(in) == s {
			return in
		}
	}
	if s == string(IntentUnknown) || s == string(IntentAmbiguous) {
		return Intent(s)
	}
	return IntentUnknown
}

// Routable reports whether the intent dispatches to a supervisor.
// Unknown and ambiguous intents route to the clarification generator instead.
func (i Intent) Routable() bool {
	for _, in := range KnownIntents {
		if i == in {
			return true
		}
	}
	return false
}
