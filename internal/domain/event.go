package domain

// Event identifies a gateway lifecycle event delivered to webhooks.
type Event string

const (
	EventAgentStarted     Event = "agent.started"
	EventAgentCompleted   Event = "agent.completed"
	EventAgentFailed      Event = "agent.failed"
	EventToolExecuted     Event = "tool.executed"
	EventSessionCreated   Event = "session.created"
	EventFeedbackReceived Event = "feedback.received"
)

// EventSink receives lifecycle events. Implementations must not block the
// caller; a nil sink is valid and drops everything.
type EventSink interface {
	Emit(event Event, data map[string]any)
}
