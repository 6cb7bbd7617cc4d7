package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventReceiveMessage delivers a message, or a synthesized reply framed as
	// coming from the intended recipient.
	EventReceiveMessage EventKind = iota
	// EventError reports a failed command back to the session that sent it.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind    EventKind
	Message Message
	Error   *CoreError
}
