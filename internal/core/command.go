package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSendMessage asks the relay to route a direct message.
	CommandSendMessage CommandKind = iota
)

// Command represents an action requested by a client.
type Command struct {
	Kind    CommandKind
	Message Message
}
