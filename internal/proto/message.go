package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeSendMessage = "sendMessage"

	OutboundTypeReceiveMessage = "receiveMessage"
	OutboundTypeError          = "error"
)

// SendMessageData asks the relay to route text to receiver.
type SendMessageData struct {
	Receiver string `json:"receiver"`
	Message  string `json:"message"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// ReceiveMessageData is a delivered message. For automated replies Sender is
// the user the triggering message was addressed to.
type ReceiveMessageData struct {
	ID      int64  `json:"id,omitempty"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
	TS      int64  `json:"ts"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
