package http

import (
	"encoding/json"
	"strings"

	"github.com/vovakirdan/awayrelay/internal/core"
	"github.com/vovakirdan/awayrelay/internal/proto"
)

// inboundToCommand maps a client frame to a core command. A non-nil
// *proto.Error is reported back to the client and the connection stays open.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeSendMessage:
		var data proto.SendMessageData
		if len(inbound.Data) == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "data is required"}
		}
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "malformed sendMessage data"}
		}
		if strings.TrimSpace(data.Receiver) == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "receiver is required"}
		}
		return &core.Command{
			Kind: core.CommandSendMessage,
			Message: core.Message{
				To:   data.Receiver,
				Text: data.Message,
			},
		}, nil
	default:
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown message type"}
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventReceiveMessage:
		return proto.Outbound{
			Type: proto.OutboundTypeReceiveMessage,
			Data: proto.ReceiveMessageData{
				ID:      event.Message.ID,
				Sender:  event.Message.From,
				Message: event.Message.Text,
				TS:      event.Message.CreatedAt.Unix(),
			},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "unsupported event"}}
	}
}
