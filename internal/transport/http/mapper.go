package http

import (
	"github.com/lojistavip/vipchat-server/internal/chat"
	"github.com/lojistavip/vipchat-server/internal/proto"
	"github.com/lojistavip/vipchat-server/internal/store"
)

// viewToProto converts a derived channel view to its wire shape,
// resolving sender display names through resolve.
func viewToProto(view chat.View, peer string, resolve func(string) string) proto.ViewData {
	messages := make([]proto.ViewMessage, 0, len(view.Messages))
	for _, msg := range view.Messages {
		messages = append(messages, proto.ViewMessage{
			ID:            msg.ID,
			ChannelID:     msg.ChannelID,
			SenderID:      msg.SenderID,
			SenderName:    resolve(msg.SenderID),
			Text:          msg.Text,
			AttachmentURL: msg.AttachmentURL,
			TS:            msg.CreatedAt.UnixMilli(),
			IsMine:        msg.IsMine,
		})
	}
	return proto.ViewData{
		ChannelID: view.ChannelID,
		Peer:      peer,
		Stale:     view.Stale,
		Messages:  messages,
	}
}

// ackFromStored confirms an accepted send.
func ackFromStored(msg *store.Message) proto.AckData {
	return proto.AckData{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		TS:        msg.CreatedAt.UnixMilli(),
	}
}

// protoErrorFrom maps a chat error to its wire error.
func protoErrorFrom(err error) *proto.Error {
	return &proto.Error{
		Code: chat.CodeFor(err),
		Msg:  err.Error(),
	}
}
