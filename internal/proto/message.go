package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	// InboundTypeHello authenticates the connection with a JWT token.
	InboundTypeHello = "hello"
	// InboundTypeSend submits a message to the broadcast channel or a peer.
	InboundTypeSend = "send"
	// InboundTypeWatch materializes the direct channel view with a peer.
	InboundTypeWatch = "watch"
	// InboundTypeUnwatch drops a watched direct channel view.
	InboundTypeUnwatch = "unwatch"

	OutboundTypeWelcome = "welcome"
	OutboundTypeAck     = "ack"
	OutboundTypeView    = "view"
	OutboundTypeError   = "error"
)

// HelloData authenticates the connection.
type HelloData struct {
	Token    string `json:"token"`
	Protocol int    `json:"protocol,omitempty"`
}

// SendData is an outgoing chat message. An empty peer targets the
// community channel.
type SendData struct {
	Peer          string `json:"peer,omitempty"`
	Text          string `json:"text"`
	AttachmentURL string `json:"attachment_url,omitempty"`
}

// WatchData names the peer whose direct channel view to materialize.
type WatchData struct {
	Peer string `json:"peer"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// WelcomeData confirms authentication.
type WelcomeData struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Protocol int    `json:"protocol"`
}

// AckData confirms an accepted send with the log-assigned identity.
type AckData struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	TS        int64  `json:"ts"`
}

// ViewMessage is one message of a channel view.
type ViewMessage struct {
	ID            string `json:"id"`
	ChannelID     string `json:"channel_id"`
	SenderID      string `json:"sender_id"`
	SenderName    string `json:"sender_name,omitempty"`
	Text          string `json:"text"`
	AttachmentURL string `json:"attachment_url,omitempty"`
	TS            int64  `json:"ts"`
	IsMine        bool   `json:"is_mine"`
}

// ViewData is a full replacement view of one channel. Peer is set for
// direct channel views. Stale marks views derived after the message
// stream terminated.
type ViewData struct {
	ChannelID string        `json:"channel_id"`
	Peer      string        `json:"peer,omitempty"`
	Stale     bool          `json:"stale,omitempty"`
	Messages  []ViewMessage `json:"messages"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
