package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/lojistavip/vipchat-server/internal/store"
)

// Identity exposes the current participant, updated asynchronously by
// the auth layer on sign-in/sign-out.
type Identity interface {
	// Current returns the signed-in participant id, or ok=false when
	// signed out.
	Current() (Participant, bool)
}

// SendRequest is an outgoing message. An empty Peer targets the
// broadcast channel; otherwise Peer is the other party of a direct
// channel.
type SendRequest struct {
	Peer          Participant
	Text          string
	AttachmentURL string
}

// Router validates outgoing messages, resolves their destination
// channel and appends them to the log. It performs no retries and
// never swallows a failure: every rejected send is observable as a
// typed error.
type Router struct {
	log      store.Log
	identity Identity
}

// NewRouter builds a router writing to log on behalf of whoever
// identity currently reports.
func NewRouter(log store.Log, identity Identity) *Router {
	return &Router{log: log, identity: identity}
}

// Send appends req to the log and returns the stored record, including
// the log-assigned id, sequence and timestamp. Validation errors
// (ErrUnauthenticated, ErrEmptyMessage, ErrInvalidParticipant,
// ErrSelfAddressed) are returned before any log interaction; a failed
// append is returned as ErrDeliveryFailed wrapping the cause.
func (r *Router) Send(ctx context.Context, req SendRequest) (*store.Message, error) {
	sender, ok := r.identity.Current()
	if !ok {
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(req.Text) == "" && req.AttachmentURL == "" {
		return nil, ErrEmptyMessage
	}

	channelID := BroadcastChannel
	if req.Peer != "" {
		var err error
		if channelID, err = DirectChannel(sender, req.Peer); err != nil {
			return nil, err
		}
	} else if err := ValidateParticipant(sender); err != nil {
		return nil, err
	}

	stored, err := r.log.Append(ctx, &store.Message{
		ChannelID:     channelID,
		SenderID:      sender,
		Text:          req.Text,
		AttachmentURL: req.AttachmentURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return stored, nil
}
