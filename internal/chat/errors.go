package chat

import "errors"

// Error codes surfaced to transports.
const (
	ErrCodeInvalidParticipant = "invalid_participant"
	ErrCodeSelfAddressed      = "self_addressed"
	ErrCodeUnauthenticated    = "unauthenticated"
	ErrCodeEmptyMessage       = "empty_message"
	ErrCodeDeliveryFailed     = "delivery_failed"
	ErrCodeSubscriptionLost   = "subscription_lost"
)

var (
	ErrInvalidParticipant = errors.New("invalid participant id")
	ErrSelfAddressed      = errors.New("participant cannot address themself")
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrEmptyMessage       = errors.New("message has no text and no attachment")
	ErrDeliveryFailed     = errors.New("message delivery failed")
	ErrSubscriptionLost   = errors.New("message stream subscription lost")
)

// CodeFor maps a chat error to its wire code. Unknown errors map to
// delivery_failed for send paths, so callers should check validation
// errors first with errors.Is.
func CodeFor(err error) string {
	switch {
	case errors.Is(err, ErrInvalidParticipant):
		return ErrCodeInvalidParticipant
	case errors.Is(err, ErrSelfAddressed):
		return ErrCodeSelfAddressed
	case errors.Is(err, ErrUnauthenticated):
		return ErrCodeUnauthenticated
	case errors.Is(err, ErrEmptyMessage):
		return ErrCodeEmptyMessage
	case errors.Is(err, ErrSubscriptionLost):
		return ErrCodeSubscriptionLost
	default:
		return ErrCodeDeliveryFailed
	}
}
