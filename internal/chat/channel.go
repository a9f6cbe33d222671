package chat

import (
	"fmt"
	"strings"
)

// Participant is an opaque stable user identifier supplied by the
// identity layer. The chat core never creates or destroys participants.
type Participant = string

const (
	// BroadcastChannel is the shared channel every participant can read
	// and post to.
	BroadcastChannel = "community"

	// directPrefix and directSep build direct channel ids. The prefix
	// guarantees a direct channel id can never equal BroadcastChannel,
	// and the separator is forbidden inside participant ids.
	directPrefix = "dm"
	directSep    = ":"
)

// ValidateParticipant rejects ids that would make channel derivation
// ambiguous: empty ids, ids containing the separator, and the broadcast
// literal itself.
func ValidateParticipant(id Participant) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidParticipant)
	}
	if id == BroadcastChannel {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidParticipant, BroadcastChannel)
	}
	if strings.Contains(id, directSep) {
		return fmt.Errorf("%w: id %q contains %q", ErrInvalidParticipant, id, directSep)
	}
	return nil
}

// DirectChannel derives the channel id for the two-party conversation
// between a and b. Both participants compute the identical id with no
// directory lookup: the ids are sorted lexicographically before joining,
// so DirectChannel(a, b) == DirectChannel(b, a).
func DirectChannel(a, b Participant) (string, error) {
	if err := ValidateParticipant(a); err != nil {
		return "", err
	}
	if err := ValidateParticipant(b); err != nil {
		return "", err
	}
	if a == b {
		return "", fmt.Errorf("%w: %q", ErrSelfAddressed, a)
	}
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	return directPrefix + directSep + lo + directSep + hi, nil
}

// IsDirectChannel reports whether id names a direct channel.
func IsDirectChannel(id string) bool {
	return strings.HasPrefix(id, directPrefix+directSep)
}
