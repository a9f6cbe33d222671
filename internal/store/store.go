package store

import (
	"context"
	"errors"
	"time"
)

// User represents a user in the system. The ID doubles as the chat
// participant id, so it must never contain the channel separator ':'
// (UUIDs satisfy this).
type User struct {
	ID           string
	Username     string
	PasswordHash string
	IsGuest      bool
	SessionID    string // for guest user session tracking
	CreatedAt    time.Time
}

// Message is a persisted chat message. Seq is the log's own insertion
// order and breaks ties between equal timestamps; both Seq and
// CreatedAt are assigned by the log on append, never by the client.
type Message struct {
	ID            string
	Seq           int64
	ChannelID     string
	SenderID      string
	Text          string
	AttachmentURL string
	CreatedAt     time.Time
}

// ErrLogClosed terminates subscribers when the log shuts down.
var ErrLogClosed = errors.New("message log closed")

// Subscriber receives the full ordered message list on every log
// change. Snapshots are replacement lists, not diffs: it is always safe
// to re-derive every view from scratch. OnTerminated fires once when
// the stream ends; no OnSnapshot follows it.
type Subscriber interface {
	OnSnapshot(msgs []Message)
	OnTerminated(err error)
}

// Log is the append-only, server-ordered message log.
type Log interface {
	// Append persists msg, assigning ID, Seq and CreatedAt. The returned
	// record is the stored one.
	Append(ctx context.Context, msg *Message) (*Message, error)

	// Subscribe registers sub and immediately delivers the current
	// snapshot. The returned function cancels the subscription
	// deterministically; no callbacks run after it returns.
	Subscribe(sub Subscriber) (func(), error)
}

// MessageStore adds paginated history reads on top of the log.
type MessageStore interface {
	Log

	// ListMessages returns up to limit messages from a channel in log
	// order. If beforeSeq > 0 only messages with Seq < beforeSeq are
	// returned, oldest first within the page.
	ListMessages(ctx context.Context, channelID string, limit int, beforeSeq int64) ([]*Message, error)
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// CreateGuestUser creates a temporary guest user with session ID.
	CreateGuestUser(ctx context.Context, sessionID string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SearchUsers searches non-guest users by username substring.
	SearchUsers(ctx context.Context, query string) ([]*User, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection and terminates
	// all log subscribers.
	Close() error
}
