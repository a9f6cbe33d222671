package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lojistavip/vipchat-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	is_guest      BOOLEAN NOT NULL DEFAULT 0,
	session_id    TEXT,
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	id             TEXT NOT NULL UNIQUE,
	channel_id     TEXT NOT NULL,
	sender_id      TEXT NOT NULL,
	text           TEXT NOT NULL,
	attachment_url TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, seq);
`

// SQLiteStore implements store.Store for SQLite. Appends fan out the
// full ordered message list to every subscriber, which makes the
// messages table behave like the append-only realtime log the chat
// core expects.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex // guards subs and closed
	subs    map[int64]store.Subscriber
	nextSub int64
	closed  bool

	// notifyMu serializes snapshot delivery so subscribers observe
	// snapshots in append order, and so cancelling a subscription
	// cannot return while a delivery to it is still in flight.
	notifyMu sync.Mutex
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{
		db:   db,
		subs: make(map[int64]store.Subscriber),
	}, nil
}

// Close closes the database connection and terminates all subscribers
// with store.ErrLogClosed.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ids := make([]int64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	s.notifyMu.Lock()
	for _, id := range ids {
		// Skip subscriptions cancelled between the copy above and this
		// delivery; their cancel already returned.
		s.mu.Lock()
		sub, ok := s.subs[id]
		delete(s.subs, id)
		s.mu.Unlock()
		if ok {
			sub.OnTerminated(store.ErrLogClosed)
		}
	}
	s.notifyMu.Unlock()

	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO users (id, username, password_hash, is_guest, created_at)
		VALUES (?, ?, ?, 0, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, id, username, passwordHash, time.Now().UTC().UnixNano()); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

// CreateGuestUser creates a temporary guest user with session ID.
func (s *SQLiteStore) CreateGuestUser(ctx context.Context, sessionID string) (*store.User, error) {
	id := uuid.NewString()
	guestUsername := "guest_" + sessionID[:8]
	query := `
		INSERT INTO users (id, username, password_hash, is_guest, session_id, created_at)
		VALUES (?, ?, '', 1, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, id, guestUsername, sessionID, time.Now().UTC().UnixNano()); err != nil {
		return nil, fmt.Errorf("insert guest user: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, is_guest, COALESCE(session_id, ''), created_at
		FROM users
		WHERE id = ?
	`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, is_guest, COALESCE(session_id, ''), created_at
		FROM users
		WHERE username = ?
	`
	return scanUser(s.db.QueryRowContext(ctx, query, username))
}

// SearchUsers searches non-guest users by username substring.
func (s *SQLiteStore) SearchUsers(ctx context.Context, query string) ([]*store.User, error) {
	stmt := `
		SELECT id, username, password_hash, is_guest, COALESCE(session_id, ''), created_at
		FROM users
		WHERE is_guest = 0 AND username LIKE ?
		ORDER BY username
		LIMIT 50
	`
	rows, err := s.db.QueryContext(ctx, stmt, "%"+query+"%")
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	users := make([]*store.User, 0)
	for rows.Next() {
		var u store.User
		var createdAt int64
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsGuest, &u.SessionID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.CreatedAt = time.Unix(0, createdAt).UTC()
		users = append(users, &u)
	}
	return users, rows.Err()
}

func scanUser(row *sql.Row) (*store.User, error) {
	var u store.User
	var createdAt int64
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsGuest, &u.SessionID, &createdAt); err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = time.Unix(0, createdAt).UTC()
	return &u, nil
}

// ==== Log / MessageStore implementation ====

// Append persists msg, assigning its id, sequence and server
// timestamp, then delivers the refreshed snapshot to all subscribers.
func (s *SQLiteStore) Append(ctx context.Context, msg *store.Message) (*store.Message, error) {
	id := uuid.NewString()
	createdAt := time.Now().UTC()

	query := `
		INSERT INTO messages (id, channel_id, sender_id, text, attachment_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		id, msg.ChannelID, msg.SenderID, msg.Text, msg.AttachmentURL, createdAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	stored := &store.Message{
		ID:            id,
		Seq:           seq,
		ChannelID:     msg.ChannelID,
		SenderID:      msg.SenderID,
		Text:          msg.Text,
		AttachmentURL: msg.AttachmentURL,
		CreatedAt:     createdAt,
	}

	// The append succeeded regardless of delivery: subscribers catch up
	// on the next snapshot if this one fails to load.
	_ = s.broadcast(ctx)
	return stored, nil
}

// Subscribe registers sub and immediately delivers the current
// snapshot.
func (s *SQLiteStore) Subscribe(sub store.Subscriber) (func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, store.ErrLogClosed
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	s.mu.Unlock()

	snap, err := s.snapshot(context.Background())
	if err != nil {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		return nil, err
	}

	s.notifyMu.Lock()
	sub.OnSnapshot(snap)
	s.notifyMu.Unlock()

	cancel := func() {
		// Block until any in-flight delivery has finished, so no
		// callback runs after cancel returns.
		s.notifyMu.Lock()
		defer s.notifyMu.Unlock()
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
	return cancel, nil
}

// ListMessages returns up to limit messages from a channel in log
// order, oldest first. If beforeSeq > 0 only older messages are
// returned.
func (s *SQLiteStore) ListMessages(ctx context.Context, channelID string, limit int, beforeSeq int64) ([]*store.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if beforeSeq > 0 {
		query := `
			SELECT seq, id, channel_id, sender_id, text, attachment_url, created_at
			FROM messages
			WHERE channel_id = ? AND seq < ?
			ORDER BY seq DESC
			LIMIT ?
		`
		rows, err = s.db.QueryContext(ctx, query, channelID, beforeSeq, limit)
	} else {
		query := `
			SELECT seq, id, channel_id, sender_id, text, attachment_url, created_at
			FROM messages
			WHERE channel_id = ?
			ORDER BY seq DESC
			LIMIT ?
		`
		rows, err = s.db.QueryContext(ctx, query, channelID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]*store.Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse newest-first page into log order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// snapshot loads the full ordered log.
func (s *SQLiteStore) snapshot(ctx context.Context) ([]store.Message, error) {
	query := `
		SELECT seq, id, channel_id, sender_id, text, attachment_url, created_at
		FROM messages
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer rows.Close()

	msgs := make([]store.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *msg)
	}
	return msgs, rows.Err()
}

// broadcast delivers the current snapshot to all subscribers in append
// order. Subscriber callbacks must not block.
func (s *SQLiteStore) broadcast(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || len(s.subs) == 0 {
		s.mu.Unlock()
		return nil
	}
	ids := make([]int64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	snap, err := s.snapshot(ctx)
	if err != nil {
		return err
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	for _, id := range ids {
		// A subscription cancelled while the snapshot loaded must not
		// see this delivery.
		s.mu.Lock()
		sub, ok := s.subs[id]
		s.mu.Unlock()
		if ok {
			sub.OnSnapshot(snap)
		}
	}
	return nil
}

func scanMessage(rows *sql.Rows) (*store.Message, error) {
	var msg store.Message
	var createdAt int64
	if err := rows.Scan(&msg.Seq, &msg.ID, &msg.ChannelID, &msg.SenderID, &msg.Text, &msg.AttachmentURL, &createdAt); err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	msg.CreatedAt = time.Unix(0, createdAt).UTC()
	return &msg, nil
}
