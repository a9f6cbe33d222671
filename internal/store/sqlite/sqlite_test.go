package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/lojistavip/vipchat-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// recordingSubscriber collects snapshots and the terminal error.
type recordingSubscriber struct {
	mu         sync.Mutex
	snapshots  [][]store.Message
	terminated error
}

func (r *recordingSubscriber) OnSnapshot(msgs []store.Message) {
	r.mu.Lock()
	snap := append([]store.Message(nil), msgs...)
	r.snapshots = append(r.snapshots, snap)
	r.mu.Unlock()
}

func (r *recordingSubscriber) OnTerminated(err error) {
	r.mu.Lock()
	r.terminated = err
	r.mu.Unlock()
}

func (r *recordingSubscriber) last(t *testing.T) []store.Message {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		t.Fatal("no snapshots received")
	}
	return r.snapshots[len(r.snapshots)-1]
}

func TestAppendAssignsServerOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Append(ctx, &store.Message{ChannelID: "community", SenderID: "alice", Text: "one"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	second, err := s.Append(ctx, &store.Message{ChannelID: "community", SenderID: "bob", Text: "two"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if first.ID == "" || second.ID == "" || first.ID == second.ID {
		t.Errorf("expected unique non-empty ids, got %q and %q", first.ID, second.ID)
	}
	if second.Seq <= first.Seq {
		t.Errorf("expected monotonic seq, got %d then %d", first.Seq, second.Seq)
	}
	if first.CreatedAt.IsZero() || second.CreatedAt.Before(first.CreatedAt) {
		t.Errorf("expected monotonic timestamps, got %v then %v", first.CreatedAt, second.CreatedAt)
	}
}

func TestSubscribeDeliversOrderedSnapshots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, &store.Message{ChannelID: "community", SenderID: "alice", Text: "one"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	sub := &recordingSubscriber{}
	cancel, err := s.Subscribe(sub)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// The current snapshot arrives immediately.
	if got := sub.last(t); len(got) != 1 || got[0].Text != "one" {
		t.Fatalf("unexpected initial snapshot: %+v", got)
	}

	if _, err := s.Append(ctx, &store.Message{ChannelID: "dm:alice:bob", SenderID: "bob", Text: "two"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	snap := sub.last(t)
	if len(snap) != 2 {
		t.Fatalf("expected full replacement snapshot of 2, got %d", len(snap))
	}
	if snap[0].Seq >= snap[1].Seq {
		t.Errorf("snapshot not in log order: %+v", snap)
	}

	// After cancel no further snapshots arrive.
	cancel()
	before := len(sub.snapshots)
	if _, err := s.Append(ctx, &store.Message{ChannelID: "community", SenderID: "alice", Text: "three"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(sub.snapshots) != before {
		t.Fatalf("expected no snapshots after cancel, got %d new", len(sub.snapshots)-before)
	}
}

func TestCloseTerminatesSubscribers(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	sub := &recordingSubscriber{}
	if _, err := s.Subscribe(sub); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !errors.Is(sub.terminated, store.ErrLogClosed) {
		t.Fatalf("expected ErrLogClosed, got %v", sub.terminated)
	}

	if _, err := s.Subscribe(&recordingSubscriber{}); !errors.Is(err, store.ErrLogClosed) {
		t.Fatalf("expected ErrLogClosed on subscribe after close, got %v", err)
	}
}

func TestCancelledSubscriberGetsNoFurtherCallbacks(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()

	cancelled := &recordingSubscriber{}
	cancel, err := s.Subscribe(cancelled)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	live := &recordingSubscriber{}
	if _, err := s.Subscribe(live); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	cancel()
	before := len(cancelled.snapshots)

	if _, err := s.Append(ctx, &store.Message{ChannelID: "community", SenderID: "alice", Text: "after cancel"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got := len(cancelled.snapshots); got != before {
		t.Fatalf("cancelled subscriber received %d snapshots after cancel", got-before)
	}
	if got := live.last(t); len(got) != 1 || got[0].Text != "after cancel" {
		t.Fatalf("live subscriber missed the append, last snapshot: %+v", got)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if cancelled.terminated != nil {
		t.Fatalf("cancelled subscriber terminated after cancel: %v", cancelled.terminated)
	}
	if !errors.Is(live.terminated, store.ErrLogClosed) {
		t.Fatalf("expected ErrLogClosed for live subscriber, got %v", live.terminated)
	}
}

func TestListMessagesPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	texts := []string{"a", "b", "c", "d", "e"}
	for _, text := range texts {
		if _, err := s.Append(ctx, &store.Message{ChannelID: "community", SenderID: "alice", Text: text}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if _, err := s.Append(ctx, &store.Message{ChannelID: "dm:alice:bob", SenderID: "alice", Text: "private"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Latest page, oldest first within the page.
	page, err := s.ListMessages(ctx, "community", 2, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(page) != 2 || page[0].Text != "d" || page[1].Text != "e" {
		t.Fatalf("unexpected latest page: %+v", page)
	}

	// Page before the previous one.
	older, err := s.ListMessages(ctx, "community", 2, page[0].Seq)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(older) != 2 || older[0].Text != "b" || older[1].Text != "c" {
		t.Fatalf("unexpected older page: %+v", older)
	}

	// Other channels never bleed in.
	for _, msg := range append(page, older...) {
		if msg.ChannelID != "community" {
			t.Fatalf("foreign channel message in page: %+v", msg)
		}
	}
}

func TestUserLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, "alice", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if created.ID == "" || created.IsGuest {
		t.Fatalf("unexpected user: %+v", created)
	}

	byName, err := s.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if byName.ID != created.ID {
		t.Errorf("expected id %q, got %q", created.ID, byName.ID)
	}

	guest, err := s.CreateGuestUser(ctx, "0123456789abcdef")
	if err != nil {
		t.Fatalf("CreateGuestUser: %v", err)
	}
	if !guest.IsGuest || guest.Username != "guest_01234567" {
		t.Fatalf("unexpected guest: %+v", guest)
	}

	// Guests stay out of the directory.
	found, err := s.SearchUsers(ctx, "gue")
	if err != nil {
		t.Fatalf("SearchUsers: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected guests excluded from search, got %+v", found)
	}

	found, err = s.SearchUsers(ctx, "ali")
	if err != nil {
		t.Fatalf("SearchUsers: %v", err)
	}
	if len(found) != 1 || found[0].Username != "alice" {
		t.Fatalf("unexpected search result: %+v", found)
	}
}
