package chat

import (
	"errors"
	"testing"
)

func TestDirectChannelSymmetry(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"u1", "u2"},
		{"9f8e", "0a1b"},
		{"zz", "aa"},
	}
	for _, pair := range pairs {
		ab, err := DirectChannel(pair[0], pair[1])
		if err != nil {
			t.Fatalf("DirectChannel(%q, %q): %v", pair[0], pair[1], err)
		}
		ba, err := DirectChannel(pair[1], pair[0])
		if err != nil {
			t.Fatalf("DirectChannel(%q, %q): %v", pair[1], pair[0], err)
		}
		if ab != ba {
			t.Errorf("expected symmetric ids for %v, got %q and %q", pair, ab, ba)
		}
	}
}

func TestDirectChannelUniqueness(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"alice", "carol"},
		{"bob", "carol"},
		{"a", "bc"},
		{"ab", "c"},
	}
	seen := make(map[string][2]string)
	for _, pair := range pairs {
		id, err := DirectChannel(pair[0], pair[1])
		if err != nil {
			t.Fatalf("DirectChannel(%q, %q): %v", pair[0], pair[1], err)
		}
		if prev, dup := seen[id]; dup {
			t.Errorf("pairs %v and %v derived the same id %q", prev, pair, id)
		}
		seen[id] = pair
	}
}

func TestDirectChannelNeverCollidesWithBroadcast(t *testing.T) {
	id, err := DirectChannel("comm", "unity")
	if err != nil {
		t.Fatalf("DirectChannel: %v", err)
	}
	if id == BroadcastChannel {
		t.Fatalf("direct id %q collides with broadcast channel", id)
	}
	if !IsDirectChannel(id) {
		t.Errorf("expected %q to be recognized as a direct channel", id)
	}
	if IsDirectChannel(BroadcastChannel) {
		t.Errorf("broadcast channel must not be a direct channel")
	}
}

func TestDirectChannelRejectsSelfAddress(t *testing.T) {
	if _, err := DirectChannel("alice", "alice"); !errors.Is(err, ErrSelfAddressed) {
		t.Fatalf("expected ErrSelfAddressed, got %v", err)
	}
}

func TestDirectChannelRejectsInvalidParticipants(t *testing.T) {
	cases := []struct {
		name string
		a, b string
	}{
		{"empty first", "", "bob"},
		{"empty second", "alice", ""},
		{"broadcast literal", "community", "bob"},
		{"separator in id", "al:ice", "bob"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DirectChannel(tc.a, tc.b); !errors.Is(err, ErrInvalidParticipant) {
				t.Fatalf("expected ErrInvalidParticipant, got %v", err)
			}
		})
	}
}

func TestDirectChannelIsPure(t *testing.T) {
	first, err := DirectChannel("alice", "bob")
	if err != nil {
		t.Fatalf("DirectChannel: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := DirectChannel("alice", "bob")
		if err != nil {
			t.Fatalf("DirectChannel: %v", err)
		}
		if again != first {
			t.Fatalf("expected stable id %q, got %q", first, again)
		}
	}
}
