package auth

import (
	"sync"

	"github.com/lojistavip/vipchat-server/internal/chat"
)

// Session holds the current participant for one connection. It
// implements chat.Identity: the router and projector read it on every
// operation, so sign-in and sign-out take effect immediately without
// any cached per-viewer state.
type Session struct {
	mu       sync.Mutex
	id       string
	ok       bool
	watchers []func()
}

// NewSession returns a signed-out session.
func NewSession() *Session {
	return &Session{}
}

// Current implements chat.Identity.
func (s *Session) Current() (chat.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.ok
}

// SignIn records claims as the current participant and notifies
// watchers.
func (s *Session) SignIn(claims *Claims) {
	s.mu.Lock()
	s.id = claims.UserID
	s.ok = true
	watchers := append([]func(){}, s.watchers...)
	s.mu.Unlock()

	for _, fn := range watchers {
		fn()
	}
}

// SignOut clears the current participant and notifies watchers.
func (s *Session) SignOut() {
	s.mu.Lock()
	s.id = ""
	s.ok = false
	watchers := append([]func(){}, s.watchers...)
	s.mu.Unlock()

	for _, fn := range watchers {
		fn()
	}
}

// OnChange registers fn to run after every sign-in or sign-out. It is
// invoked from the caller of SignIn/SignOut and must not block.
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
}
