package chat

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/lojistavip/vipchat-server/internal/store"
)

// fakeIdentity is a swappable identity source for tests.
type fakeIdentity struct {
	mu sync.Mutex
	id Participant
	ok bool
}

func signedIn(id Participant) *fakeIdentity {
	return &fakeIdentity{id: id, ok: true}
}

func signedOut() *fakeIdentity {
	return &fakeIdentity{}
}

func (f *fakeIdentity) Current() (Participant, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id, f.ok
}

func (f *fakeIdentity) set(id Participant, ok bool) {
	f.mu.Lock()
	f.id = id
	f.ok = ok
	f.mu.Unlock()
}

// fakeLog is an in-memory store.Log with snapshot fan-out, recording
// every append so tests can assert zero log interaction on rejected
// sends.
type fakeLog struct {
	mu      sync.Mutex
	msgs    []store.Message
	seq     int64
	subs    map[int]store.Subscriber
	nextSub int
	failErr error
}

func newFakeLog() *fakeLog {
	return &fakeLog{subs: make(map[int]store.Subscriber)}
}

func (l *fakeLog) Append(_ context.Context, msg *store.Message) (*store.Message, error) {
	l.mu.Lock()
	if l.failErr != nil {
		err := l.failErr
		l.mu.Unlock()
		return nil, err
	}
	l.seq++
	stored := *msg
	stored.Seq = l.seq
	stored.ID = "m" + strconv.FormatInt(l.seq, 10)
	stored.CreatedAt = time.Unix(l.seq, 0)
	l.msgs = append(l.msgs, stored)
	snap := append([]store.Message(nil), l.msgs...)
	subs := make([]store.Subscriber, 0, len(l.subs))
	for _, s := range l.subs {
		subs = append(subs, s)
	}
	l.mu.Unlock()

	for _, s := range subs {
		s.OnSnapshot(snap)
	}
	return &stored, nil
}

func (l *fakeLog) Subscribe(sub store.Subscriber) (func(), error) {
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = sub
	snap := append([]store.Message(nil), l.msgs...)
	l.mu.Unlock()

	sub.OnSnapshot(snap)
	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}, nil
}

func (l *fakeLog) appendCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}

func (l *fakeLog) fail(err error) {
	l.mu.Lock()
	l.failErr = err
	l.mu.Unlock()
}

func (l *fakeLog) terminate(err error) {
	l.mu.Lock()
	subs := make([]store.Subscriber, 0, len(l.subs))
	for _, s := range l.subs {
		subs = append(subs, s)
	}
	l.subs = make(map[int]store.Subscriber)
	l.mu.Unlock()

	for _, s := range subs {
		s.OnTerminated(err)
	}
}
