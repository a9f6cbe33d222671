package chat

import (
	"fmt"
	"sync"

	"github.com/lojistavip/vipchat-server/internal/store"
)

// ViewMessage is a log message annotated for one viewer. IsMine is
// computed at projection time and never stored.
type ViewMessage struct {
	store.Message
	IsMine bool
}

// View is a derived, per-viewer ordered list of messages for one
// channel. Message order is the log's order (timestamp then sequence),
// never the arrival order of snapshots. Stale marks views derived
// after the log stream terminated; Err carries the terminal error so
// the UI can distinguish a dead stream from an empty channel.
type View struct {
	ChannelID string
	Messages  []ViewMessage
	Stale     bool
	Err       error
}

// Projector turns the single server-ordered message log into the
// per-channel views the current viewer may see. It holds only the
// latest snapshot; every view is derived fresh from that snapshot and
// the identity source at read time. Nothing per-viewer is cached, so a
// sign-out or viewer change is reflected immediately and a previous
// viewer's direct view can never leak.
type Projector struct {
	identity Identity
	onChange func()

	mu       sync.Mutex
	snapshot []store.Message
	lost     error
	closed   bool
	cancel   func()
}

// NewProjector subscribes to log and projects for whoever identity
// reports. onChange, when non-nil, runs after every accepted snapshot
// and on stream termination; it is invoked from the log's notification
// goroutine and must not block.
func NewProjector(log store.Log, identity Identity, onChange func()) (*Projector, error) {
	p := &Projector{identity: identity, onChange: onChange}
	cancel, err := log.Subscribe(p)
	if err != nil {
		return nil, fmt.Errorf("subscribe log: %w", err)
	}
	p.cancel = cancel
	return p, nil
}

// OnSnapshot implements store.Subscriber. Snapshots are full
// replacement lists, so applying the same one twice is a no-op for
// every derived view.
func (p *Projector) OnSnapshot(msgs []store.Message) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	snap := make([]store.Message, len(msgs))
	copy(snap, msgs)
	p.snapshot = snap
	notify := p.onChange
	p.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// OnTerminated implements store.Subscriber.
func (p *Projector) OnTerminated(err error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if err != nil {
		p.lost = fmt.Errorf("%w: %w", ErrSubscriptionLost, err)
	} else {
		p.lost = ErrSubscriptionLost
	}
	notify := p.onChange
	p.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// Broadcast derives the community channel view. When signed out every
// IsMine flag is false.
func (p *Projector) Broadcast() View {
	snap, lost := p.state()
	viewer, _ := p.identity.Current()
	return project(snap, BroadcastChannel, viewer, lost)
}

// Direct derives the view of the direct channel between the current
// viewer and peer. It fails with ErrUnauthenticated when signed out:
// a direct view the viewer is not a party to is never exposed.
func (p *Projector) Direct(peer Participant) (View, error) {
	snap, lost := p.state()
	viewer, ok := p.identity.Current()
	if !ok {
		return View{}, ErrUnauthenticated
	}
	channelID, err := DirectChannel(viewer, peer)
	if err != nil {
		return View{}, err
	}
	return project(snap, channelID, viewer, lost), nil
}

// Err returns the terminal stream error, or nil while the subscription
// is healthy.
func (p *Projector) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lost
}

// Close cancels the log subscription. No callbacks are observed after
// Close returns; in-flight appends still complete in the log but are
// no longer surfaced here.
func (p *Projector) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (p *Projector) state() ([]store.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot, p.lost
}

// project filters one channel out of the snapshot, preserving log
// order, and annotates each message relative to viewer.
func project(snap []store.Message, channelID string, viewer Participant, lost error) View {
	view := View{
		ChannelID: channelID,
		Messages:  make([]ViewMessage, 0, len(snap)),
		Stale:     lost != nil,
		Err:       lost,
	}
	for _, msg := range snap {
		if msg.ChannelID != channelID {
			continue
		}
		view.Messages = append(view.Messages, ViewMessage{
			Message: msg,
			IsMine:  viewer != "" && msg.SenderID == viewer,
		})
	}
	return view
}
