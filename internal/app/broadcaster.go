package app

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/telemetry"
)

// DefaultSubscriptionBuffer is the per-subscriber queue length when none is configured.
const DefaultSubscriptionBuffer = 8

// SnapshotSource resolves the current snapshot of a session.
type SnapshotSource interface {
	Snapshot(id string) (domain.Snapshot, error)
}

// Subscription is one observer's channel into a room.
type Subscription struct {
	sessionID string
	ch        chan domain.Snapshot

	mu        sync.Mutex
	last      uint64
	delivered bool
	closed    bool
}

// C returns the channel snapshots are delivered on. It is closed on unsubscribe.
func (s *Subscription) C() <-chan domain.Snapshot {
	return s.ch
}

// SessionID returns the room this subscription belongs to.
func (s *Subscription) SessionID() string {
	return s.sessionID
}

// deliver queues snap unless an equal or newer version was already queued. When the
// buffer is full the oldest queued snapshot is dropped; the newest state always wins.
func (s *Subscription) deliver(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || (s.delivered && snap.Version <= s.last) {
		return
	}
	s.last = snap.Version
	s.delivered = true

	select {
	case s.ch <- snap:
		telemetry.ObserveDelivery(false)
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
	telemetry.ObserveDelivery(true)
}

func (s *Subscription) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	close(s.ch)
	return true
}

// Broadcaster fans session snapshots out to rooms of subscribers.
type Broadcaster struct {
	source SnapshotSource
	buffer int

	mu    sync.RWMutex
	rooms map[string]map[*Subscription]struct{}
}

func NewBroadcaster(source SnapshotSource, buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultSubscriptionBuffer
	}
	return &Broadcaster{
		source: source,
		buffer: buffer,
		rooms:  make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe joins the room of sessionID and queues the current snapshot for this
// subscriber only. Registration happens before the snapshot is read so no update
// between the two is lost.
func (b *Broadcaster) Subscribe(_ context.Context, sessionID string) (*Subscription, error) {
	sub := &Subscription{
		sessionID: sessionID,
		ch:        make(chan domain.Snapshot, b.buffer),
	}

	b.mu.Lock()
	room, ok := b.rooms[sessionID]
	if !ok {
		room = make(map[*Subscription]struct{})
		b.rooms[sessionID] = room
	}
	room[sub] = struct{}{}
	b.mu.Unlock()
	telemetry.SubscriberAdded()

	snap, err := b.source.Snapshot(sessionID)
	if err != nil {
		b.Unsubscribe(sub)
		return nil, err
	}
	sub.deliver(snap)
	return sub, nil
}

// Unsubscribe removes sub from its room and closes its channel. Other members are not notified.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	if room, ok := b.rooms[sub.sessionID]; ok {
		delete(room, sub)
		if len(room) == 0 {
			delete(b.rooms, sub.sessionID)
		}
	}
	b.mu.Unlock()

	if sub.close() {
		telemetry.SubscriberRemoved()
	}
}

// Publish delivers the session's current snapshot to every member of its room. It
// never blocks on a slow subscriber.
func (b *Broadcaster) Publish(_ context.Context, sessionID string) error {
	subs := b.members(sessionID)
	if len(subs) == 0 {
		return nil
	}
	snap, err := b.source.Snapshot(sessionID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		sub.deliver(snap)
	}
	return nil
}

// CloseRoom unsubscribes every member of the room.
func (b *Broadcaster) CloseRoom(sessionID string) {
	b.mu.Lock()
	room := b.rooms[sessionID]
	delete(b.rooms, sessionID)
	b.mu.Unlock()

	for sub := range room {
		if sub.close() {
			telemetry.SubscriberRemoved()
		}
	}
}

// RoomSize returns the number of subscribers watching sessionID.
func (b *Broadcaster) RoomSize(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[sessionID])
}

func (b *Broadcaster) members(sessionID string) []*Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	room := b.rooms[sessionID]
	subs := make([]*Subscription, 0, len(room))
	for sub := range room {
		subs = append(subs, sub)
	}
	return subs
}
