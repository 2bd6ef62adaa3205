package chatclient

import (
	"log/slog"
	"sync"

	"marketchat/pkg/protocol"
)

// EventConnectionState is published locally whenever the connection state
// changes. Its data is {"state": "..."}.
const EventConnectionState protocol.EventType = "connection-state"

const subscriptionBuffer = 256

// Subscription receives the events it subscribed to on C until Unsubscribe
// is called or the bus closes, after which C is closed.
type Subscription struct {
	C <-chan protocol.Envelope

	ch    chan protocol.Envelope
	types map[protocol.EventType]struct{}
	bus   *Bus
	once  sync.Once
}

func (s *Subscription) wants(event protocol.EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[event]
	return ok
}

func (s *Subscription) Unsubscribe() {
	s.bus.remove(s)
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// Bus fans inbound events out to subscribers.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
	log    *slog.Logger
}

func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{subs: make(map[*Subscription]struct{}), log: log}
}

// Subscribe returns a subscription for the given event types, or for every
// event when none are given.
func (b *Bus) Subscribe(types ...protocol.EventType) *Subscription {
	ch := make(chan protocol.Envelope, subscriptionBuffer)
	s := &Subscription{C: ch, ch: ch, bus: b, types: make(map[protocol.EventType]struct{}, len(types))}
	for _, t := range types {
		s.types[t] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.close()
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish never blocks. A subscriber whose buffer is full misses the event.
func (b *Bus) Publish(env protocol.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for s := range b.subs {
		if !s.wants(env.Event) {
			continue
		}
		select {
		case s.ch <- env:
		default:
			b.log.Warn("Subscriber is not keeping up, dropping event", "event", env.Event)
		}
	}
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		s.close()
	}
}

// Close ends every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for s := range b.subs {
		s.close()
		delete(b.subs, s)
	}
}
