// Package chat carries realtime events between request handlers and the
// SSE streams subscribed to them. Escrow channels relay chat traffic to
// the parties of one trade; user channels deliver balance updates to
// their owner only.
package chat

import (
	"sync"

	"github.com/google/uuid"
)

// Event mirrors the wire format of the realtime channel: an event name
// plus a JSON-encodable payload.
type Event struct {
	Name string
	Data any
}

const subscriberBuffer = 16

type Hub struct {
	mu      sync.RWMutex
	escrows map[uuid.UUID]map[chan Event]struct{}
	users   map[uuid.UUID]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{
		escrows: map[uuid.UUID]map[chan Event]struct{}{},
		users:   map[uuid.UUID]map[chan Event]struct{}{},
	}
}

func subscribe(mu *sync.RWMutex, channels map[uuid.UUID]map[chan Event]struct{}, id uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	mu.Lock()
	subs, ok := channels[id]
	if !ok {
		subs = map[chan Event]struct{}{}
		channels[id] = subs
	}
	subs[ch] = struct{}{}
	mu.Unlock()

	cancel := func() {
		mu.Lock()
		if subs, ok := channels[id]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(channels, id)
			}
		}
		mu.Unlock()
	}

	return ch, cancel
}

func publish(mu *sync.RWMutex, channels map[uuid.UUID]map[chan Event]struct{}, id uuid.UUID, ev Event) {
	mu.RLock()
	defer mu.RUnlock()
	for ch := range channels[id] {
		// A subscriber that stopped draining loses events rather than
		// blocking everyone else.
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscribeEscrow registers a listener for one escrow's chat channel.
// The returned cancel must be called when the subscriber disconnects.
func (h *Hub) SubscribeEscrow(escrowID uuid.UUID) (<-chan Event, func()) {
	return subscribe(&h.mu, h.escrows, escrowID)
}

func (h *Hub) PublishEscrow(escrowID uuid.UUID, ev Event) {
	publish(&h.mu, h.escrows, escrowID, ev)
}

// SubscribeUser registers a listener for one user's private channel.
func (h *Hub) SubscribeUser(userID uuid.UUID) (<-chan Event, func()) {
	return subscribe(&h.mu, h.users, userID)
}

func (h *Hub) PublishUser(userID uuid.UUID, ev Event) {
	publish(&h.mu, h.users, userID, ev)
}
