package app

import (
	"context"
	"sync"

	"karoot/internal/domain"
)

const subscriberBuffer = 64

// Hub is an in-process Relay. Distributed relays reuse it to fan out events
// they receive from Redis or Postgres to local subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan domain.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan domain.Event]struct{})}
}

// Publish delivers the event to local subscribers of its game.
func (h *Hub) Publish(_ context.Context, event domain.Event) error {
	h.Broadcast(event)
	return nil
}

// Subscribe returns a channel of events for gameID.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(_ context.Context, gameID string) (<-chan domain.Event, func(), error) {
	ch := make(chan domain.Event, subscriberBuffer)

	h.mu.Lock()
	subs, ok := h.subscribers[gameID]
	if !ok {
		subs = make(map[chan domain.Event]struct{})
		h.subscribers[gameID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.subscribers[gameID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(h.subscribers, gameID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel, nil
}

// Broadcast fans the event out without blocking; a full subscriber loses its oldest event.
func (h *Hub) Broadcast(event domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[event.GameID] {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
}

// Subscribers reports how many local subscribers a game has.
func (h *Hub) Subscribers(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[gameID])
}
