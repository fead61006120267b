package pubsub

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pathakanu/remindme/internal/notifier"
)

// Hub fans alerts out to live subscribers (websocket clients, the terminal UI).
type Hub struct {
	subscriptions    map[uuid.UUID]chan notifier.Alert
	subscriptionsMux sync.RWMutex
	buffer           int
}

// NewHub creates a Hub whose subscriber channels hold buffer alerts.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subscriptions: make(map[uuid.UUID]chan notifier.Alert),
		buffer:        buffer,
	}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() (uuid.UUID, <-chan notifier.Alert) {
	h.subscriptionsMux.Lock()
	defer h.subscriptionsMux.Unlock()

	id := uuid.New()
	ch := make(chan notifier.Alert, h.buffer)
	h.subscriptions[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	h.subscriptionsMux.Lock()
	defer h.subscriptionsMux.Unlock()

	if ch, ok := h.subscriptions[id]; ok {
		close(ch)
		delete(h.subscriptions, id)
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.subscriptionsMux.RLock()
	defer h.subscriptionsMux.RUnlock()
	return len(h.subscriptions)
}

// Broadcast sends alert to every subscriber without blocking.
func (h *Hub) Broadcast(alert notifier.Alert) {
	h.subscriptionsMux.RLock()
	defer h.subscriptionsMux.RUnlock()

	for _, ch := range h.subscriptions {
		select {
		case ch <- alert:
		default:
			// Channel full, skip
		}
	}
}

// Send implements notifier.Sender.
func (h *Hub) Send(_ context.Context, alert notifier.Alert) error {
	h.Broadcast(alert)
	return nil
}
