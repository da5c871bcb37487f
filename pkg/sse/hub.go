// Package sse is the per-user server-sent-event fanout. Broadcasts are
// fire-and-forget: a slow subscriber drops events rather than blocking
// the pipeline.
package sse

import (
	"log/slog"
	"sync"
)

// Event names emitted on the user stream.
const (
	EventRunStarted          = "run_started"
	EventAssistantFinalReady = "assistant_final_ready"
	EventAssistantFailed     = "assistant_failed"
)

// Event is one message on a user stream.
type Event struct {
	Type           string         `json:"type"`
	TransmissionID string         `json:"transmissionId,omitempty"`
	ThreadID       string         `json:"threadId,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

// subscriberBuffer bounds how far a consumer may lag before drops start.
const subscriberBuffer = 16

// Hub tracks subscribers per user id.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Event]struct{}
	logger *slog.Logger
}

func NewHub() *Hub {
	return &Hub{
		subs:   make(map[string]map[chan Event]struct{}),
		logger: slog.Default().With("component", "sse"),
	}
}

// Subscribe opens a stream for the user. The caller must Unsubscribe when
// the connection closes.
func (h *Hub) Subscribe(userID string) chan Event {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan Event]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes the stream.
func (h *Hub) Unsubscribe(userID string, ch chan Event) {
	h.mu.Lock()
	if set := h.subs[userID]; set != nil {
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(h.subs, userID)
		}
	}
	h.mu.Unlock()
}

// Publish sends the event to every subscriber of the user, dropping it
// for any subscriber whose buffer is full.
func (h *Hub) Publish(userID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[userID] {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("dropping event for slow subscriber",
				"user_id", userID, "event", ev.Type)
		}
	}
}

// SubscriberCount reports active streams for the user.
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
