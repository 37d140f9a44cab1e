package memory

import (
	"context"
	"sync"

	"exam-duel-service/internal/domain"
)

// EventHub fans duel events out to in-process subscribers, keyed by duel id.
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan domain.DuelEvent]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{subscribers: make(map[string]map[chan domain.DuelEvent]struct{})}
}

// Publish never blocks: a subscriber that is behind loses its oldest pending event.
func (h *EventHub) Publish(_ context.Context, ev domain.DuelEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers[ev.DuelID] {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
	return nil
}

// Subscribe returns a channel of events for duelID. The caller must invoke the
// returned cancel function to avoid leaks.
func (h *EventHub) Subscribe(_ context.Context, duelID string) (<-chan domain.DuelEvent, func(), error) {
	ch := make(chan domain.DuelEvent, 8)

	h.mu.Lock()
	subs, ok := h.subscribers[duelID]
	if !ok {
		subs = make(map[chan domain.DuelEvent]struct{})
		h.subscribers[duelID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[duelID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.subscribers, duelID)
		}
	}
	return ch, cancel, nil
}

// Subscribers reports how many listeners a duel has.
func (h *EventHub) Subscribers(duelID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[duelID])
}
