package challenge

import (
	"context"
	"sync"
)

// watchHub fans catalog snapshots out to in-process subscribers. Each subscriber
// holds at most one pending snapshot; a newer snapshot replaces an unread one.
type watchHub struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]chan []Challenge
}

func newWatchHub() *watchHub {
	return &watchHub{subs: make(map[string]map[int]chan []Challenge)}
}

func (h *watchHub) subscribe(ctx context.Context, userID string, initial []Challenge) <-chan []Challenge {
	ch := make(chan []Challenge, 1)
	ch <- initial

	h.mu.Lock()
	id := h.next
	h.next++
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[int]chan []Challenge)
	}
	h.subs[userID][id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[userID], id)
		if len(h.subs[userID]) == 0 {
			delete(h.subs, userID)
		}
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

func (h *watchHub) publish(userID string, snapshot []Challenge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[userID] {
		select {
		case <-ch:
		default:
		}
		ch <- cloneAll(snapshot)
	}
}

func cloneAll(in []Challenge) []Challenge {
	out := make([]Challenge, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}
