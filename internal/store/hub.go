package store

import (
	"log"
	"sync"
)

const subscriptionBuffer = 64

// Subscription is one consumer's handle on a room feed. Close is safe
// to call any number of times; after Close the channel is closed and
// no further events are delivered, though buffered events may still be
// drained.
type Subscription struct {
	roomID string
	events chan Event
	once   sync.Once
	cancel func(*Subscription)
}

func (s *Subscription) Events() <-chan Event { return s.events }

func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel(s)
		}
	})
}

// hub fans change events out to per-room subscribers. Memory and
// SQLite backends publish into it directly after commit; the Postgres
// backend feeds it from LISTEN/NOTIFY.
type hub struct {
	mu     sync.Mutex
	rooms  map[string]map[*Subscription]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{rooms: make(map[string]map[*Subscription]struct{})}
}

func (h *hub) subscribe(roomID string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	sub := &Subscription{
		roomID: roomID,
		events: make(chan Event, subscriptionBuffer),
		cancel: h.unsubscribe,
	}
	subs, ok := h.rooms[roomID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.rooms[roomID] = subs
	}
	subs[sub] = struct{}{}
	return sub, nil
}

func (h *hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[sub.roomID]
	if !ok {
		return
	}
	if _, member := subs[sub]; !member {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.rooms, sub.roomID)
	}
	close(sub.events)
}

func (h *hub) publish(roomID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.rooms[roomID]
	for sub := range subs {
		select {
		case sub.events <- ev:
		default:
			// The feed contract is lossless-or-closed: silently
			// dropping an event would stall a consumer waiting on its
			// own echo. Closing the channel makes the consumer
			// resubscribe and reconcile.
			log.Printf("[Store] Subscriber backlog for room %s, closing its feed", roomID)
			delete(subs, sub)
			close(sub.events)
		}
	}
	if len(subs) == 0 {
		delete(h.rooms, roomID)
	}
}

// closeAll terminates every live subscription. Consumers observe the
// channel close and run their reconnect-and-reconcile path.
func (h *hub) closeAll(markClosed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if markClosed {
		h.closed = true
	}
	for roomID, subs := range h.rooms {
		for sub := range subs {
			close(sub.events)
		}
		delete(h.rooms, roomID)
	}
}
