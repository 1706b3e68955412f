package broadcast

import (
	"sync"

	"skimo-var/core/utils"
)

const defaultSubscriberBuffer = 64

// Hub fans committed state changes out to viewing clients, scoped per race.
// Delivery is at-least-once and best-effort: publication happens after the
// originating transaction commits, and a failure to deliver never rolls
// anything back. Events published in sequence for the same incident reach
// any single subscriber in that order; nothing is guaranteed across
// incidents or across subscribers.
type Hub struct {
	mu     sync.Mutex
	nextID int64
	subs   map[int64]map[int64]*Subscription // raceID → subID → sub
	buffer int
	logger *utils.Logger
}

type Subscription struct {
	ID     int64
	RaceID int64
	C      <-chan Event

	hub *Hub
	ch  chan Event
}

func NewHub(buffer int, logger *utils.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{
		subs:   map[int64]map[int64]*Subscription{},
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a viewing client for one race. Creation-only edge
// devices never call this; they are write-only clients.
func (h *Hub) Subscribe(raceID int64) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	ch := make(chan Event, h.buffer)
	sub := &Subscription{ID: h.nextID, RaceID: raceID, C: ch, hub: h, ch: ch}
	if h.subs[raceID] == nil {
		h.subs[raceID] = map[int64]*Subscription{}
	}
	h.subs[raceID][sub.ID] = sub
	return sub
}

func (sub *Subscription) Close() {
	if sub == nil || sub.hub == nil {
		return
	}
	sub.hub.unsubscribe(sub)
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(sub)
}

func (h *Hub) dropLocked(sub *Subscription) {
	race, ok := h.subs[sub.RaceID]
	if !ok {
		return
	}
	if _, ok := race[sub.ID]; !ok {
		return
	}
	delete(race, sub.ID)
	if len(race) == 0 {
		delete(h.subs, sub.RaceID)
	}
	close(sub.ch)
}

// Publish delivers the event to every subscriber of its race. A subscriber
// whose buffer is full is dropped on the spot: its channel closes and the
// client refetches current state on reconnect instead of relying on a
// gap-free log.
func (h *Hub) Publish(raceID int64, ev Event) {
	ev.RaceID = raceID
	h.mu.Lock()
	defer h.mu.Unlock()
	race := h.subs[raceID]
	if len(race) == 0 {
		return
	}
	var dropped []*Subscription
	for _, sub := range race {
		select {
		case sub.ch <- ev:
		default:
			dropped = append(dropped, sub)
		}
	}
	for _, sub := range dropped {
		if h.logger != nil {
			h.logger.Printf("HUB drop slow subscriber race=%d sub=%d", raceID, sub.ID)
		}
		h.dropLocked(sub)
	}
}

// SubscriberCount reports active subscriptions for a race.
func (h *Hub) SubscriberCount(raceID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[raceID])
}
