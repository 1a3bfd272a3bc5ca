package broadcast

import (
	"sync"
	"time"

	"atelier-backend/internal/domain"

	"github.com/google/uuid"
)

// Hub delivers snapshots to in-process subscribers. Delivery never blocks:
// a subscriber that falls behind loses its oldest buffered snapshot.
type Hub struct {
	mu     sync.Mutex
	buffer int
	subs   map[uuid.UUID]map[chan Snapshot]struct{}
	latest map[uuid.UUID]Snapshot
	// closed remembers recently closed auctions so that snapshots arriving
	// after the closing one are still dropped.
	closed map[uuid.UUID]time.Time
}

const closedTTL = 10 * time.Minute

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		buffer: buffer,
		subs:   make(map[uuid.UUID]map[chan Snapshot]struct{}),
		latest: make(map[uuid.UUID]Snapshot),
		closed: make(map[uuid.UUID]time.Time),
	}
}

// Subscribe registers a subscriber for one auction. The latest known
// snapshot, if any, is delivered first.
func (h *Hub) Subscribe(auctionID uuid.UUID) (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, h.buffer)

	h.mu.Lock()
	if h.subs[auctionID] == nil {
		h.subs[auctionID] = make(map[chan Snapshot]struct{})
	}
	h.subs[auctionID][ch] = struct{}{}
	if s, ok := h.latest[auctionID]; ok {
		ch <- s
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[auctionID], ch)
			if len(h.subs[auctionID]) == 0 {
				delete(h.subs, auctionID)
			}
			close(ch)
		})
	}
}

// Deliver fans s out. Snapshots older than or equal to the latest one seen
// for the auction are dropped, as is anything arriving after it closed.
func (h *Hub) Deliver(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.closed[s.AuctionID]; ok {
		return
	}
	if prev, ok := h.latest[s.AuctionID]; ok && prev.Sequence >= s.Sequence {
		return
	}
	if s.State == domain.AuctionClosed {
		delete(h.latest, s.AuctionID)
		h.markClosed(s.AuctionID, time.Now())
	} else {
		h.latest[s.AuctionID] = s
	}

	for ch := range h.subs[s.AuctionID] {
		select {
		case ch <- s:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

// markClosed records a close and forgets closes older than closedTTL. The
// caller holds h.mu.
func (h *Hub) markClosed(auctionID uuid.UUID, now time.Time) {
	for id, at := range h.closed {
		if now.Sub(at) > closedTTL {
			delete(h.closed, id)
		}
	}
	h.closed[auctionID] = now
}

func (h *Hub) Latest(auctionID uuid.UUID) (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.latest[auctionID]
	return s, ok
}

func (h *Hub) Subscribers(auctionID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[auctionID])
}
