// Package notify fans push messages out to every connected UI client.
package notify

import (
	"sync"

	"tasmota_mqtt/internal/logger"
)

const defaultBuffer = 32

// Hub broadcasts messages to subscribers. Sends never block: a subscriber whose
// buffer is full misses the message.
type Hub struct {
	log    *logger.Logger
	buffer int

	mu     sync.Mutex
	nextID int
	subs   map[int]chan any
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:    logger.OrNop(log).Named("notify"),
		buffer: defaultBuffer,
		subs:   make(map[int]chan any),
	}
}

// Send delivers msg to every current subscriber.
func (h *Hub) Send(msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.log.Warnw("notify_dropped", "subscriber", id)
		}
	}
}

// Subscribe returns a message channel and a function that unsubscribes and closes it.
// Calling the function more than once is a no-op.
func (h *Hub) Subscribe() (<-chan any, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan any, h.buffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
