package events

import (
	"sync"
	"time"

	"github.com/onnwee/chatdeck/telemetry"
)

// DefaultSubscriberBuffer is the per-subscriber queue length.
const DefaultSubscriberBuffer = 64

// Hub delivers published messages to in-process subscribers. A subscriber
// whose queue is full misses the message; publishers never wait.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[*subscription]struct{}
}

type subscription struct {
	ch     chan Message
	topics map[string]bool // nil means all
	once   sync.Once
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscription]struct{})}
}

// Subscribe registers a subscriber for topics (all topics when none given).
// The returned cancel func unregisters it and closes the channel.
func (h *Hub) Subscribe(buffer int, topics ...string) (<-chan Message, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	s := &subscription{ch: make(chan Message, buffer)}
	if len(topics) > 0 {
		s.topics = make(map[string]bool, len(topics))
		for _, t := range topics {
			s.topics[t] = true
		}
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		s.once.Do(func() {
			h.mu.Lock()
			delete(h.subs, s)
			h.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, cancel
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish implements Sink.
func (h *Hub) Publish(topic string, payload any) {
	raw, ok := encode(topic, payload)
	if !ok {
		return
	}
	// the write lock orders IDs and keeps cancel from closing a channel mid-send
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	msg := Message{ID: h.nextID, Topic: topic, Time: time.Now().UTC(), Payload: raw}
	for s := range h.subs {
		if s.topics != nil && !s.topics[topic] {
			continue
		}
		select {
		case s.ch <- msg:
		default:
			telemetry.CountSinkDrop()
		}
	}
}
