// Package events is the in-process bus that fans transition events out to live
// subscribers. Routing is by (channel, key): channel names an event category,
// key is the entity or user id the subscriber cares about. Delivery is
// best-effort with no replay; an event published before a subscriber registered
// is never seen by it.
package events

import (
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Channel names. Entity channels are keyed by entity id, user channels by the
// customer's or manufacturer's user id.
const (
	ChannelOrderStatusChanged  = "order:statusChanged"
	ChannelOrderUserUpdates    = "order:userUpdates"
	ChannelOrderQuoteReceived  = "order:quoteReceived"
	ChannelOrderShipped        = "order:shipped"
	ChannelSampleStatusChanged = "sample:statusChanged"
	ChannelSampleUserUpdates   = "sample:userUpdates"
	ChannelSampleQuoteReceived = "sample:quoteReceived"
	ChannelSampleShipped       = "sample:shipped"
)

const DefaultSubscriberBuffer = 16

// StatusEvent is the flat payload published after a committed transition.
// Events are transient; nothing here is persisted.
type StatusEvent struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	EntityID       int64     `json:"entity_id,string"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status"`
	UpdatedBy      int64     `json:"updated_by,string"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewEventID returns a sortable unique id for a published event.
func NewEventID() string {
	return ulid.Make().String()
}

type topic struct {
	channel string
	key     int64
}

// Hub is the process-scoped subscriber registry. Publishers never block on
// subscribers: each subscriber has its own buffered channel and a full buffer
// drops the event for that subscriber only.
type Hub struct {
	mu               sync.RWMutex
	streams          map[topic]*stream
	subscriberBuffer int
	closed           bool
}

type stream struct {
	mu     sync.Mutex
	subs   map[uint64]chan StatusEvent
	nextID uint64
}

// Subscription is one live registration on a (channel, key) pair. Close is
// idempotent and releases the registration.
type Subscription struct {
	hub   *Hub
	topic topic
	id    uint64
	ch    chan StatusEvent
	once  sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[topic]*stream),
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Publish delivers event to every subscriber currently registered on
// (channel, key). It never blocks and never fails from the publisher's view.
func (h *Hub) Publish(channel string, key int64, event StatusEvent) {
	if h == nil || channel == "" {
		return
	}
	h.mu.RLock()
	stream := h.streams[topic{channel: channel, key: key}]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	// Sends stay under stream.mu: unsubscribe and Shutdown close subscriber
	// channels under the same lock, and a send racing a close would panic.
	// Sends are non-blocking, so the critical section stays short.
	stream.mu.Lock()
	for _, ch := range stream.subs {
		select {
		case ch <- event:
		default:
		}
	}
	stream.mu.Unlock()
}

// Subscribe registers interest in (channel, key). Only events published after
// registration are delivered.
func (h *Hub) Subscribe(channel string, key int64) (*Subscription, error) {
	if h == nil {
		return nil, errors.New("hub_unavailable")
	}
	if channel == "" {
		return nil, errors.New("invalid_channel")
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, errors.New("hub_closed")
	}
	t := topic{channel: channel, key: key}
	current := h.streams[t]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan StatusEvent)}
		h.streams[t] = current
	}
	h.mu.Unlock()

	current.mu.Lock()
	id := current.nextID
	current.nextID++
	ch := make(chan StatusEvent, h.subscriberBuffer)
	current.subs[id] = ch
	current.mu.Unlock()

	return &Subscription{
		hub:   h,
		topic: t,
		id:    id,
		ch:    ch,
	}, nil
}

// Shutdown cancels every outstanding subscription. Further Subscribe calls
// fail; Publish becomes a no-op as streams drain away.
func (h *Hub) Shutdown() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.closed = true
	streams := make([]*stream, 0, len(h.streams))
	for _, s := range h.streams {
		streams = append(streams, s)
	}
	h.streams = make(map[topic]*stream)
	h.mu.Unlock()

	for _, s := range streams {
		s.mu.Lock()
		for id, ch := range s.subs {
			close(ch)
			delete(s.subs, id)
		}
		s.mu.Unlock()
	}
}

func (h *Hub) unsubscribe(t topic, id uint64) {
	h.mu.RLock()
	stream := h.streams[t]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	if ch, ok := stream.subs[id]; ok {
		close(ch)
		delete(stream.subs, id)
	}
	remaining := len(stream.subs)
	stream.mu.Unlock()
	if remaining != 0 {
		return
	}

	h.mu.Lock()
	current := h.streams[t]
	if current == stream {
		stream.mu.Lock()
		if len(stream.subs) == 0 {
			delete(h.streams, t)
		}
		stream.mu.Unlock()
	}
	h.mu.Unlock()
}

// Events yields the subscriber's stream. The channel closes when the
// subscription is closed or the hub shuts down.
func (s *Subscription) Events() <-chan StatusEvent {
	if s == nil {
		return nil
	}
	return s.ch
}

// Close releases the registration. In-flight events still buffered are
// discarded with the channel.
func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.topic, s.id)
	})
}
