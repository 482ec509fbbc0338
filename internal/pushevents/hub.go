package pushevents

import (
	"errors"
	"sync"

	"github.com/bwmarrin/snowflake"
)

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16
)

// Hub fans events out to subscribers per invoice. Each stream keeps a
// bounded replay buffer so late subscribers see recent history.
type Hub struct {
	mu               sync.RWMutex
	streams          map[snowflake.ID]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []Event
	subs   map[uint64]chan Event
	nextID uint64
}

// Subscription is one subscriber's handle on an invoice stream. Close is
// idempotent and must be called on teardown to avoid leaked channels.
type Subscription struct {
	hub       *Hub
	invoiceID snowflake.ID
	id        uint64
	ch        chan Event
	once      sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[snowflake.ID]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Publish delivers the event to every current subscriber of its invoice.
// Slow subscribers are skipped, never blocked on.
func (h *Hub) Publish(event Event) {
	if h == nil || event.InvoiceID == 0 {
		return
	}
	h.mu.RLock()
	stream := h.streams[event.InvoiceID]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	stream.buffer = append(stream.buffer, event)
	if len(stream.buffer) > h.bufferSize {
		stream.buffer = stream.buffer[len(stream.buffer)-h.bufferSize:]
	}
	subs := make([]chan Event, 0, len(stream.subs))
	for _, ch := range stream.subs {
		subs = append(subs, ch)
	}
	stream.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe opens a stream for the invoice and returns the replay buffer
// accumulated so far.
func (h *Hub) Subscribe(invoiceID snowflake.ID) (*Subscription, []Event, error) {
	if h == nil {
		return nil, nil, errors.New("hub_unavailable")
	}
	if invoiceID == 0 {
		return nil, nil, errors.New("invalid_invoice_id")
	}

	stream := h.ensureStream(invoiceID)
	stream.mu.Lock()
	if stream.subs == nil {
		stream.subs = make(map[uint64]chan Event)
	}
	id := stream.nextID
	stream.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	stream.subs[id] = ch
	buffer := append([]Event(nil), stream.buffer...)
	stream.mu.Unlock()

	return &Subscription{
		hub:       h,
		invoiceID: invoiceID,
		id:        id,
		ch:        ch,
	}, buffer, nil
}

func (h *Hub) ensureStream(invoiceID snowflake.ID) *stream {
	h.mu.RLock()
	current := h.streams[invoiceID]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[invoiceID]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan Event)}
		h.streams[invoiceID] = current
	}
	return current
}

func (h *Hub) unsubscribe(invoiceID snowflake.ID, id uint64) {
	if h == nil || invoiceID == 0 {
		return
	}

	h.mu.RLock()
	stream := h.streams[invoiceID]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	delete(stream.subs, id)
	remaining := len(stream.subs)
	stream.mu.Unlock()
	if remaining != 0 {
		return
	}

	h.mu.Lock()
	current := h.streams[invoiceID]
	if current != stream {
		h.mu.Unlock()
		return
	}
	stream.mu.Lock()
	empty := len(stream.subs) == 0
	stream.mu.Unlock()
	if empty {
		delete(h.streams, invoiceID)
	}
	h.mu.Unlock()
}

func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.invoiceID, s.id)
	})
}
