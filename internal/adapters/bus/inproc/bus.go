package inproc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bnema/valuation-session-cli/internal/domain"
	"github.com/bnema/valuation-session-cli/internal/ports"
)

var errBusClosed = errors.New("inproc bus is closed")

// Hub fans messages out to every attached bus instantly. One bus per
// context; the hub is the shared broadcast primitive.
type Hub struct {
	mu    sync.RWMutex
	buses map[*Bus]struct{}
}

func NewHub() *Hub {
	return &Hub{buses: map[*Bus]struct{}{}}
}

func (h *Hub) Bus(origin string) *Bus {
	if origin == "" {
		origin = uuid.NewString()
	}

	b := &Bus{hub: h, origin: origin, handlers: map[int]func(domain.SyncMessage){}}

	h.mu.Lock()
	h.buses[b] = struct{}{}
	h.mu.Unlock()

	return b
}

func (h *Hub) dispatch(msg domain.SyncMessage) {
	h.mu.RLock()
	buses := make([]*Bus, 0, len(h.buses))
	for b := range h.buses {
		buses = append(buses, b)
	}
	h.mu.RUnlock()

	for _, b := range buses {
		b.deliver(msg)
	}
}

func (h *Hub) detach(b *Bus) {
	h.mu.Lock()
	delete(h.buses, b)
	h.mu.Unlock()
}

type Bus struct {
	hub    *Hub
	origin string

	mu       sync.Mutex
	handlers map[int]func(domain.SyncMessage)
	nextID   int
	closed   bool
}

var _ ports.MessageBus = (*Bus)(nil)

func (b *Bus) Broadcast(ctx context.Context, msg domain.SyncMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errBusClosed
	}
	b.mu.Unlock()

	stampMessage(&msg, b.origin)
	b.hub.dispatch(msg)

	return nil
}

func (b *Bus) Subscribe(handler func(domain.SyncMessage)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		delete(b.handlers, id)
	}
}

func (b *Bus) Origin() string {
	return b.origin
}

func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.handlers = map[int]func(domain.SyncMessage){}
	b.mu.Unlock()

	b.hub.detach(b)

	return nil
}

func (b *Bus) deliver(msg domain.SyncMessage) {
	// Drop our own echoes: the filter compares the per-instance origin id,
	// never the hostname, so sibling contexts on the same host still hear
	// each other.
	if msg.Origin == b.origin {
		return
	}

	b.mu.Lock()
	handlers := make([]func(domain.SyncMessage), 0, len(b.handlers))
	for _, handler := range b.handlers {
		handlers = append(handlers, handler)
	}
	b.mu.Unlock()

	for _, handler := range handlers {
		// Asynchronous delivery keeps handlers free to broadcast in turn.
		go handler(msg)
	}
}

func stampMessage(msg *domain.SyncMessage, origin string) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Origin == "" {
		msg.Origin = origin
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
}
