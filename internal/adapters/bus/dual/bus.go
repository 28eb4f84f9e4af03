package dual

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bnema/valuation-session-cli/internal/domain"
	"github.com/bnema/valuation-session-cli/internal/ports"
)

// seenWindow is how long a delivered message id is remembered so the second
// delivery path cannot hand the same message to subscribers twice.
const seenWindow = 10 * time.Second

var (
	errNilPrimaryBus  = errors.New("primary message bus is nil")
	errNilFallbackBus = errors.New("fallback message bus is nil")
)

// Bus publishes every message over two redundant delivery paths and
// de-duplicates on receipt, so consumers see each message at most once no
// matter which path carried it.
type Bus struct {
	origin   string
	primary  ports.MessageBus
	fallback ports.MessageBus
	clock    ports.Clock

	mu            sync.Mutex
	handlers      map[int]func(domain.SyncMessage)
	nextID        int
	seen          map[string]time.Time
	unsubscribers []func()
}

var _ ports.MessageBus = (*Bus)(nil)

func New(origin string, primary, fallback ports.MessageBus, clock ports.Clock) (*Bus, error) {
	if primary == nil {
		return nil, errNilPrimaryBus
	}
	if fallback == nil {
		return nil, errNilFallbackBus
	}
	if origin == "" {
		origin = uuid.NewString()
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}

	b := &Bus{
		origin:   origin,
		primary:  primary,
		fallback: fallback,
		clock:    clock,
		handlers: map[int]func(domain.SyncMessage){},
		seen:     map[string]time.Time{},
	}
	b.unsubscribers = []func(){
		primary.Subscribe(b.receive),
		fallback.Subscribe(b.receive),
	}

	return b, nil
}

func (b *Bus) Broadcast(ctx context.Context, msg domain.SyncMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Origin == "" {
		msg.Origin = b.origin
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = b.clock.Now()
	}

	err := b.primary.Broadcast(ctx, msg)
	if err != nil && shouldSkipFallback(err) {
		return err
	}

	fallbackErr := b.fallback.Broadcast(ctx, msg)
	if err != nil && fallbackErr != nil {
		return fmt.Errorf("primary path broadcast failed: %w; fallback path broadcast failed: %w", err, fallbackErr)
	}

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
	unsubscribers := b.unsubscribers
	b.unsubscribers = nil
	b.handlers = map[int]func(domain.SyncMessage){}
	b.mu.Unlock()

	for _, unsubscribe := range unsubscribers {
		unsubscribe()
	}

	return errors.Join(b.primary.Close(), b.fallback.Close())
}

func (b *Bus) receive(msg domain.SyncMessage) {
	if msg.Origin == b.origin {
		return
	}

	now := b.clock.Now()

	b.mu.Lock()
	if deliveredAt, ok := b.seen[msg.ID]; ok && now.Sub(deliveredAt) < seenWindow {
		b.mu.Unlock()
		return
	}
	b.seen[msg.ID] = now
	for id, deliveredAt := range b.seen {
		if now.Sub(deliveredAt) >= seenWindow {
			delete(b.seen, id)
		}
	}
	handlers := make([]func(domain.SyncMessage), 0, len(b.handlers))
	for _, handler := range b.handlers {
		handlers = append(handlers, handler)
	}
	b.mu.Unlock()

	for _, handler := range handlers {
		handler(msg)
	}
}

func shouldSkipFallback(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
