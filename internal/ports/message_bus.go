package ports

import (
	"context"

	"github.com/bnema/valuation-session-cli/internal/domain"
)

// MessageBus carries best-effort change notifications between contexts.
// Delivery is at-most-once per recipient and unordered; subscribers must
// treat messages as hints to re-validate, not as truth.
type MessageBus interface {
	Broadcast(ctx context.Context, msg domain.SyncMessage) error
	Subscribe(handler func(domain.SyncMessage)) (unsubscribe func())
	Origin() string
	Close() error
}
