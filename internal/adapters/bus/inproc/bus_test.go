package inproc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/valuation-session-cli/internal/domain"
)

type recorder struct {
	mu       sync.Mutex
	messages []domain.SyncMessage
}

func (r *recorder) handle(msg domain.SyncMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, msg)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.messages)
}

func (r *recorder) first() domain.SyncMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.messages[0]
}

func TestBroadcastReachesSiblingsButNotSelf(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	sender := hub.Bus("ctx-a")
	sibling := hub.Bus("ctx-b")

	senderSeen := &recorder{}
	siblingSeen := &recorder{}
	sender.Subscribe(senderSeen.handle)
	sibling.Subscribe(siblingSeen.handle)

	err := sender.Broadcast(context.Background(), domain.SyncMessage{
		Kind:     domain.SyncSessionUpdated,
		EntityID: "report-42",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return siblingSeen.count() == 1
	}, time.Second, 5*time.Millisecond)

	got := siblingSeen.first()
	assert.Equal(t, domain.SyncSessionUpdated, got.Kind)
	assert.Equal(t, domain.EntityID("report-42"), got.EntityID)
	assert.Equal(t, "ctx-a", got.Origin)
	assert.NotEmpty(t, got.ID)
	assert.Zero(t, senderSeen.count())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	sender := hub.Bus("ctx-a")
	sibling := hub.Bus("ctx-b")

	seen := &recorder{}
	unsubscribe := sibling.Subscribe(seen.handle)
	unsubscribe()

	require.NoError(t, sender.Broadcast(context.Background(), domain.SyncMessage{Kind: domain.SyncSessionUpdated}))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, seen.count())
}

func TestClosedBusRejectsBroadcastAndLeavesHub(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	sender := hub.Bus("ctx-a")
	sibling := hub.Bus("ctx-b")

	seen := &recorder{}
	sibling.Subscribe(seen.handle)
	require.NoError(t, sibling.Close())

	require.NoError(t, sender.Broadcast(context.Background(), domain.SyncMessage{Kind: domain.SyncSessionUpdated}))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, seen.count())

	assert.Error(t, sibling.Broadcast(context.Background(), domain.SyncMessage{}))
}

func TestBusGeneratesOriginWhenUnset(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	a := hub.Bus("")
	b := hub.Bus("")

	assert.NotEmpty(t, a.Origin())
	assert.NotEqual(t, a.Origin(), b.Origin())
}
