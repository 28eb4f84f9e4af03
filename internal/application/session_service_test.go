package application

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/valuation-session-cli/internal/adapters/bus/inproc"
	"github.com/bnema/valuation-session-cli/internal/domain"
	"github.com/bnema/valuation-session-cli/internal/ports"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type memStore struct {
	mu        sync.Mutex
	snapshots map[domain.EntityID]domain.Snapshot
}

var _ ports.SnapshotStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{snapshots: map[domain.EntityID]domain.Snapshot{}}
}

func (m *memStore) Load(_ context.Context, id domain.EntityID) (domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot, ok := m.snapshots[id]
	if !ok {
		return domain.Snapshot{}, domain.ErrSnapshotNotFound
	}

	return snapshot, nil
}

func (m *memStore) Save(_ context.Context, snapshot domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshots[snapshot.EntityID] = snapshot

	return nil
}

func (m *memStore) Delete(_ context.Context, id domain.EntityID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.snapshots, id)

	return nil
}

func (m *memStore) List(context.Context) ([]domain.EntityID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]domain.EntityID, 0, len(m.snapshots))
	for id := range m.snapshots {
		ids = append(ids, id)
	}

	return ids, nil
}

func (m *memStore) contains(id domain.EntityID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.snapshots[id]
	return ok
}

type recordingBus struct {
	mu       sync.Mutex
	origin   string
	messages []domain.SyncMessage
	handler  func(domain.SyncMessage)
}

var _ ports.MessageBus = (*recordingBus)(nil)

func (b *recordingBus) Broadcast(_ context.Context, msg domain.SyncMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.messages = append(b.messages, msg)

	return nil
}

func (b *recordingBus) Subscribe(handler func(domain.SyncMessage)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handler = handler

	return func() {}
}

func (b *recordingBus) Origin() string { return b.origin }

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) sent() []domain.SyncMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]domain.SyncMessage(nil), b.messages...)
}

func (b *recordingBus) inject(msg domain.SyncMessage) {
	b.mu.Lock()
	handler := b.handler
	b.mu.Unlock()

	handler(msg)
}

func completePayload() domain.SessionPayload {
	return domain.SessionPayload{
		CompanyID: "acme-bv",
		Step:      5,
		Answers:   map[string]string{"revenue": "2500000", "ebitda": "500000"},
		Result: &domain.ValuationResult{
			ValuationID: "val_1",
			EquityValue: 6250000,
		},
		ReportHTML: "<article>report</article>",
		InfoHTML:   "<aside>info</aside>",
	}
}

func formOnlyPayload() domain.SessionPayload {
	return domain.SessionPayload{
		CompanyID: "acme-bv",
		Answers:   map[string]string{"revenue": "2500000"},
	}
}

func newTestSessionService(store ports.SnapshotStore, bus ports.MessageBus, clock ports.Clock) *SessionService {
	return NewSessionService(store, bus, clock, SessionServiceOptions{}, slog.New(slog.DiscardHandler))
}

func TestWriteThenReadRoundTripPreservesMarkers(t *testing.T) {
	t.Parallel()

	svc := newTestSessionService(newMemStore(), nil, newFakeClock())

	written, err := svc.Write(context.Background(), "report-42", completePayload(), WriteOptions{Optimistic: true})
	require.NoError(t, err)
	assert.NotEmpty(t, written.Version)

	result, err := svc.Read(context.Background(), "report-42")
	require.NoError(t, err)
	assert.Equal(t, completePayload(), result.Snapshot.Payload)
	assert.True(t, result.RenderReady)
}

func TestCompleteWriteSupersedesIncompleteOne(t *testing.T) {
	t.Parallel()

	svc := newTestSessionService(newMemStore(), nil, newFakeClock())

	_, err := svc.Write(context.Background(), "report-42", formOnlyPayload(), WriteOptions{Optimistic: true})
	require.NoError(t, err)

	result, err := svc.Read(context.Background(), "report-42")
	require.NoError(t, err)
	assert.False(t, result.RenderReady)

	_, err = svc.Write(context.Background(), "report-42", completePayload(), WriteOptions{Optimistic: true})
	require.NoError(t, err)

	result, err = svc.Read(context.Background(), "report-42")
	require.NoError(t, err)
	assert.True(t, result.RenderReady)
}

func TestYoungIncompleteSnapshotIsReadable(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	svc := newTestSessionService(newMemStore(), nil, clock)

	_, err := svc.Write(context.Background(), "report-42", formOnlyPayload(), WriteOptions{Optimistic: true})
	require.NoError(t, err)

	clock.Advance(9 * time.Minute)

	result, err := svc.Read(context.Background(), "report-42")
	require.NoError(t, err)
	assert.Equal(t, "2500000", result.Snapshot.Payload.Answers["revenue"])
	assert.False(t, result.RenderReady)
}

func TestAgedIncompleteSnapshotIsAMissAndIsDropped(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := newMemStore()
	svc := newTestSessionService(store, nil, clock)

	_, err := svc.Write(context.Background(), "report-42", formOnlyPayload(), WriteOptions{Optimistic: true})
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)

	_, err = svc.Read(context.Background(), "report-42")
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	assert.False(t, store.contains("report-42"))
}

func TestAgedCompleteSnapshotStaysRenderReadyUntilExpiry(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	svc := newTestSessionService(newMemStore(), nil, clock)

	_, err := svc.Write(context.Background(), "report-42", completePayload(), WriteOptions{Optimistic: true})
	require.NoError(t, err)

	clock.Advance(6 * time.Hour)

	result, err := svc.Read(context.Background(), "report-42")
	require.NoError(t, err)
	assert.True(t, result.RenderReady)

	clock.Advance(19 * time.Hour)

	_, err = svc.Read(context.Background(), "report-42")
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
}

func TestStaleVersionedWriteIsDiscarded(t *testing.T) {
	t.Parallel()

	svc := newTestSessionService(newMemStore(), nil, newFakeClock())

	current, err := svc.Write(context.Background(), "report-42", completePayload(), WriteOptions{Optimistic: true})
	require.NoError(t, err)

	older := "00000000-0000-7000-8000-000000000000"
	got, err := svc.Write(context.Background(), "report-42", formOnlyPayload(), WriteOptions{Version: older})
	require.NoError(t, err)
	assert.Equal(t, current.Version, got.Version)

	result, err := svc.Read(context.Background(), "report-42")
	require.NoError(t, err)
	assert.True(t, result.RenderReady)
}

func TestWriteBroadcastsKindByIntent(t *testing.T) {
	t.Parallel()

	bus := &recordingBus{origin: "ctx-a"}
	svc := newTestSessionService(newMemStore(), bus, newFakeClock())

	_, err := svc.Write(context.Background(), "report-42", formOnlyPayload(), WriteOptions{Optimistic: true})
	require.NoError(t, err)
	_, err = svc.Write(context.Background(), "report-42", completePayload(), WriteOptions{})
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(context.Background(), "report-42"))

	sent := bus.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, domain.SyncSessionUpdated, sent[0].Kind)
	assert.Equal(t, domain.SyncSessionRefreshed, sent[1].Kind)
	assert.Equal(t, domain.SyncSessionInvalidated, sent[2].Kind)
	assert.Equal(t, domain.EntityID("report-42"), sent[0].EntityID)
	assert.NotEmpty(t, sent[0].Version)
}

func TestRemoteNewerUpdateDropsLocalSnapshot(t *testing.T) {
	t.Parallel()

	bus := &recordingBus{origin: "ctx-a"}
	store := newMemStore()
	svc := newTestSessionService(store, bus, newFakeClock())

	_, err := svc.Write(context.Background(), "report-42", completePayload(), WriteOptions{Optimistic: true})
	require.NoError(t, err)

	bus.inject(domain.SyncMessage{
		Kind:     domain.SyncSessionUpdated,
		Origin:   "ctx-b",
		EntityID: "report-42",
		Version:  "ffffffff-ffff-7fff-bfff-ffffffffffff",
	})

	assert.False(t, store.contains("report-42"))
}

func TestRemoteOlderUpdateIsIgnored(t *testing.T) {
	t.Parallel()

	bus := &recordingBus{origin: "ctx-a"}
	store := newMemStore()
	svc := newTestSessionService(store, bus, newFakeClock())

	_, err := svc.Write(context.Background(), "report-42", completePayload(), WriteOptions{Optimistic: true})
	require.NoError(t, err)

	bus.inject(domain.SyncMessage{
		Kind:     domain.SyncSessionUpdated,
		Origin:   "ctx-b",
		EntityID: "report-42",
		Version:  "00000000-0000-7000-8000-000000000000",
	})

	assert.True(t, store.contains("report-42"))
}

func TestRemoteInvalidationDropsLocalSnapshot(t *testing.T) {
	t.Parallel()

	bus := &recordingBus{origin: "ctx-a"}
	store := newMemStore()
	svc := newTestSessionService(store, bus, newFakeClock())

	_, err := svc.Write(context.Background(), "report-42", completePayload(), WriteOptions{Optimistic: true})
	require.NoError(t, err)

	bus.inject(domain.SyncMessage{
		Kind:     domain.SyncSessionInvalidated,
		Origin:   "ctx-b",
		EntityID: "report-42",
	})

	assert.False(t, store.contains("report-42"))
}

func TestRecordAnswerClearsComputedArtifacts(t *testing.T) {
	t.Parallel()

	svc := newTestSessionService(newMemStore(), nil, newFakeClock())

	_, err := svc.Write(context.Background(), "report-42", completePayload(), WriteOptions{Optimistic: true})
	require.NoError(t, err)

	snapshot, err := svc.RecordAnswer(context.Background(), "report-42", "", "revenue", "3000000")
	require.NoError(t, err)

	assert.Equal(t, "3000000", snapshot.Payload.Answers["revenue"])
	assert.Equal(t, "500000", snapshot.Payload.Answers["ebitda"])
	assert.Equal(t, "acme-bv", snapshot.Payload.CompanyID)
	assert.False(t, snapshot.Complete())
	assert.Nil(t, snapshot.Payload.Result)
}

func TestTwoContextsConvergeToLastWrite(t *testing.T) {
	t.Parallel()

	// Two services over one store model two tabs sharing the same origin's
	// storage; the hub stands in for the broadcast primitive.
	hub := inproc.NewHub()
	store := newMemStore()
	clock := newFakeClock()

	tabA := newTestSessionService(store, hub.Bus("tab-a"), clock)
	tabB := newTestSessionService(store, hub.Bus("tab-b"), clock)
	defer tabA.Close()
	defer tabB.Close()

	_, err := tabA.Write(context.Background(), "report-42", formOnlyPayload(), WriteOptions{Optimistic: true})
	require.NoError(t, err)
	last, err := tabB.Write(context.Background(), "report-42", completePayload(), WriteOptions{Optimistic: true})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		resultA, errA := tabA.Read(context.Background(), "report-42")
		resultB, errB := tabB.Read(context.Background(), "report-42")
		return errA == nil && errB == nil &&
			resultA.Snapshot.Version == last.Version &&
			resultB.Snapshot.Version == last.Version
	}, time.Second, 5*time.Millisecond)
}
