package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectReportsSessionsWithoutMutatingStore(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := newMemStore()
	sessions := newTestSessionService(store, nil, clock)

	_, err := sessions.Write(context.Background(), "report-1", completePayload(), WriteOptions{Optimistic: true})
	require.NoError(t, err)
	_, err = sessions.Write(context.Background(), "report-2", formOnlyPayload(), WriteOptions{Optimistic: true})
	require.NoError(t, err)

	// Age the incomplete one past the young threshold; Collect must still
	// report it instead of deleting it the way a Read would.
	clock.Advance(20 * time.Minute)

	svc := NewStatusService(store, nil, nil, clock, SessionServiceOptions{})
	status, err := svc.Collect(context.Background())
	require.NoError(t, err)

	require.Len(t, status.Sessions, 2)
	byID := map[string]SessionStatus{}
	for _, session := range status.Sessions {
		byID[string(session.EntityID)] = session
	}

	complete := byID["report-1"]
	assert.True(t, complete.Complete)
	assert.True(t, complete.RenderReady)

	stale := byID["report-2"]
	assert.False(t, stale.Complete)
	assert.False(t, stale.RenderReady)
	assert.Equal(t, 1, stale.AnswerCount)

	assert.True(t, store.contains("report-2"))
}

func TestCollectOnEmptyStore(t *testing.T) {
	t.Parallel()

	svc := NewStatusService(newMemStore(), nil, nil, newFakeClock(), SessionServiceOptions{})

	status, err := svc.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, status.Sessions)
}
