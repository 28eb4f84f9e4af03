package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/valuation-session-cli/internal/ports"
)

type fakeStore struct {
	values map[string]string
	err    error
}

var _ ports.SecretStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	value, ok := f.values[key]
	if !ok {
		return "", errors.New("not found")
	}
	return value, nil
}

func (f *fakeStore) Put(_ context.Context, key string, value string) error {
	if f.err != nil {
		return f.err
	}
	f.values[key] = value
	return nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.values, key)
	return nil
}

func TestGetPrefersPrimary(t *testing.T) {
	t.Parallel()

	primary := newFakeStore()
	fallback := newFakeStore()
	primary.values["k"] = "from-primary"
	fallback.values["k"] = "from-fallback"

	store, err := NewStore(primary, fallback)
	require.NoError(t, err)

	value, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "from-primary", value)
}

func TestGetFallsBackWhenPrimaryFails(t *testing.T) {
	t.Parallel()

	primary := newFakeStore()
	primary.err = errors.New("pass unavailable")
	fallback := newFakeStore()
	fallback.values["k"] = "from-fallback"

	store, err := NewStore(primary, fallback)
	require.NoError(t, err)

	value, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "from-fallback", value)
}

func TestGetReportsBothFailures(t *testing.T) {
	t.Parallel()

	primary := newFakeStore()
	primary.err = errors.New("primary boom")
	fallback := newFakeStore()
	fallback.err = errors.New("fallback boom")

	store, err := NewStore(primary, fallback)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary boom")
	assert.Contains(t, err.Error(), "fallback boom")
}

func TestCancellationDoesNotFallThrough(t *testing.T) {
	t.Parallel()

	primary := newFakeStore()
	primary.err = context.Canceled
	fallback := newFakeStore()
	fallback.values["k"] = "from-fallback"

	store, err := NewStore(primary, fallback)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPutWritesToFallbackWhenPrimaryFails(t *testing.T) {
	t.Parallel()

	primary := newFakeStore()
	primary.err = errors.New("pass unavailable")
	fallback := newFakeStore()

	store, err := NewStore(primary, fallback)
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), "k", "v"))
	assert.Equal(t, "v", fallback.values["k"])
}

func TestNewStoreRejectsNilBackends(t *testing.T) {
	t.Parallel()

	_, err := NewStore(nil, newFakeStore())
	assert.Error(t, err)

	_, err = NewStore(newFakeStore(), nil)
	assert.Error(t, err)
}
