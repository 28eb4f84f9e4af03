package pass

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTrimsTrailingNewline(t *testing.T) {
	t.Parallel()

	store := &Store{run: func(_ context.Context, _ string, args ...string) (string, string, error) {
		require.Equal(t, []string{"show", "vsession/engine/api_token"}, args)
		return "tok-123\n", "", nil
	}}

	value, err := store.Get(context.Background(), "engine/api_token")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", value)
}

func TestPutPipesValueWithNamespacedKey(t *testing.T) {
	t.Parallel()

	var gotInput string
	var gotArgs []string
	store := &Store{run: func(_ context.Context, input string, args ...string) (string, string, error) {
		gotInput = input
		gotArgs = args
		return "", "", nil
	}}

	require.NoError(t, store.Put(context.Background(), "engine/api_token", "tok-123"))
	assert.Equal(t, "tok-123\n", gotInput)
	assert.Equal(t, []string{"insert", "-m", "-f", "vsession/engine/api_token"}, gotArgs)
}

func TestErrorsIncludeStderr(t *testing.T) {
	t.Parallel()

	store := &Store{run: func(context.Context, string, ...string) (string, string, error) {
		return "", "gpg: decryption failed", errors.New("exit status 2")
	}}

	_, err := store.Get(context.Background(), "engine/api_token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gpg: decryption failed")
}

func TestUnavailablePassPropagates(t *testing.T) {
	t.Parallel()

	store := &Store{run: func(context.Context, string, ...string) (string, string, error) {
		return "", "", ErrUnavailable
	}}

	err := store.Put(context.Background(), "engine/api_token", "tok")
	assert.ErrorIs(t, err, ErrUnavailable)
}
