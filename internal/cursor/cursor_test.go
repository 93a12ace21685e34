//go:build unit

package cursor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailbatch/internal/kv"
)

func TestGet_WhenAbsent_ShouldReportMissing(t *testing.T) {
	sut := NewStore(kv.NewMemoryStore())

	value, ok, err := sut.Get(context.TODO())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, value)

	value, err = sut.GetOrDefault(context.TODO())
	require.NoError(t, err)
	assert.Equal(t, Default, value)
}

func TestSetGetClear(t *testing.T) {
	ctx := context.TODO()
	store := kv.NewMemoryStore()
	sut := NewStore(store)

	require.NoError(t, sut.Set(ctx, 31))
	raw, err := store.Get(ctx, Key)
	require.NoError(t, err)
	assert.Equal(t, "31", raw)

	value, ok, err := sut.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 31, value)

	require.NoError(t, sut.Clear(ctx))
	_, ok, err = sut.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGet_WhenStoredValueIsGarbage_ShouldFallBackToDefault(t *testing.T) {
	ctx := context.TODO()
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(ctx, Key, "not-a-number"))

	value, err := NewStore(store).GetOrDefault(ctx)
	require.NoError(t, err)
	assert.Equal(t, Default, value)
}

func TestSet_WhenValueIsNotPositive_ShouldFail(t *testing.T) {
	assert.EqualError(t, NewStore(kv.NewMemoryStore()).Set(context.TODO(), 0), "invalid cursor value 0")
}

type failingStore struct {
	kv.MemoryStore
}

func (f *failingStore) Get(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}

func TestGet_WhenStoreFails_ShouldWrapError(t *testing.T) {
	_, _, err := NewStore(&failingStore{}).Get(context.TODO())
	assert.EqualError(t, err, "failed to read cursor: connection refused")
}
