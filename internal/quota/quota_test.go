//go:build unit

package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailbatch/internal/kv"
)

func newTestLedger(store kv.Store, limit int, at *time.Time) *Ledger {
	ledger := NewLedger(store, limit, time.UTC)
	ledger.now = func() time.Time { return *at }
	return ledger
}

func TestLedger(t *testing.T) {
	store := kv.NewMemoryStore()
	now := time.Date(2024, 5, 10, 23, 0, 0, 0, time.UTC)
	sut := newTestLedger(store, 100, &now)

	remaining, err := sut.Remaining(context.TODO())
	require.NoError(t, err)
	assert.Equal(t, 100, remaining)

	require.NoError(t, sut.Record(context.TODO(), 60))
	require.NoError(t, sut.Record(context.TODO(), 30))

	remaining, err = sut.Remaining(context.TODO())
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)

	stored, err := store.Get(context.TODO(), "quota:2024-05-10")
	require.NoError(t, err)
	assert.Equal(t, "90", stored)

	require.NoError(t, sut.Record(context.TODO(), 25))
	remaining, err = sut.Remaining(context.TODO())
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	now = now.Add(2 * time.Hour)
	remaining, err = sut.Remaining(context.TODO())
	require.NoError(t, err)
	assert.Equal(t, 100, remaining)
}

func TestLedger_IgnoresNonPositiveRecords(t *testing.T) {
	store := kv.NewMemoryStore()
	now := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	sut := newTestLedger(store, 5, &now)

	require.NoError(t, sut.Record(context.TODO(), 0))
	require.NoError(t, sut.Record(context.TODO(), -3))

	_, err := store.Get(context.TODO(), "quota:2024-05-10")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestLedger_DayFollowsLocation(t *testing.T) {
	rome := time.FixedZone("CEST", 2*60*60)
	store := kv.NewMemoryStore()
	sut := NewLedger(store, 5, rome)
	sut.now = func() time.Time { return time.Date(2024, 5, 10, 23, 30, 0, 0, time.UTC) }

	require.NoError(t, sut.Record(context.TODO(), 1))

	_, err := store.Get(context.TODO(), "quota:2024-05-11")
	assert.NoError(t, err)
}

type brokenStore struct {
	*kv.MemoryStore
}

func (brokenStore) Get(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}

func TestLedger_PropagatesStoreErrors(t *testing.T) {
	sut := NewLedger(brokenStore{kv.NewMemoryStore()}, 5, nil)

	_, err := sut.Remaining(context.TODO())
	assert.EqualError(t, err, "failed to read quota ledger: connection refused")
}

func TestUnlimited(t *testing.T) {
	remaining, err := Unlimited{}.Remaining(context.TODO())
	require.NoError(t, err)
	assert.Greater(t, remaining, 1_000_000)
}
