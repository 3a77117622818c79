package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aretw0/bifrost/pkg/adapters/memory"
	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/ports"
	"github.com/aretw0/bifrost/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records Close calls.
type countingStore struct {
	*memory.Store
	closes *atomic.Int32
}

func (s countingStore) Close() error {
	s.closes.Add(1)
	return s.Store.Close()
}

func TestManager_SharesStorePerWidget(t *testing.T) {
	var opened, closed atomic.Int32
	mgr := session.NewManager(func(context.Context, string) (ports.HostStore, error) {
		opened.Add(1)
		return countingStore{Store: memory.NewStore(), closes: &closed}, nil
	})
	ctx := context.Background()

	a, releaseA, err := mgr.Acquire(ctx, "w1")
	require.NoError(t, err)
	b, releaseB, err := mgr.Acquire(ctx, "w1")
	require.NoError(t, err)
	assert.Same(t, a.(countingStore).Store, b.(countingStore).Store)
	assert.Equal(t, []string{"w1"}, mgr.List())

	releaseA()
	assert.Equal(t, int32(0), closed.Load())
	releaseB()
	assert.Equal(t, int32(1), closed.Load())
	assert.Empty(t, mgr.List())
	assert.Equal(t, int32(1), opened.Load())
}

func TestManager_RetainKeepsIdleStores(t *testing.T) {
	mgr := session.NewManager(func(context.Context, string) (ports.HostStore, error) {
		return memory.NewStore(), nil
	}, session.WithRetain())
	ctx := context.Background()

	store, release, err := mgr.Acquire(ctx, "w1")
	require.NoError(t, err)
	_, err = store.Put(ctx, ports.Update{Key: domain.KeyGraphKind, Value: json.RawMessage(`"bar"`)})
	require.NoError(t, err)
	release()

	again, release, err := mgr.Acquire(ctx, "w1")
	require.NoError(t, err)
	defer release()
	got, err := again.Get(ctx, domain.KeyGraphKind)
	require.NoError(t, err)
	assert.JSONEq(t, `"bar"`, string(got.Value))

	require.NoError(t, mgr.Close())
	_, _, err = mgr.Acquire(ctx, "w2")
	assert.ErrorIs(t, err, domain.ErrClosed)
}

func TestManager_FactoryError(t *testing.T) {
	boom := errors.New("redis down")
	mgr := session.NewManager(func(context.Context, string) (ports.HostStore, error) {
		return nil, boom
	})

	_, _, err := mgr.Acquire(context.Background(), "w1")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, mgr.List())
}

func TestManager_OpenSeedsOnce(t *testing.T) {
	mgr := session.NewManager(func(context.Context, string) (ports.HostStore, error) {
		return memory.NewStore(), nil
	}, session.WithRetain())
	ctx := context.Background()
	seed := []ports.Update{
		{Key: domain.KeyFlags, Value: json.RawMessage(`{"columns_provided":false}`), Origin: "kernel"},
		{Key: domain.KeySuggestedGraphs, Value: json.RawMessage(`[]`), Origin: "kernel"},
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, release, err := mgr.Open(ctx, "w1", seed)
			assert.NoError(t, err)
			release()
		}()
	}
	wg.Wait()

	store, release, err := mgr.Acquire(ctx, "w1")
	require.NoError(t, err)
	defer release()
	got, err := store.Get(ctx, domain.KeyFlags)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Version, "seeded exactly once")
}

func TestManager_WithLockRequiresOpenWidget(t *testing.T) {
	mgr := session.NewManager(func(context.Context, string) (ports.HostStore, error) {
		return memory.NewStore(), nil
	})
	err := mgr.WithLock(context.Background(), "nope", func(context.Context) error { return nil })
	assert.Error(t, err)
}
