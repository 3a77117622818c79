package ports

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunHostStoreContract runs a suite of tests to verify that a HostStore implementation
// adheres to the defined interface contract. The store must start empty.
func RunHostStoreContract(t *testing.T, store HostStore) {
	ctx := context.Background()

	t.Run("Get Missing", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrKeyNotFound)
	})

	t.Run("Put Assigns Versions", func(t *testing.T) {
		first, err := store.Put(ctx, Update{Key: "graph_kind", Value: json.RawMessage(`"bar"`), Origin: "c1", WriteID: 1})
		require.NoError(t, err)
		second, err := store.Put(ctx, Update{Key: "graph_kind", Value: json.RawMessage(`"line"`), Origin: "c2", WriteID: 7})
		require.NoError(t, err)

		assert.Greater(t, second.Version, first.Version)
		assert.Equal(t, "c2", second.Origin)
		assert.Equal(t, uint64(7), second.WriteID)

		got, err := store.Get(ctx, "graph_kind")
		require.NoError(t, err)
		assert.JSONEq(t, `"line"`, string(got.Value))
		assert.Equal(t, second.Version, got.Version)
	})

	t.Run("Snapshot Sorted By Key", func(t *testing.T) {
		_, err := store.Put(ctx, Update{Key: "flags", Value: json.RawMessage(`{"columns_provided":true}`)})
		require.NoError(t, err)

		snap, err := store.Snapshot(ctx)
		require.NoError(t, err)
		require.Len(t, snap, 2)
		assert.Equal(t, "flags", snap[0].Key)
		assert.Equal(t, "graph_kind", snap[1].Key)
	})

	t.Run("Watch Preserves Order", func(t *testing.T) {
		wctx, cancel := context.WithCancel(ctx)
		defer cancel()

		ch, err := store.Watch(wctx)
		require.NoError(t, err)

		const n = 20
		go func() {
			for i := 0; i < n; i++ {
				value, _ := json.Marshal(i)
				_, _ = store.Put(ctx, Update{Key: "counter", Value: value, Origin: "w", WriteID: uint64(i + 1)})
			}
		}()

		var last uint64
		for i := 0; i < n; i++ {
			select {
			case u := <-ch:
				require.Equal(t, "counter", u.Key)
				assert.Greater(t, u.Version, last)
				last = u.Version
				assert.Equal(t, uint64(i+1), u.WriteID)
			case <-time.After(2 * time.Second):
				t.Fatalf("timed out waiting for update %d", i)
			}
		}
	})
}
