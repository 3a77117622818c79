package direct_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aretw0/bifrost/pkg/adapters/direct"
	"github.com/aretw0/bifrost/pkg/adapters/memory"
	"github.com/aretw0/bifrost/pkg/channel"
	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/loop"
	"github.com/aretw0/bifrost/pkg/ports"
	"github.com/aretw0/bifrost/pkg/widget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type peer struct {
	loop      *loop.Loop
	transport *direct.Transport
	client    *channel.Client
	widget    *widget.Widget
}

func newPeer(t *testing.T, ctx context.Context, store ports.HostStore, id string) *peer {
	t.Helper()
	l := loop.New()
	go l.Run(ctx)

	tr := direct.New(store, direct.WithID(id))
	c := channel.New(tr, l, channel.WithRetryInterval(10*time.Millisecond))
	c.Start(ctx)
	require.NoError(t, tr.Connect(ctx))

	p := &peer{loop: l, transport: tr, client: c}
	require.NoError(t, l.Do(ctx, func() { p.widget = widget.New(c) }))
	t.Cleanup(func() { _ = c.Close() })
	return p
}

func (p *peer) do(t *testing.T, fn func(w *widget.Widget)) {
	t.Helper()
	require.NoError(t, p.loop.Do(context.Background(), func() { fn(p.widget) }))
}

func (p *peer) spec(t *testing.T) domain.GraphSpec {
	var s domain.GraphSpec
	p.do(t, func(w *widget.Widget) { s = w.CurrentSpec() })
	return s
}

func (p *peer) pending(t *testing.T) bool {
	var pending bool
	p.do(t, func(*widget.Widget) {
		for _, k := range []string{domain.KeyGraphSpec, domain.KeySpecHistory} {
			pending = pending || p.client.Pending(k)
		}
	})
	return pending
}

func bar() domain.GraphSpec {
	s := domain.SetMark(domain.GraphSpec{}, domain.MarkBar)
	s = domain.SetEncoding(s, domain.ChannelX, domain.FieldSpec{Field: "category", Type: domain.TypeNominal})
	return domain.SetEncoding(s, domain.ChannelY, domain.FieldSpec{Field: "price", Type: domain.TypeQuantitative})
}

func TestTransport_SnapshotOnConnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := memory.NewStore()
	_, err := store.Put(ctx, ports.Update{Key: domain.KeyGraphKind, Value: json.RawMessage(`"bar"`)})
	require.NoError(t, err)

	tr := direct.New(store)
	require.NoError(t, tr.Connect(ctx))
	defer tr.Close()

	ev := <-tr.Events()
	assert.Equal(t, ports.EventConnected, ev.Kind)
	ev = <-tr.Events()
	assert.Equal(t, ports.EventChange, ev.Kind)
	assert.Equal(t, domain.KeyGraphKind, ev.Update.Key)
	assert.Equal(t, uint64(1), ev.Update.Version)
}

func TestTransport_SendTagsOriginAndGuardsReadOnly(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	tr := direct.New(store, direct.WithID("w1"))
	defer tr.Close()

	err := tr.Send(ctx, ports.Update{Key: domain.KeyGraphKind, Value: json.RawMessage(`"bar"`)})
	assert.ErrorIs(t, err, domain.ErrDisconnected)

	require.NoError(t, tr.Connect(ctx))
	require.NoError(t, tr.Send(ctx, ports.Update{Key: domain.KeyGraphKind, Value: json.RawMessage(`"bar"`), WriteID: 4}))
	got, err := store.Get(ctx, domain.KeyGraphKind)
	require.NoError(t, err)
	assert.Equal(t, "w1", got.Origin)
	assert.Equal(t, uint64(4), got.WriteID)

	err = tr.Send(ctx, ports.Update{Key: domain.KeyFlags, Value: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, domain.ErrReadOnlyKey)
}

func TestTransport_TwoWidgetsConverge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := memory.NewStore()
	a := newPeer(t, ctx, store, "a")
	b := newPeer(t, ctx, store, "b")

	a.do(t, func(w *widget.Widget) { w.Commit(bar()) })

	require.Eventually(t, func() bool { return b.spec(t).Equal(bar()) }, 2*time.Second, 10*time.Millisecond)

	b.do(t, func(w *widget.Widget) {
		w.Apply(func(s domain.GraphSpec) domain.GraphSpec { return domain.SetMark(s, domain.MarkLine) })
	})

	require.Eventually(t, func() bool { return a.spec(t).Mark == domain.MarkLine }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		var n int
		a.do(t, func(w *widget.Widget) { n = len(w.History()) })
		return n == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTransport_OfflineEditsFlushOnReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := memory.NewStore()
	a := newPeer(t, ctx, store, "a")

	a.transport.Disconnect()
	a.do(t, func(w *widget.Widget) {
		w.Commit(bar())
		w.Apply(func(s domain.GraphSpec) domain.GraphSpec {
			return domain.SetAggregation(s, domain.ChannelY, domain.AggregateMean)
		})
	})

	// The local view is updated even though nothing reached the host.
	assert.Equal(t, domain.AggregateMean, a.spec(t).Encoding[domain.ChannelY].Aggregate)
	_, err := store.Get(ctx, domain.KeyGraphSpec)
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)

	require.NoError(t, a.transport.Connect(ctx))

	require.Eventually(t, func() bool { return !a.pending(t) }, 2*time.Second, 10*time.Millisecond)
	got, err := store.Get(ctx, domain.KeyGraphSpec)
	require.NoError(t, err)
	var spec domain.GraphSpec
	require.NoError(t, json.Unmarshal(got.Value, &spec))
	assert.Equal(t, domain.AggregateMean, spec.Encoding[domain.ChannelY].Aggregate)
	assert.Equal(t, uint64(1), got.Version, "coalesced into a single write")
}
