package http

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/bifrost/pkg/adapters/memory"
	"github.com/aretw0/bifrost/pkg/channel"
	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/hooks"
	"github.com/aretw0/bifrost/pkg/loop"
	"github.com/aretw0/bifrost/pkg/ports"
	"github.com/aretw0/bifrost/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *session.Manager) {
	t.Helper()
	sessions := session.NewManager(func(ctx context.Context, widgetID string) (ports.HostStore, error) {
		return memory.NewStore(), nil
	}, session.WithRetain())
	srv := httptest.NewServer(NewHandler(sessions, opts...))
	t.Cleanup(func() {
		srv.Close()
		_ = sessions.Close()
	})
	return srv, sessions
}

func put(t *testing.T, base, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, base+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestServer_HealthAndInfo(t *testing.T) {
	srv, _ := newTestServer(t, WithVersion("1.2.3\n"))

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, err = http.Get(srv.URL + "/info")
	require.NoError(t, err)
	defer resp.Body.Close()
	var info map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "1.2.3", info["version"])
}

func TestServer_PutAndGet(t *testing.T) {
	seed := []ports.Update{{Key: domain.KeyGraphKind, Value: json.RawMessage(`""`), Origin: "seed"}}
	srv, _ := newTestServer(t, WithSeed(seed))

	resp := put(t, srv.URL, "/widgets/w1/state/columns", `[{"field":"a","type":"quantitative"}]`)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := http.Get(srv.URL + "/widgets/w1/state/columns")
	require.NoError(t, err)
	defer resp.Body.Close()
	var u ports.Update
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&u))
	assert.Equal(t, uint64(1), u.Version)
	assert.Equal(t, DefaultOrigin, u.Origin)
	assert.JSONEq(t, `[{"field":"a","type":"quantitative"}]`, string(u.Value))

	resp, err = http.Get(srv.URL + "/widgets/w1/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	var snapshot []ports.Update
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
	require.Len(t, snapshot, 2)
	assert.Equal(t, domain.KeyColumns, snapshot[0].Key)
	assert.Equal(t, domain.KeyGraphKind, snapshot[1].Key)

	resp, err = http.Get(srv.URL + "/widgets")
	require.NoError(t, err)
	defer resp.Body.Close()
	var ids []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ids))
	assert.Equal(t, []string{"w1"}, ids)
}

func TestServer_PutErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := put(t, srv.URL, "/widgets/w1/state/graph_kind", `not json`)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err := http.Get(srv.URL + "/widgets/w1/state/graph_kind")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_OriginHeader(t *testing.T) {
	srv, sessions := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/widgets/w1/state/flags", strings.NewReader(`{}`))
	require.NoError(t, err)
	req.Header.Set(OriginHeader, "notebook")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	store, release, err := sessions.Acquire(context.Background(), "w1")
	require.NoError(t, err)
	defer release()
	u, err := store.Get(context.Background(), domain.KeyFlags)
	require.NoError(t, err)
	assert.Equal(t, "notebook", u.Origin)
}

func TestSubscribeEvents_FilteredStream(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp := put(t, srv.URL, "/widgets/w1/state/graph_kind", `"bar"`)
	resp.Body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/widgets/w1/events?keys=graph_kind", nil)
	require.NoError(t, err)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	lines := make(chan string, 32)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stream.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	next := func() ports.Update {
		for line := range lines {
			if data, ok := strings.CutPrefix(line, "data: "); ok && data != "connected" {
				var u ports.Update
				require.NoError(t, json.Unmarshal([]byte(data), &u))
				return u
			}
		}
		t.Fatal("stream ended")
		return ports.Update{}
	}

	first := next()
	assert.Equal(t, domain.KeyGraphKind, first.Key)
	assert.JSONEq(t, `"bar"`, string(first.Value))

	// Filtered out.
	resp = put(t, srv.URL, "/widgets/w1/state/columns", `[]`)
	resp.Body.Close()
	resp = put(t, srv.URL, "/widgets/w1/state/graph_kind", `"line"`)
	resp.Body.Close()

	second := next()
	assert.Equal(t, domain.KeyGraphKind, second.Key)
	assert.JSONEq(t, `"line"`, string(second.Value))
	assert.Equal(t, uint64(2), second.Version)
}

func TestStreamManager_OnePumpPerWidget(t *testing.T) {
	sm := NewStreamManager(nil)
	feed := make(chan ports.Update, 1)
	watches := 0
	watch := func(ctx context.Context) (<-chan ports.Update, error) {
		watches++
		return feed, nil
	}

	a, cancelA, err := sm.Subscribe("w1", watch)
	require.NoError(t, err)
	b, cancelB, err := sm.Subscribe("w1", watch)
	require.NoError(t, err)
	assert.Equal(t, 1, watches)
	assert.Equal(t, 1, sm.Active())

	feed <- ports.Update{Key: "k", Version: 1}
	for _, ch := range []<-chan ports.Update{a, b} {
		select {
		case u := <-ch:
			assert.Equal(t, "k", u.Key)
		case <-time.After(time.Second):
			t.Fatal("update not delivered")
		}
	}

	cancelA()
	assert.Equal(t, 1, sm.Active())
	cancelB()
	cancelB()
	assert.Equal(t, 0, sm.Active())
}

func TestWebsocket_WidgetRoundTrip(t *testing.T) {
	srv, sessions := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	endpoint, err := WidgetURL(srv.URL, "w1")
	require.NoError(t, err)
	tr := Dial(endpoint, WithClientID("widget-a"), WithReconnectInterval(10*time.Millisecond))

	l := loop.New()
	go l.Run(ctx)
	c := channel.New(tr, l)
	c.Start(ctx)
	defer c.Close()

	resp := put(t, srv.URL, "/widgets/w1/state/columns", `[{"field":"a","type":"nominal"}]`)
	resp.Body.Close()

	var kind *hooks.State[string]
	var columns *hooks.State[[]domain.FieldSpec]
	require.NoError(t, l.Do(ctx, func() {
		kind = hooks.Bind[string](c, domain.KeyGraphKind)
		columns = hooks.Bind[[]domain.FieldSpec](c, domain.KeyColumns, hooks.ReadOnly())
	}))

	require.Eventually(t, func() bool {
		var n int
		_ = l.Do(ctx, func() { n = len(columns.Value()) })
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, l.Do(ctx, func() { kind.Set("bar") }))

	store, release, err := sessions.Acquire(ctx, "w1")
	require.NoError(t, err)
	defer release()
	require.Eventually(t, func() bool {
		u, err := store.Get(ctx, domain.KeyGraphKind)
		return err == nil && string(u.Value) == `"bar"` && u.Origin == "widget-a"
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		var pending bool
		_ = l.Do(ctx, func() { pending = c.Pending(domain.KeyGraphKind) })
		return !pending
	}, 2*time.Second, 10*time.Millisecond)

	resp = put(t, srv.URL, "/widgets/w1/state/graph_kind", `"area"`)
	resp.Body.Close()
	require.Eventually(t, func() bool {
		var v string
		_ = l.Do(ctx, func() { v = kind.Value() })
		return v == "area"
	}, 2*time.Second, 10*time.Millisecond)
}

func waitFor(t *testing.T, events <-chan ports.Event, kind ports.EventKind) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == kind {
				return
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
		}
	}
}

func TestWebsocket_ReadOnlyKeyRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	endpoint, err := WidgetURL(srv.URL, "w1")
	require.NoError(t, err)
	tr := Dial(endpoint)
	defer tr.Close()
	waitFor(t, tr.Events(), ports.EventConnected)

	err = tr.Send(context.Background(), ports.Update{Key: domain.KeyFlags, Value: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, domain.ErrReadOnlyKey)

	err = tr.Send(context.Background(), ports.Update{Key: domain.KeyGraphKind, Value: json.RawMessage(`"bar"`), WriteID: 1})
	assert.NoError(t, err)
}

func TestWebsocket_RedialsUntilServerAccepts(t *testing.T) {
	sessions := session.NewManager(func(ctx context.Context, widgetID string) (ports.HostStore, error) {
		return memory.NewStore(), nil
	}, session.WithRetain())
	defer sessions.Close()
	handler := NewHandler(sessions)

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			http.Error(w, "kernel starting", http.StatusServiceUnavailable)
			return
		}
		handler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	endpoint, err := WidgetURL(srv.URL, "w1")
	require.NoError(t, err)
	tr := Dial(endpoint, WithReconnectInterval(10*time.Millisecond))
	defer tr.Close()

	waitFor(t, tr.Events(), ports.EventConnected)
	assert.GreaterOrEqual(t, attempts.Load(), int32(3))
}

func TestWebsocket_SendWhileDisconnected(t *testing.T) {
	tr := Dial("ws://127.0.0.1:1/widgets/w1/ws", WithReconnectInterval(time.Hour))
	defer tr.Close()

	err := tr.Send(context.Background(), ports.Update{Key: domain.KeyGraphKind, Value: json.RawMessage(`""`)})
	assert.ErrorIs(t, err, domain.ErrDisconnected)
}

func TestWidgetURL(t *testing.T) {
	got, err := WidgetURL("http://localhost:8080", "w 1")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/widgets/w%201/ws", got)

	_, err = WidgetURL("ftp://x", "w1")
	assert.Error(t, err)
}

var _ io.Closer = (*Client)(nil)
