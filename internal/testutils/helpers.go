package testutils

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/aretw0/bifrost/pkg/channel"
	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/loop"
	"github.com/aretw0/bifrost/pkg/ports"
	"github.com/stretchr/testify/require"
)

// Transport records writes instead of sending them anywhere.
type Transport struct {
	mu      sync.Mutex
	sent    []ports.Update
	offline bool
	events  chan ports.Event
	once    sync.Once
}

// NewTransport returns a connected recording transport.
func NewTransport() *Transport {
	return &Transport{events: make(chan ports.Event)}
}

func (t *Transport) ID() string { return "widget-test" }

func (t *Transport) Send(_ context.Context, u ports.Update) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.offline {
		return domain.ErrDisconnected
	}
	t.sent = append(t.sent, u)
	return nil
}

func (t *Transport) Events() <-chan ports.Event { return t.events }

func (t *Transport) Close() error {
	t.once.Do(func() { close(t.events) })
	return nil
}

// SetOffline makes Send fail with domain.ErrDisconnected.
func (t *Transport) SetOffline(offline bool) {
	t.mu.Lock()
	t.offline = offline
	t.mu.Unlock()
}

// Sent returns every write delivered so far.
func (t *Transport) Sent() []ports.Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ports.Update(nil), t.sent...)
}

// Harness drives a channel.Client from the test goroutine, playing the host.
// Nothing runs in the background: Sync flushes writes and delivers the acks.
type Harness struct {
	T         testing.TB
	Loop      *loop.Loop
	Client    *channel.Client
	Transport *Transport

	versions map[string]uint64
	acked    int
}

// NewHarness creates a client over a recording transport.
func NewHarness(t testing.TB) *Harness {
	t.Helper()
	tr := NewTransport()
	l := loop.New()
	return &Harness{
		T:         t,
		Loop:      l,
		Client:    channel.New(tr, l),
		Transport: tr,
		versions:  make(map[string]uint64),
	}
}

// Sync sends queued writes and echoes each one back as the host would.
func (h *Harness) Sync() {
	h.T.Helper()
	require.NoError(h.T, h.Client.Flush(context.Background()))
	h.Loop.RunPending()

	sent := h.Transport.Sent()
	for _, u := range sent[h.acked:] {
		h.versions[u.Key]++
		u.Version = h.versions[u.Key]
		h.Client.Dispatch(ports.Event{Kind: ports.EventChange, Update: u})
	}
	h.acked = len(sent)
	h.Loop.RunPending()
}

// HostSet publishes a host-originated value for key.
func (h *Harness) HostSet(key string, value any) {
	h.T.Helper()
	raw, err := json.Marshal(value)
	require.NoError(h.T, err)
	h.versions[key]++
	h.Client.Dispatch(ports.Event{Kind: ports.EventChange, Update: ports.Update{
		Key: key, Value: raw, Version: h.versions[key], Origin: "kernel",
	}})
	h.Loop.RunPending()
}

// Last returns the last value written upstream for key, decoded into out.
// It reports false when the key was never written.
func (h *Harness) Last(key string, out any) bool {
	h.T.Helper()
	sent := h.Transport.Sent()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].Key == key {
			require.NoError(h.T, json.Unmarshal(sent[i].Value, out))
			return true
		}
	}
	return false
}

// Writes counts the writes sent upstream for key.
func (h *Harness) Writes(key string) int {
	n := 0
	for _, u := range h.Transport.Sent() {
		if u.Key == key {
			n++
		}
	}
	return n
}
