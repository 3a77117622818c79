// Package direct connects a widget straight to a HostStore, with no wire protocol
// in between. The store may be in memory or shared through Redis.
//
// Disconnect and Connect simulate the kernel going away and coming back.
package direct

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/bifrost/internal/logging"
	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/ports"
	"github.com/google/uuid"
)

// Transport implements ports.Transport over a ports.HostStore.
type Transport struct {
	store  ports.HostStore
	id     string
	logger *slog.Logger
	events chan ports.Event

	mu        sync.Mutex
	connected bool
	closed    bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Option configures the Transport.
type Option func(*Transport)

// WithID overrides the generated connection ID.
func WithID(id string) Option {
	return func(t *Transport) {
		t.id = id
	}
}

// WithLogger configures a logger for the Transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// New creates a disconnected transport. Call Connect to start receiving.
func New(store ports.HostStore, opts ...Option) *Transport {
	t := &Transport{
		store:  store,
		id:     uuid.NewString(),
		logger: logging.NewNop(),
		events: make(chan ports.Event, 64),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ID returns the connection identity.
func (t *Transport) ID() string {
	return t.id
}

// Events returns the ordered event stream.
func (t *Transport) Events() <-chan ports.Event {
	return t.events
}

// Connect subscribes to the store and replays its snapshot. It is a no-op when
// already connected.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return domain.ErrClosed
	}
	if t.connected {
		return nil
	}

	wctx, cancel := context.WithCancel(context.Background())
	updates, err := t.store.Watch(wctx)
	if err != nil {
		cancel()
		return fmt.Errorf("connect %s: %w", t.id, err)
	}
	snapshot, err := t.store.Snapshot(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("connect %s: snapshot: %w", t.id, err)
	}

	t.connected = true
	t.cancel = cancel
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.emit(wctx, ports.Event{Kind: ports.EventConnected})
		for _, u := range snapshot {
			t.emit(wctx, ports.Event{Kind: ports.EventChange, Update: u})
		}
		// Watch may repeat snapshot entries; the client drops them by version.
		for u := range updates {
			t.emit(wctx, ports.Event{Kind: ports.EventChange, Update: u})
		}
	}()
	t.logger.Debug("Transport connected", "id", t.id, "keys", len(snapshot))
	return nil
}

func (t *Transport) emit(ctx context.Context, ev ports.Event) {
	select {
	case t.events <- ev:
	case <-ctx.Done():
	}
}

// Disconnect drops the subscription as a lost kernel would. Sends fail with
// domain.ErrDisconnected until Connect is called again. Connect and Disconnect
// must not run concurrently.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return
	}
	t.connected = false
	t.cancel()
	t.mu.Unlock()

	t.wg.Wait()

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.events <- ports.Event{Kind: ports.EventDisconnected}
	}
	t.logger.Debug("Transport disconnected", "id", t.id)
}

// Send applies u on the store, tagged with this connection as origin.
func (t *Transport) Send(ctx context.Context, u ports.Update) error {
	t.mu.Lock()
	connected := t.connected
	t.mu.Unlock()
	if !connected {
		return fmt.Errorf("send %q: %w", u.Key, domain.ErrDisconnected)
	}
	if domain.ReadOnlyKeys[u.Key] {
		return fmt.Errorf("send %q: %w", u.Key, domain.ErrReadOnlyKey)
	}

	u.Origin = t.id
	if _, err := t.store.Put(ctx, u); err != nil {
		return fmt.Errorf("send %q: %w", u.Key, err)
	}
	return nil
}

// Close disconnects and closes the event stream.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	wasConnected := t.connected
	t.connected = false
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Unlock()

	t.wg.Wait()
	if wasConnected {
		t.logger.Debug("Transport closed", "id", t.id)
	}
	close(t.events)
	return nil
}
