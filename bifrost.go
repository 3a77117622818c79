package bifrost

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/bifrost/internal/logging"
	"github.com/aretw0/bifrost/pkg/adapters/direct"
	"github.com/aretw0/bifrost/pkg/adapters/memory"
	"github.com/aretw0/bifrost/pkg/channel"
	"github.com/aretw0/bifrost/pkg/loop"
	"github.com/aretw0/bifrost/pkg/observability"
	"github.com/aretw0/bifrost/pkg/ports"
	"github.com/aretw0/bifrost/pkg/widget"
)

// Session is a running widget: its loop, its channel client and the widget itself.
// Touch Widget and Client only inside Do.
type Session struct {
	Loop      *loop.Loop
	Client    *channel.Client
	Widget    *widget.Widget
	Transport ports.Transport

	cancel context.CancelFunc
	done   chan struct{}
}

type options struct {
	logger   *slog.Logger
	renderer ports.Renderer
	metrics  *observability.Metrics
	retry    time.Duration
}

// Option configures a Session.
type Option func(*options)

// WithLogger configures the logger shared by the client and the widget.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRenderer sets the renderer used by Widget.Display.
func WithRenderer(r ports.Renderer) Option {
	return func(o *options) {
		o.renderer = r
	}
}

// WithMetrics records the client's traffic on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithRetryInterval sets how often failed writes are retried.
func WithRetryInterval(d time.Duration) Option {
	return func(o *options) {
		o.retry = d
	}
}

// Open starts a widget over transport. The transport must already be connecting
// (or connected); the session closes it on Close.
func Open(ctx context.Context, transport ports.Transport, opts ...Option) (*Session, error) {
	o := options{logger: logging.NewNop(), retry: channel.DefaultRetryInterval}
	for _, opt := range opts {
		opt(&o)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	l := loop.New()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(runCtx)
	}()

	clientOpts := []channel.Option{channel.WithLogger(o.logger), channel.WithRetryInterval(o.retry)}
	if o.metrics != nil {
		clientOpts = append(clientOpts, channel.WithHooks(o.metrics.ChannelHooks()))
	}
	client := channel.New(transport, l, clientOpts...)
	if o.metrics != nil {
		if err := o.metrics.TrackOutbox(client.QueueDepth); err != nil {
			o.logger.Warn("Outbox depth not exported", "err", err)
		}
	}

	s := &Session{Loop: l, Client: client, Transport: transport, cancel: cancel, done: done}
	widgetOpts := []widget.Option{widget.WithLogger(o.logger)}
	if o.renderer != nil {
		widgetOpts = append(widgetOpts, widget.WithRenderer(o.renderer))
	}
	if err := l.Do(ctx, func() { s.Widget = widget.New(client, widgetOpts...) }); err != nil {
		cancel()
		_ = transport.Close()
		return nil, fmt.Errorf("open widget: %w", err)
	}
	client.Start(runCtx)
	return s, nil
}

// OpenMemory starts a widget against a fresh in-memory host seeded with seed.
// The store is returned so callers can play the kernel.
func OpenMemory(ctx context.Context, seed []ports.Update, opts ...Option) (*Session, *memory.Store, error) {
	store := memory.NewStore()
	for _, u := range seed {
		if _, err := store.Put(ctx, u); err != nil {
			return nil, nil, fmt.Errorf("seed %q: %w", u.Key, err)
		}
	}
	tr := direct.New(store)
	if err := tr.Connect(ctx); err != nil {
		return nil, nil, err
	}
	s, err := Open(ctx, tr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return s, store, nil
}

// Do runs fn on the widget loop and waits for it.
func (s *Session) Do(ctx context.Context, fn func(w *widget.Widget)) error {
	return s.Loop.Do(ctx, func() { fn(s.Widget) })
}

// Close closes the widget, the client and its transport, then stops the loop.
// Writes still queued are lost.
func (s *Session) Close() error {
	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.Loop.Do(closeCtx, func() { s.Widget.Close() })
	err := s.Client.Close()
	s.cancel()
	s.Loop.Close()
	<-s.done
	return err
}
