package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/bifrost/internal/logging"
	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/loop"
	"github.com/aretw0/bifrost/pkg/ports"
)

// DefaultRetryInterval is how long the sender waits before retrying a failed write
// when nothing else wakes it up.
const DefaultRetryInterval = 2 * time.Second

// Hooks are optional observability callbacks. They run on whichever goroutine
// produced the event and must not block.
type Hooks struct {
	OnSend         func(key string)
	OnSendError    func(key string, err error)
	OnQueued       func(depth int)
	OnRemoteChange func(key string, own bool)
}

// Unsubscribe releases a subscription. It is safe to call more than once.
type Unsubscribe func()

type subscriber struct {
	id int
	fn func(json.RawMessage)
}

// slot is the local view of one key.
type slot struct {
	confirmed json.RawMessage
	version   uint64
	local     json.RawMessage
	pending   []uint64 // unacknowledged write IDs, ascending
	subs      []*subscriber
}

func (s *slot) view() json.RawMessage {
	if len(s.pending) > 0 {
		return s.local
	}
	return s.confirmed
}

func (s *slot) dropPendingUpTo(writeID uint64) {
	i := 0
	for i < len(s.pending) && s.pending[i] <= writeID {
		i++
	}
	s.pending = s.pending[i:]
}

func (s *slot) dropPending(writeID uint64) {
	for i, id := range s.pending {
		if id == writeID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// Client is the widget side of the remote state channel.
//
// Writes are applied to the local view immediately and sent upstream in order by
// a sender goroutine. While the host is unreachable writes wait in an outbox
// coalesced per key (the latest value wins, first-enqueue order is kept); they are
// retried when the transport reconnects, on the next Set, or after the retry
// interval. Transport failures never roll back the local view.
//
// All methods except Start, Flush and Close must be called on the client's loop.
type Client struct {
	transport ports.Transport
	loop      *loop.Loop
	logger    *slog.Logger
	hooks     Hooks
	retry     time.Duration

	// Loop-owned state.
	slots       map[string]*slot
	nextWriteID uint64
	nextSubID   int
	connected   bool
	closed      bool

	// Outbox shared with the sender goroutine.
	outMu  sync.Mutex
	outbox []ports.Update
	sendMu sync.Mutex
	wake   chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the Client.
type Option func(*Client)

// WithLogger configures a logger for the Client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHooks registers observability hooks.
func WithHooks(hooks Hooks) Option {
	return func(c *Client) {
		c.hooks = hooks
	}
}

// WithRetryInterval sets the delay between retries of a failed write.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retry = d
		}
	}
}

// New creates a client bound to transport whose state is owned by l.
func New(transport ports.Transport, l *loop.Loop, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		loop:      l,
		logger:    logging.NewNop(),
		retry:     DefaultRetryInterval,
		slots:     make(map[string]*slot),
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the transport identity used as origin for this client's writes.
func (c *Client) ID() string {
	return c.transport.ID()
}

// Start pumps transport events onto the loop and starts the sender goroutine.
func (c *Client) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		events := c.transport.Events()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				c.loop.Post(func() { c.Dispatch(ev) })
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		c.runSender(ctx)
	}()
}

func (c *Client) slot(key string) *slot {
	s, ok := c.slots[key]
	if !ok {
		s = &slot{}
		c.slots[key] = s
	}
	return s
}

// Get returns the current local view of key, or nil if nothing is known yet.
func (c *Client) Get(key string) json.RawMessage {
	s, ok := c.slots[key]
	if !ok {
		return nil
	}
	return s.view()
}

// Version returns the last host version observed for key.
func (c *Client) Version(key string) uint64 {
	if s, ok := c.slots[key]; ok {
		return s.version
	}
	return 0
}

// Pending reports whether key has writes the host has not acknowledged yet.
func (c *Client) Pending(key string) bool {
	s, ok := c.slots[key]
	return ok && len(s.pending) > 0
}

// Connected reports the last connection state announced by the transport.
func (c *Client) Connected() bool {
	return c.connected
}

// Set writes value to key. The local view changes synchronously and subscribers
// are notified before Set returns; the upstream write is fire-and-forget.
func (c *Client) Set(key string, value json.RawMessage) {
	if c.closed {
		c.logger.Debug("Set after Close ignored", "key", key)
		return
	}
	s := c.slot(key)
	prev := s.view()

	c.nextWriteID++
	id := c.nextWriteID
	s.local = append(json.RawMessage(nil), value...)
	s.pending = append(s.pending, id)

	if superseded, ok := c.enqueue(ports.Update{Key: key, Value: s.local, Origin: c.transport.ID(), WriteID: id}); ok {
		s.dropPending(superseded)
	}

	if !bytes.Equal(prev, s.local) {
		c.notify(s, s.local)
	}
}

// Subscribe registers fn for changes of key's local view. fn runs on the loop.
func (c *Client) Subscribe(key string, fn func(json.RawMessage)) Unsubscribe {
	s := c.slot(key)
	c.nextSubID++
	sub := &subscriber{id: c.nextSubID, fn: fn}
	s.subs = append(s.subs, sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			for i, x := range s.subs {
				if x == sub {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Subscribers returns the number of live subscriptions on key.
func (c *Client) Subscribers(key string) int {
	if s, ok := c.slots[key]; ok {
		return len(s.subs)
	}
	return 0
}

func (c *Client) notify(s *slot, value json.RawMessage) {
	subs := append([]*subscriber(nil), s.subs...)
	for _, sub := range subs {
		sub.fn(value)
	}
}

// Dispatch applies one transport event. It must run on the loop; Start arranges
// that for events read from the transport.
func (c *Client) Dispatch(ev ports.Event) {
	switch ev.Kind {
	case ports.EventConnected:
		c.connected = true
		c.logger.Debug("Channel connected", "client_id", c.transport.ID())
		c.signal()
	case ports.EventDisconnected:
		c.connected = false
		c.logger.Warn("Channel disconnected, writes will be queued", "client_id", c.transport.ID())
	case ports.EventChange:
		c.applyRemote(ev.Update)
	}
}

func (c *Client) applyRemote(u ports.Update) {
	s := c.slot(u.Key)
	if u.Version != 0 && u.Version <= s.version {
		c.logger.Debug("Stale update dropped", "key", u.Key, "version", u.Version, "seen", s.version)
		return
	}
	prev := s.view()
	s.version = u.Version
	s.confirmed = u.Value

	own := u.Origin == c.transport.ID() && u.WriteID != 0
	if own {
		s.dropPendingUpTo(u.WriteID)
	}
	if c.hooks.OnRemoteChange != nil {
		c.hooks.OnRemoteChange(u.Key, own)
	}

	next := s.view()
	if !bytes.Equal(prev, next) {
		c.notify(s, next)
	}
}

// enqueue appends u to the outbox, replacing a queued write of the same key.
// It returns the write ID that was superseded, if any.
func (c *Client) enqueue(u ports.Update) (uint64, bool) {
	c.outMu.Lock()
	var superseded uint64
	replaced := false
	for i := range c.outbox {
		if c.outbox[i].Key == u.Key {
			superseded = c.outbox[i].WriteID
			c.outbox[i] = u
			replaced = true
			break
		}
	}
	if !replaced {
		c.outbox = append(c.outbox, u)
	}
	depth := len(c.outbox)
	c.outMu.Unlock()

	if c.hooks.OnQueued != nil {
		c.hooks.OnQueued(depth)
	}
	c.signal()
	return superseded, replaced
}

// QueueDepth returns the number of writes waiting to be sent.
func (c *Client) QueueDepth() int {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	return len(c.outbox)
}

func (c *Client) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// sendNext sends the oldest queued write. It reports whether the outbox was
// empty and the send error, if any.
func (c *Client) sendNext(ctx context.Context) (empty bool, err error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.outMu.Lock()
	if len(c.outbox) == 0 {
		c.outMu.Unlock()
		return true, nil
	}
	u := c.outbox[0]
	c.outbox = c.outbox[1:]
	c.outMu.Unlock()

	err = c.transport.Send(ctx, u)
	if err == nil {
		if c.hooks.OnSend != nil {
			c.hooks.OnSend(u.Key)
		}
		return false, nil
	}

	if c.hooks.OnSendError != nil {
		c.hooks.OnSendError(u.Key, err)
	}

	if errors.Is(err, domain.ErrReadOnlyKey) {
		// The host will never accept it; retrying would wedge the outbox.
		c.logger.Warn("Write rejected by host, dropping it", "key", u.Key, "err", err)
		key, id := u.Key, u.WriteID
		c.loop.Post(func() { c.discard(key, id) })
		return false, nil
	}

	c.outMu.Lock()
	newer := false
	for _, q := range c.outbox {
		if q.Key == u.Key {
			newer = true
			break
		}
	}
	if !newer {
		c.outbox = append([]ports.Update{u}, c.outbox...)
	}
	c.outMu.Unlock()

	if newer {
		// The failed write will never be acknowledged; the newer one carries the value.
		key, id := u.Key, u.WriteID
		c.loop.Post(func() { c.discard(key, id) })
	}
	return false, err
}

// discard forgets a pending write that will never be acknowledged. Subscribers
// are told when the view falls back to the confirmed value.
func (c *Client) discard(key string, writeID uint64) {
	s := c.slot(key)
	prev := s.view()
	s.dropPending(writeID)
	if next := s.view(); !bytes.Equal(prev, next) {
		c.notify(s, next)
	}
}

// Flush sends queued writes in order until the outbox is empty or a send fails.
func (c *Client) Flush(ctx context.Context) error {
	for {
		empty, err := c.sendNext(ctx)
		if err != nil {
			return err
		}
		if empty {
			return nil
		}
	}
}

func (c *Client) runSender(ctx context.Context) {
	timer := time.NewTimer(c.retry)
	defer timer.Stop()

	for {
		if err := c.Flush(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("Upstream write failed, keeping it queued", "err", err, "depth", c.QueueDepth())
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.retry)
			select {
			case <-ctx.Done():
				return
			case <-c.wake:
			case <-timer.C:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}
	}
}

// Close stops the background goroutines and closes the transport.
// Writes still queued are dropped.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.transport.Close()
	c.wg.Wait()
	c.loop.Post(func() { c.closed = true })
	if err != nil && !errors.Is(err, domain.ErrClosed) {
		return err
	}
	return nil
}
