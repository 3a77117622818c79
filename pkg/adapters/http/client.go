package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/aretw0/bifrost/internal/logging"
	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/ports"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultReconnectInterval is the pause between dial attempts.
const DefaultReconnectInterval = time.Second

// Client implements ports.Transport over the widget websocket served by ServeWidget.
// It redials until closed, emitting EventDisconnected when a connection drops.
type Client struct {
	endpoint  string
	id        string
	reconnect time.Duration
	dialer    *websocket.Dialer
	logger    *slog.Logger
	events    chan ports.Event

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu      sync.Mutex
	conn    *websocket.Conn
	seq     uint64
	pending map[uint64]chan error
	writeMu sync.Mutex
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithClientID overrides the generated connection ID.
func WithClientID(id string) ClientOption {
	return func(c *Client) {
		c.id = id
	}
}

// WithReconnectInterval sets the pause between dial attempts.
func WithReconnectInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.reconnect = d
	}
}

// WithClientLogger configures a logger for the Client.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WidgetURL returns the websocket endpoint of widgetID on a server at base
// (http, https, ws or wss).
func WidgetURL(base, widgetID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.JoinPath("widgets", widgetID, "ws").String(), nil
}

// Dial starts a Client connecting to endpoint in the background.
func Dial(endpoint string, opts ...ClientOption) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		endpoint:  endpoint,
		id:        uuid.NewString(),
		reconnect: DefaultReconnectInterval,
		dialer:    websocket.DefaultDialer,
		logger:    logging.NewNop(),
		events:    make(chan ports.Event, 64),
		ctx:       ctx,
		cancel:    cancel,
		pending:   make(map[uint64]chan error),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.wg.Add(1)
	go c.run()
	return c
}

// ID returns the connection identity sent as client_id.
func (c *Client) ID() string {
	return c.id
}

// Events returns the ordered event stream.
func (c *Client) Events() <-chan ports.Event {
	return c.events
}

func (c *Client) run() {
	defer c.wg.Done()

	target, err := url.Parse(c.endpoint)
	if err != nil {
		c.logger.Error("Invalid widget endpoint", "endpoint", c.endpoint, "err", err)
		return
	}
	q := target.Query()
	q.Set("client_id", c.id)
	target.RawQuery = q.Encode()

	for {
		conn, _, err := c.dialer.DialContext(c.ctx, target.String(), nil)
		if err != nil {
			c.logger.Debug("Dial failed", "endpoint", c.endpoint, "err", err)
		} else {
			c.serve(conn)
			if c.ctx.Err() == nil {
				c.emit(ports.Event{Kind: ports.EventDisconnected})
			}
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.reconnect):
		}
	}
}

// serve reads frames until the connection drops.
func (c *Client) serve(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	stop := context.AfterFunc(c.ctx, func() { conn.Close() })
	defer stop()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		pending := c.pending
		c.pending = make(map[uint64]chan error)
		c.mu.Unlock()
		for _, ch := range pending {
			ch <- domain.ErrDisconnected
		}
		conn.Close()
	}()

	for {
		var in Frame
		if err := conn.ReadJSON(&in); err != nil {
			c.logger.Debug("Connection lost", "id", c.id, "err", err)
			return
		}
		switch in.Type {
		case FrameEvent:
			if in.Event != nil {
				c.emit(*in.Event)
			}
		case FrameResult:
			c.resolve(in)
		}
	}
}

func (c *Client) emit(ev ports.Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func (c *Client) resolve(in Frame) {
	c.mu.Lock()
	ch, ok := c.pending[in.ID]
	delete(c.pending, in.ID)
	c.mu.Unlock()
	if !ok {
		return
	}
	switch in.Code {
	case "":
		ch <- nil
	case CodeReadOnly:
		ch <- domain.ErrReadOnlyKey
	default:
		ch <- errors.New(in.Error)
	}
}

// Send writes u and waits for the host's result.
func (c *Client) Send(ctx context.Context, u ports.Update) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return fmt.Errorf("send %q: %w", u.Key, domain.ErrDisconnected)
	}
	c.seq++
	id := c.seq
	result := make(chan error, 1)
	c.pending[id] = result
	c.mu.Unlock()

	c.writeMu.Lock()
	err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err == nil {
		err = conn.WriteJSON(Frame{Type: FramePut, ID: id, Update: &u})
	}
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return fmt.Errorf("send %q: %w: %v", u.Key, domain.ErrDisconnected, err)
	}

	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("send %q: %w", u.Key, err)
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Close stops redialing, drops the connection and closes the event stream.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
		close(c.events)
	})
	return nil
}
