package ports

import "context"

// EventKind classifies what a transport delivers to the client.
type EventKind string

const (
	EventChange       EventKind = "change"
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
)

// Event is one notification from the host side of a transport.
type Event struct {
	Kind   EventKind `json:"kind"`
	Update Update    `json:"update,omitempty"`
}

// Transport is the async key/value channel between the widget and its host.
//
// After every (re)connection the transport emits EventConnected followed by one
// EventChange per key holding its current value, then live changes in host order.
// The client's own writes come back as changes carrying its ID as Origin.
type Transport interface {
	// ID identifies this connection to the host.
	ID() string

	// Send delivers a write upstream. It returns domain.ErrDisconnected (possibly
	// wrapped) when the host is unreachable.
	Send(ctx context.Context, u Update) error

	// Events returns the ordered stream of host notifications.
	// The channel is closed when the transport is closed.
	Events() <-chan Event

	// Close tears the connection down.
	Close() error
}
