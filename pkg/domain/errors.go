package domain

import "errors"

// ErrKeyNotFound is returned when a state key has never been written.
var ErrKeyNotFound = errors.New("state key not found")

// ErrDisconnected is returned by transports that cannot reach the host.
var ErrDisconnected = errors.New("transport disconnected")

// ErrReadOnlyKey is returned when a client tries to write a host-owned key.
var ErrReadOnlyKey = errors.New("state key is read-only")

// ErrInvalidSpec wraps structural problems found by Validate.
var ErrInvalidSpec = errors.New("invalid graph spec")

// ErrClosed is returned by components used after Close.
var ErrClosed = errors.New("closed")
