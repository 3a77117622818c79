package ports

import (
	"context"
	"encoding/json"
)

// Update is one write to a named state slot.
//
// Clients fill Key, Value, Origin and WriteID. The host assigns Version, which
// increases strictly per key in the order the host applied the writes.
type Update struct {
	Key     string          `json:"key"`
	Value   json.RawMessage `json:"value"`
	Version uint64          `json:"version,omitempty"`
	Origin  string          `json:"origin,omitempty"`
	WriteID uint64          `json:"write_id,omitempty"`
}

// HostStore is the authoritative widget state owned by the host (the notebook kernel).
type HostStore interface {
	// Get returns the latest applied update for key.
	// Returns domain.ErrKeyNotFound if the key was never written.
	Get(ctx context.Context, key string) (Update, error)

	// Snapshot returns the latest update of every key, sorted by key.
	Snapshot(ctx context.Context) ([]Update, error)

	// Put applies u with the next version for its key and returns the applied update.
	// Every watcher observes applied updates of a key in version order.
	Put(ctx context.Context, u Update) (Update, error)

	// Watch streams applied updates until ctx is done, then closes the channel.
	Watch(ctx context.Context) (<-chan Update, error)

	// Close releases the store.
	Close() error
}
