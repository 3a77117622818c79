package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/bifrost/internal/logging"
	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/ports"
)

// Factory opens the host store backing one widget.
type Factory func(ctx context.Context, widgetID string) (ports.HostStore, error)

// entry holds an open store, its operation lock and the reference count.
type entry struct {
	mu    sync.Mutex
	refs  int
	store ports.HostStore
	err   error
	ready chan struct{}
}

// Manager hands out the host store of each widget, opening it on first use.
// It uses Reference Counting to close stores nobody holds anymore.
type Manager struct {
	factory Factory

	mu      sync.Mutex        // Global lock for the map
	entries map[string]*entry // Map of open widgets

	retain bool         // Keep idle stores open (in-memory stores lose state on close)
	logger *slog.Logger // Logger for internal events (like deferred errors)
	closed bool
}

// Option configures the Manager.
type Option func(*Manager)

// WithRetain keeps stores open after the last release.
func WithRetain() Option {
	return func(m *Manager) {
		m.retain = true
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new widget Manager opening stores with factory.
func NewManager(factory Factory, opts ...Option) *Manager {
	m := &Manager{
		factory: factory,
		entries: make(map[string]*entry),
		logger:  logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire returns the store of widgetID, opening it if needed. The caller must call
// release when done; the store is closed after the last release unless retained.
func (m *Manager) Acquire(ctx context.Context, widgetID string) (ports.HostStore, func(), error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, domain.ErrClosed
	}
	e, exists := m.entries[widgetID]
	if !exists {
		e = &entry{ready: make(chan struct{})}
		m.entries[widgetID] = e
	}
	e.refs++
	m.mu.Unlock()

	if !exists {
		e.store, e.err = m.factory(ctx, widgetID)
		close(e.ready)
		if e.err != nil {
			m.logger.Warn("Failed to open widget store", "widget_id", widgetID, "err", e.err)
		}
	} else {
		select {
		case <-e.ready:
		case <-ctx.Done():
			m.release(widgetID, e)
			return nil, nil, ctx.Err()
		}
	}

	if e.err != nil {
		err := e.err
		m.release(widgetID, e)
		return nil, nil, fmt.Errorf("open widget %q: %w", widgetID, err)
	}

	var once sync.Once
	return e.store, func() { once.Do(func() { m.release(widgetID, e) }) }, nil
}

// release decrements the reference count and forgets the entry at zero.
func (m *Manager) release(widgetID string, e *entry) {
	m.mu.Lock()
	e.refs--
	drop := e.refs <= 0 && (!m.retain || e.err != nil) && m.entries[widgetID] == e
	if drop {
		delete(m.entries, widgetID)
	}
	m.mu.Unlock()

	if drop && e.store != nil {
		if err := e.store.Close(); err != nil {
			m.logger.Warn("Failed to close widget store", "widget_id", widgetID, "err", err)
		}
	}
}

// Open acquires widgetID and writes every seed update whose key is still unset.
// Concurrent Opens of the same widget seed it once.
func (m *Manager) Open(ctx context.Context, widgetID string, seed []ports.Update) (ports.HostStore, func(), error) {
	store, release, err := m.Acquire(ctx, widgetID)
	if err != nil {
		return nil, nil, err
	}
	err = m.WithLock(ctx, widgetID, func(ctx context.Context) error {
		for _, u := range seed {
			_, err := store.Get(ctx, u.Key)
			if err == nil {
				continue
			}
			if !errors.Is(err, domain.ErrKeyNotFound) {
				return fmt.Errorf("failed to check %q: %w", u.Key, err)
			}
			if _, err := store.Put(ctx, u); err != nil {
				return fmt.Errorf("failed to seed %q: %w", u.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		release()
		return nil, nil, err
	}
	return store, release, nil
}

// WithLock executes fn while holding the operation lock of widgetID.
// The widget must be acquired.
func (m *Manager) WithLock(ctx context.Context, widgetID string, fn func(context.Context) error) error {
	m.mu.Lock()
	e, ok := m.entries[widgetID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("widget %q is not open", widgetID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(ctx)
}

// List returns the open widget IDs, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close closes every open store, held or not.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	entries := m.entries
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	var errs []error
	for id, e := range entries {
		<-e.ready
		if e.store == nil {
			continue
		}
		if err := e.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close widget %q: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
