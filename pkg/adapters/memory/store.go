package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/ports"
)

// Store implements ports.HostStore in memory. It plays the notebook kernel for
// tests, demos and the single-process server.
// Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	data     map[string]ports.Update
	watchers map[*watcher]struct{}
	closed   bool
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data:     make(map[string]ports.Update),
		watchers: make(map[*watcher]struct{}),
	}
}

// Get returns the latest update applied to key.
func (s *Store) Get(ctx context.Context, key string) (ports.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.data[key]
	if !ok {
		return ports.Update{}, fmt.Errorf("get %q: %w", key, domain.ErrKeyNotFound)
	}
	return copyUpdate(u), nil
}

// Snapshot returns every key's latest update, sorted by key.
func (s *Store) Snapshot(ctx context.Context) ([]ports.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ports.Update, 0, len(s.data))
	for _, u := range s.data {
		out = append(out, copyUpdate(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Put applies u under the next version of its key and fans it out to watchers.
// Fan-out happens under the store lock, so every watcher sees the host order.
func (s *Store) Put(ctx context.Context, u ports.Update) (ports.Update, error) {
	if u.Key == "" {
		return ports.Update{}, fmt.Errorf("put: empty key")
	}
	if !json.Valid(u.Value) {
		return ports.Update{}, fmt.Errorf("put %q: value is not valid JSON", u.Key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ports.Update{}, domain.ErrClosed
	}

	u = copyUpdate(u)
	u.Version = s.data[u.Key].Version + 1
	s.data[u.Key] = u
	for w := range s.watchers {
		w.push(u)
	}
	return copyUpdate(u), nil
}

// Watch streams every applied update until ctx is done.
// Slow readers never block Put; their backlog is buffered.
func (s *Store) Watch(ctx context.Context) (<-chan ports.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrClosed
	}

	w := newWatcher()
	s.watchers[w] = struct{}{}
	out := make(chan ports.Update)
	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.watchers, w)
			s.mu.Unlock()
		}()
		w.drain(ctx, out)
	}()
	return out, nil
}

// Close stops every watcher.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for w := range s.watchers {
		w.stop()
	}
	return nil
}

func copyUpdate(u ports.Update) ports.Update {
	u.Value = append(json.RawMessage(nil), u.Value...)
	return u
}

// watcher is an unbounded FIFO between Put and one Watch reader.
type watcher struct {
	mu    sync.Mutex
	queue []ports.Update
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newWatcher() *watcher {
	return &watcher{wake: make(chan struct{}, 1), done: make(chan struct{})}
}

func (w *watcher) push(u ports.Update) {
	w.mu.Lock()
	w.queue = append(w.queue, u)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *watcher) stop() {
	w.once.Do(func() { close(w.done) })
}

func (w *watcher) drain(ctx context.Context, out chan<- ports.Update) {
	for {
		w.mu.Lock()
		batch := w.queue
		w.queue = nil
		w.mu.Unlock()

		for _, u := range batch {
			select {
			case out <- u:
			case <-ctx.Done():
				return
			case <-w.done:
				return
			}
		}

		select {
		case <-w.wake:
		case <-ctx.Done():
			return
		case <-w.done:
			return
		}
	}
}
