package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/bifrost/internal/logging"
	"github.com/aretw0/bifrost/pkg/ports"
	"github.com/go-chi/chi/v5"
)

// WatchFunc opens the update feed of one widget. The feed ends when ctx is done.
type WatchFunc func(ctx context.Context) (<-chan ports.Update, error)

// pump forwards one widget's feed to its subscribers.
type pump struct {
	cancel context.CancelFunc
	subs   map[chan ports.Update]struct{}
}

// StreamManager handles active SSE connections. Each widget with subscribers
// has one pump watching its store.
type StreamManager struct {
	mu     sync.RWMutex
	pumps  map[string]*pump // WidgetID -> pump
	logger *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		pumps:  make(map[string]*pump),
		logger: logger,
	}
}

// Subscribe registers a subscriber for widgetID. The first subscriber starts the
// pump with watch; the feed is live when Subscribe returns. The returned func
// unsubscribes and stops the pump after the last subscriber.
func (sm *StreamManager) Subscribe(widgetID string, watch WatchFunc) (<-chan ports.Update, func(), error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	p, ok := sm.pumps[widgetID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		feed, err := watch(ctx)
		if err != nil {
			cancel()
			return nil, nil, fmt.Errorf("watch %s: %w", widgetID, err)
		}
		p = &pump{cancel: cancel, subs: make(map[chan ports.Update]struct{})}
		sm.pumps[widgetID] = p
		go sm.run(widgetID, p, feed)
	}

	ch := make(chan ports.Update, 64)
	p.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			delete(p.subs, ch)
			close(ch)
			if len(p.subs) == 0 && sm.pumps[widgetID] == p {
				delete(sm.pumps, widgetID)
				p.cancel()
			}
		})
	}, nil
}

func (sm *StreamManager) run(widgetID string, p *pump, feed <-chan ports.Update) {
	for u := range feed {
		sm.broadcast(widgetID, p, u)
	}
}

func (sm *StreamManager) broadcast(widgetID string, p *pump, u ports.Update) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range p.subs {
		select {
		case ch <- u:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: Client buffer full, dropping update", "widget_id", widgetID, "key", u.Key)
		}
	}
}

// Active returns the number of widgets being pumped.
func (sm *StreamManager) Active() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.pumps)
}

// SubscribeEvents handles the GET /widgets/{widgetID}/events request (SSE).
// It replays the current state, then streams live updates. The optional
// keys query parameter is a comma-separated filter.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	widgetID := chi.URLParam(r, "widgetID")
	store, release, ok := s.open(w, r)
	if !ok {
		return
	}
	defer release()

	ch, cancel, err := s.Streams.Subscribe(widgetID, func(ctx context.Context) (<-chan ports.Update, error) {
		return s.watch(ctx, widgetID)
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	defer cancel()

	snapshot, err := store.Snapshot(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	var watchList map[string]bool
	if keys := r.URL.Query().Get("keys"); keys != "" {
		watchList = make(map[string]bool)
		for _, k := range strings.Split(keys, ",") {
			watchList[strings.TrimSpace(k)] = true
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Info("SSE: Subscribed to widget", "widget_id", widgetID)

	send := func(u ports.Update) {
		if watchList != nil && !watchList[u.Key] {
			return
		}
		payload, err := json.Marshal(u)
		if err != nil {
			s.logger.Warn("SSE: encode failed", "key", u.Key, "err", err)
			return
		}
		fmt.Fprintf(w, "event: change\ndata: %s\n\n", payload)
		flusher.Flush()
	}

	// Live updates may repeat snapshot entries; readers order them by version.
	for _, u := range snapshot {
		send(u)
	}
	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "widget_id", widgetID)
			return
		case u, ok := <-ch:
			if !ok {
				return
			}
			send(u)
		}
	}
}

// watch holds a reference on widgetID for as long as ctx lives.
func (s *Server) watch(ctx context.Context, widgetID string) (<-chan ports.Update, error) {
	store, release, err := s.Sessions.Acquire(ctx, widgetID)
	if err != nil {
		return nil, err
	}
	feed, err := store.Watch(ctx)
	if err != nil {
		release()
		return nil, err
	}
	go func() {
		<-ctx.Done()
		release()
	}()
	return feed, nil
}
