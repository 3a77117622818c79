// Package http exposes widget state over HTTP: a REST surface for the kernel side,
// server-sent events for observers and a websocket transport for widgets.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/bifrost/internal/logging"
	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/ports"
	"github.com/aretw0/bifrost/pkg/session"
	"github.com/go-chi/chi/v5"
)

// OriginHeader names the writer of a PUT. Defaults to DefaultOrigin.
const OriginHeader = "X-Bifrost-Origin"

// DefaultOrigin tags REST writes that carry no OriginHeader.
const DefaultOrigin = "kernel"

// maxValueSize bounds PUT bodies.
const maxValueSize = 8 << 20

// Server serves the widgets held by a session.Manager.
type Server struct {
	Sessions *session.Manager
	Streams  *StreamManager

	seed    []ports.Update
	version string
	metrics http.Handler
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithSeed sets the state written into a widget the first time it is opened.
func WithSeed(seed []ports.Update) Option {
	return func(s *Server) {
		s.seed = seed
	}
}

// WithVersion sets the version reported by GET /info.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// WithMetrics mounts h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a Server over sessions.
func NewServer(sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		Sessions: sessions,
		version:  "dev",
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)
	return s
}

// NewHandler creates a new HTTP handler for the widgets held by sessions.
func NewHandler(sessions *session.Manager, opts ...Option) http.Handler {
	return NewServer(sessions, opts...).Routes()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	r.Route("/widgets", func(r chi.Router) {
		r.Get("/", s.ListWidgets)
		r.Route("/{widgetID}", func(r chi.Router) {
			r.Get("/state", s.GetState)
			r.Get("/state/{key}", s.GetKey)
			r.Put("/state/{key}", s.PutKey)
			r.Get("/events", s.SubscribeEvents)
			r.Get("/ws", s.ServeWidget)
		})
	})
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+OriginHeader)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"app":     "bifrost-http",
		"version": strings.TrimSpace(s.version),
		"widgets": len(s.Sessions.List()),
	})
}

// ListWidgets handles the GET /widgets request.
func (s *Server) ListWidgets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sessions.List())
}

// GetState handles the GET /widgets/{widgetID}/state request.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	store, release, ok := s.open(w, r)
	if !ok {
		return
	}
	defer release()

	snapshot, err := store.Snapshot(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// GetKey handles the GET /widgets/{widgetID}/state/{key} request.
func (s *Server) GetKey(w http.ResponseWriter, r *http.Request) {
	store, release, ok := s.open(w, r)
	if !ok {
		return
	}
	defer release()

	u, err := store.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// PutKey handles the PUT /widgets/{widgetID}/state/{key} request. The body is the
// raw JSON value. REST writers act for the kernel, so read-only keys are accepted.
func (s *Server) PutKey(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxValueSize))
	if err != nil {
		http.Error(w, fmt.Sprintf("read body: %v", err), http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "body is not valid JSON", http.StatusBadRequest)
		return
	}

	store, release, ok := s.open(w, r)
	if !ok {
		return
	}
	defer release()

	origin := r.Header.Get(OriginHeader)
	if origin == "" {
		origin = DefaultOrigin
	}
	applied, err := store.Put(r.Context(), ports.Update{
		Key:    chi.URLParam(r, "key"),
		Value:  json.RawMessage(body),
		Origin: origin,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Debug("Host write applied", "widget_id", chi.URLParam(r, "widgetID"), "key", applied.Key, "version", applied.Version)
	writeJSON(w, http.StatusOK, applied)
}

// open acquires the widget named in the URL, seeding it on first use.
func (s *Server) open(w http.ResponseWriter, r *http.Request) (ports.HostStore, func(), bool) {
	widgetID := chi.URLParam(r, "widgetID")
	store, release, err := s.Sessions.Open(r.Context(), widgetID, s.seed)
	if err != nil {
		s.fail(w, err)
		return nil, nil, false
	}
	return store, release, true
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrKeyNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.logger.Error("Request failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Response encode failed", "error", err)
	}
}
