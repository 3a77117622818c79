// Package hooks exposes remote state keys as typed, locally readable values.
//
// A State is bound to one key of a channel.Client. Reading is synchronous, writing
// updates the local value immediately and forwards one write upstream. All methods
// must run on the client's loop.
package hooks

import (
	"encoding/json"
	"log/slog"
	"reflect"

	"github.com/aretw0/bifrost/internal/logging"
	"github.com/aretw0/bifrost/pkg/channel"
)

type options struct {
	transform func(json.RawMessage) json.RawMessage
	readOnly  bool
	logger    *slog.Logger
}

// Option configures a State.
type Option func(*options)

// WithTransform rewrites the raw remote value before it is decoded. The function
// is captured once at bind time.
func WithTransform(fn func(json.RawMessage) json.RawMessage) Option {
	return func(o *options) {
		o.transform = fn
	}
}

// ReadOnly makes Set a no-op. Used for keys only the host writes.
func ReadOnly() Option {
	return func(o *options) {
		o.readOnly = true
	}
}

// WithLogger configures a logger for the State.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WrapAs returns a transform that nests the raw value under field.
// A missing value stays missing.
func WrapAs(field string) func(json.RawMessage) json.RawMessage {
	return func(raw json.RawMessage) json.RawMessage {
		if raw == nil {
			return nil
		}
		out, err := json.Marshal(map[string]json.RawMessage{field: raw})
		if err != nil {
			return nil
		}
		return out
	}
}

// State is a typed view of one remote key.
type State[T any] struct {
	client *channel.Client
	key    string
	opts   options

	value   T
	writing bool
	nextID  int
	subs    map[int]func(T)
	order   []int
	unsub   channel.Unsubscribe
}

// Bind attaches a State to key, seeded with the client's current view.
func Bind[T any](client *channel.Client, key string, opts ...Option) *State[T] {
	s := &State[T]{
		client: client,
		key:    key,
		opts:   options{logger: logging.NewNop()},
		subs:   make(map[int]func(T)),
	}
	for _, opt := range opts {
		opt(&s.opts)
	}
	if v, ok := s.decode(client.Get(key)); ok {
		s.value = v
	}
	s.unsub = client.Subscribe(key, s.onRemote)
	return s
}

// Key returns the bound key.
func (s *State[T]) Key() string {
	return s.key
}

// Value returns the current value. Callers must not mutate it.
func (s *State[T]) Value() T {
	return s.value
}

// Set replaces the value. Structurally equal values are ignored.
func (s *State[T]) Set(v T) {
	if s.opts.readOnly {
		s.opts.logger.Debug("Set on read-only key ignored", "key", s.key)
		return
	}
	if s.unsub == nil {
		return
	}
	if reflect.DeepEqual(v, s.value) {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		s.opts.logger.Error("Failed to encode value", "key", s.key, "err", err)
		return
	}

	s.value = v
	s.writing = true
	s.client.Set(s.key, raw)
	s.writing = false
	s.notify()
}

// OnChange registers fn for value changes and returns a func that removes it.
func (s *State[T]) OnChange(fn func(T)) func() {
	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	s.order = append(s.order, id)
	return func() {
		delete(s.subs, id)
	}
}

// Close releases the channel subscription and every listener.
func (s *State[T]) Close() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	s.subs = make(map[int]func(T))
	s.order = nil
}

func (s *State[T]) onRemote(raw json.RawMessage) {
	if s.writing {
		return
	}
	v, ok := s.decode(raw)
	if !ok || reflect.DeepEqual(v, s.value) {
		return
	}
	s.value = v
	s.notify()
}

func (s *State[T]) decode(raw json.RawMessage) (T, bool) {
	var v T
	if s.opts.transform != nil {
		raw = s.opts.transform(raw)
	}
	if raw == nil {
		return v, true
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		s.opts.logger.Warn("Ignoring undecodable value", "key", s.key, "err", err)
		return v, false
	}
	return v, true
}

func (s *State[T]) notify() {
	live := s.order[:0]
	for _, id := range s.order {
		if _, ok := s.subs[id]; ok {
			live = append(live, id)
		}
	}
	s.order = live

	ids := append([]int(nil), live...)
	for _, id := range ids {
		if fn, ok := s.subs[id]; ok {
			fn(s.value)
		}
	}
}
