package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/bifrost/internal/logging"
	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// putScript bumps the key version, stores the update, indexes the key and
// publishes it in one step, so publish order is version order.
var putScript = backend.NewScript(`
local ver = redis.call('HINCRBY', KEYS[1], 'ver', 1)
redis.call('HSET', KEYS[1], 'val', ARGV[2], 'origin', ARGV[3], 'wid', ARGV[4])
redis.call('SADD', KEYS[2], ARGV[1])
local ttl = tonumber(ARGV[5])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
  redis.call('PEXPIRE', KEYS[2], ttl)
end
redis.call('PUBLISH', KEYS[3], ver .. '\n' .. ARGV[1] .. '\n' .. ARGV[3] .. '\n' .. ARGV[4] .. '\n' .. ARGV[2])
return ver
`)

// Store implements ports.HostStore on Redis. Several processes sharing a prefix
// share one widget state; updates fan out through Pub/Sub.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

type Option func(*Store)

// WithTTL expires idle widget state. Every write renews it.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix, one per widget.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithLogger configures a logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "bifrost:widget:",
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(name string) string {
	return s.prefix + "state:" + name
}

func (s *Store) indexKey() string {
	return s.prefix + "keys"
}

func (s *Store) eventsChannel() string {
	return s.prefix + "events"
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Get returns the latest update applied to key.
func (s *Store) Get(ctx context.Context, key string) (ports.Update, error) {
	fields, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return ports.Update{}, fmt.Errorf("failed to get %q from redis: %w", key, err)
	}
	return decodeHash(key, fields)
}

func decodeHash(key string, fields map[string]string) (ports.Update, error) {
	if len(fields) == 0 {
		return ports.Update{}, fmt.Errorf("get %q: %w", key, domain.ErrKeyNotFound)
	}
	ver, err := strconv.ParseUint(fields["ver"], 10, 64)
	if err != nil {
		return ports.Update{}, fmt.Errorf("corrupt version for %q: %w", key, err)
	}
	u := ports.Update{
		Key:     key,
		Value:   json.RawMessage(fields["val"]),
		Version: ver,
		Origin:  fields["origin"],
	}
	if wid := fields["wid"]; wid != "" {
		if u.WriteID, err = strconv.ParseUint(wid, 10, 64); err != nil {
			return ports.Update{}, fmt.Errorf("corrupt write id for %q: %w", key, err)
		}
	}
	return u, nil
}

// Snapshot returns every key's latest update, sorted by key.
// Keys that expired since they were indexed are skipped.
func (s *Store) Snapshot(ctx context.Context) ([]ports.Update, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	sort.Strings(keys)

	pipe := s.client.Pipeline()
	cmds := make([]*backend.MapStringStringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HGetAll(ctx, s.key(k))
	}
	if len(keys) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to read snapshot: %w", err)
		}
	}

	out := make([]ports.Update, 0, len(keys))
	for i, k := range keys {
		u, err := decodeHash(k, cmds[i].Val())
		if errors.Is(err, domain.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// Put applies u under the next version of its key and publishes it.
func (s *Store) Put(ctx context.Context, u ports.Update) (ports.Update, error) {
	if u.Key == "" || strings.Contains(u.Key, "\n") {
		return ports.Update{}, fmt.Errorf("put: invalid key %q", u.Key)
	}
	if strings.Contains(u.Origin, "\n") {
		return ports.Update{}, fmt.Errorf("put %q: invalid origin", u.Key)
	}
	if !json.Valid(u.Value) {
		return ports.Update{}, fmt.Errorf("put %q: value is not valid JSON", u.Key)
	}

	keys := []string{s.key(u.Key), s.indexKey(), s.eventsChannel()}
	args := []any{u.Key, string(u.Value), u.Origin, strconv.FormatUint(u.WriteID, 10), s.ttl.Milliseconds()}
	ver, err := putScript.Run(ctx, s.client, keys, args...).Uint64()
	if err != nil {
		return ports.Update{}, fmt.Errorf("failed to save %q to redis: %w", u.Key, err)
	}
	u.Version = ver
	return u, nil
}

// Watch subscribes to published updates. The subscription is confirmed before
// Watch returns, so no later Put is missed.
func (s *Store) Watch(ctx context.Context) (<-chan ports.Update, error) {
	ps := s.client.Subscribe(ctx, s.eventsChannel())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan ports.Update)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				u, err := decodeMessage(msg.Payload)
				if err != nil {
					s.logger.Warn("Dropping malformed event", "channel", msg.Channel, "err", err)
					continue
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func decodeMessage(payload string) (ports.Update, error) {
	parts := strings.SplitN(payload, "\n", 5)
	if len(parts) != 5 {
		return ports.Update{}, fmt.Errorf("malformed event")
	}
	ver, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return ports.Update{}, fmt.Errorf("malformed event version: %w", err)
	}
	wid, err := strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		return ports.Update{}, fmt.Errorf("malformed event write id: %w", err)
	}
	return ports.Update{
		Key:     parts[1],
		Value:   json.RawMessage(parts[4]),
		Version: ver,
		Origin:  parts[2],
		WriteID: wid,
	}, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
