package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/ports"
)

// Origin tags the suggested_graphs writes made by the engine.
const Origin = "suggest"

// inputs are the keys suggestions depend on.
var inputs = map[string]bool{
	domain.KeyColumns:         true,
	domain.KeySelectedColumns: true,
	domain.KeyGraphKind:       true,
}

// Refresh recomputes suggested_graphs from the selection held in store.
// It reports whether a new value was written.
func (e *Engine) Refresh(ctx context.Context, store ports.HostStore) (bool, error) {
	var (
		columns  []domain.FieldSpec
		selected []string
		kind     string
	)
	if err := e.read(ctx, store, domain.KeyColumns, &columns); err != nil {
		return false, err
	}
	if err := e.read(ctx, store, domain.KeySelectedColumns, &selected); err != nil {
		return false, err
	}
	if err := e.read(ctx, store, domain.KeyGraphKind, &kind); err != nil {
		return false, err
	}

	value, err := json.Marshal(e.Suggest(columns, selected, kind))
	if err != nil {
		return false, fmt.Errorf("encode suggestions: %w", err)
	}

	cur, err := store.Get(ctx, domain.KeySuggestedGraphs)
	if err == nil {
		var compact bytes.Buffer
		if json.Compact(&compact, cur.Value) == nil && bytes.Equal(compact.Bytes(), value) {
			return false, nil
		}
	} else if !errors.Is(err, domain.ErrKeyNotFound) {
		return false, fmt.Errorf("read %s: %w", domain.KeySuggestedGraphs, err)
	}

	if _, err := store.Put(ctx, ports.Update{Key: domain.KeySuggestedGraphs, Value: value, Origin: Origin}); err != nil {
		return false, fmt.Errorf("write %s: %w", domain.KeySuggestedGraphs, err)
	}
	return true, nil
}

// read decodes key into out. A missing key leaves out untouched; an undecodable
// one is logged and treated as missing.
func (e *Engine) read(ctx context.Context, store ports.HostStore, key string, out any) error {
	u, err := store.Get(ctx, key)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(u.Value, out); err != nil {
		e.logger.Warn("Ignoring undecodable selection input", "key", key, "err", err)
	}
	return nil
}

// Keep refreshes the suggestions every time one of their inputs changes, until
// ctx is done. Refresh failures are logged and do not stop it.
func (e *Engine) Keep(ctx context.Context, store ports.HostStore) error {
	feed, err := store.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if _, err := e.Refresh(ctx, store); err != nil {
		e.logger.Warn("Suggestion refresh failed", "err", err)
	}
	for u := range feed {
		if !inputs[u.Key] {
			continue
		}
		if _, err := e.Refresh(ctx, store); err != nil {
			e.logger.Warn("Suggestion refresh failed", "key", u.Key, "err", err)
		}
	}
	return ctx.Err()
}
