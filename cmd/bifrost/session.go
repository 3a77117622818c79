package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/bifrost"
	"github.com/aretw0/bifrost/internal/config"
	httpAdapter "github.com/aretw0/bifrost/pkg/adapters/http"
	"github.com/aretw0/bifrost/pkg/suggest"
)

// attach opens the configured widget. With a server URL it joins that host over
// a websocket; otherwise it runs a private in-memory host with the demo data.
func attach(ctx context.Context, cfg config.Config, server string, logger *slog.Logger, opts ...bifrost.Option) (*bifrost.Session, error) {
	opts = append([]bifrost.Option{
		bifrost.WithLogger(logger),
		bifrost.WithRetryInterval(cfg.Outbox.RetryInterval),
	}, opts...)

	if server != "" {
		endpoint, err := httpAdapter.WidgetURL(server, cfg.Widget.ID)
		if err != nil {
			return nil, err
		}
		tr := httpAdapter.Dial(endpoint, httpAdapter.WithClientLogger(logger))
		s, err := bifrost.Open(ctx, tr, opts...)
		if err != nil {
			return nil, fmt.Errorf("attach %s: %w", endpoint, err)
		}
		logger.Info("Attached to host", "endpoint", endpoint)
		return s, nil
	}

	s, store, err := bifrost.OpenMemory(ctx, demoSeed(), opts...)
	if err != nil {
		return nil, err
	}
	engine := suggest.New(suggest.WithLogger(logger))
	go func() {
		if err := engine.Keep(ctx, store); err != nil && ctx.Err() == nil {
			logger.Warn("Suggestions stopped", "err", err)
		}
	}()
	return s, nil
}
