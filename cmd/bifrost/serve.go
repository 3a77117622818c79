package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aretw0/bifrost"
	"github.com/aretw0/bifrost/internal/config"
	"github.com/aretw0/bifrost/internal/presentation/tui"
	httpAdapter "github.com/aretw0/bifrost/pkg/adapters/http"
	"github.com/aretw0/bifrost/pkg/adapters/memory"
	"github.com/aretw0/bifrost/pkg/adapters/redis"
	"github.com/aretw0/bifrost/pkg/observability"
	"github.com/aretw0/bifrost/pkg/ports"
	"github.com/aretw0/bifrost/pkg/session"
	"github.com/aretw0/bifrost/pkg/suggest"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the widget host",
	Long: `Starts the HTTP host: REST and SSE for the kernel side, websockets for widgets
and Prometheus metrics. State lives in memory unless redis.addr is configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		demo, _ := cmd.Flags().GetBool("demo")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		metrics := observability.New()
		sessions := newSessions(ctx, cfg, metrics, logger)
		defer sessions.Close()

		var seed []ports.Update
		if demo {
			seed = demoSeed()
		}
		handler := httpAdapter.NewHandler(sessions,
			httpAdapter.WithSeed(seed),
			httpAdapter.WithVersion(bifrost.Version),
			httpAdapter.WithMetrics(metrics.Handler()),
			httpAdapter.WithLogger(logger),
		)

		srv := &http.Server{
			Addr:    cfg.Listen,
			Handler: handler,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			tui.PrintBanner(cmd.ErrOrStderr())
			logger.Info("Starting Bifrost host", "address", srv.Addr, "redis", cfg.Redis.Addr != "", "version", strings.TrimSpace(bifrost.Version))
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
			logger.Info("Start shutdown")

			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Graceful shutdown did not complete", "err", err)
				if err := srv.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("error killing server: %w", err)
				}
			}
			logger.Info("Bifrost host stopped gracefully")
			return nil
		}
	},
}

// newSessions opens one store per widget, in Redis or in memory, with a
// suggestion engine following each.
func newSessions(ctx context.Context, cfg config.Config, metrics *observability.Metrics, logger *slog.Logger) *session.Manager {
	engine := suggest.New(suggest.WithLogger(logger))
	factory := func(openCtx context.Context, widgetID string) (ports.HostStore, error) {
		var store ports.HostStore
		if cfg.Redis.Addr != "" {
			rs := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
				redis.WithPrefix(cfg.Redis.Prefix+widgetID+":"),
				redis.WithTTL(cfg.Redis.TTL),
				redis.WithLogger(logger.With("widget_id", widgetID)),
			)
			if err := rs.Ping(openCtx); err != nil {
				_ = rs.Close()
				return nil, err
			}
			store = rs
		} else {
			store = memory.NewStore()
		}
		store = metrics.InstrumentStore(store)

		go func() {
			if err := engine.Keep(ctx, store); err != nil && ctx.Err() == nil {
				logger.Warn("Suggestions stopped", "widget_id", widgetID, "err", err)
			}
		}()
		return store, nil
	}

	opts := []session.Option{session.WithLogger(logger)}
	if cfg.Redis.Addr == "" {
		// Closing a memory store loses its state.
		opts = append(opts, session.WithRetain())
	}
	return session.NewManager(factory, opts...)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("demo", false, "Seed every new widget with a demo dataset")
}
