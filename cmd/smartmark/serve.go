package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joestump/smartmark/internal/auth"
	"github.com/joestump/smartmark/internal/bookmarks"
	"github.com/joestump/smartmark/internal/build"
	"github.com/joestump/smartmark/internal/config"
	"github.com/joestump/smartmark/internal/db"
	"github.com/joestump/smartmark/internal/handler"
	"github.com/joestump/smartmark/internal/logger"
	"github.com/joestump/smartmark/internal/metadata"
	"github.com/joestump/smartmark/internal/realtime"
	"github.com/joestump/smartmark/internal/store"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			database, err := db.New(cfg.DB.Driver, cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			if err := db.Migrate(database, cfg.DB.Driver); err != nil {
				return err
			}

			broker, closeBroker, err := newBroker(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeBroker()

			oidcProvider, err := auth.NewProvider(ctx, cfg)
			if err != nil {
				return err
			}

			secure := !cfg.InsecureCookies
			sessionManager := auth.NewSessionManager(database, cfg.DB.Driver, cfg.SessionLifetime, secure)
			userStore := store.NewUserStore(database)

			fetcher := metadata.NewFetcher(
				metadata.WithRateLimit(cfg.Metadata.Rate, cfg.Metadata.Burst),
				metadata.WithLogger(log),
			)
			var enricher metadata.Enricher = fetcher
			if cfg.Metadata.Endpoint != "" {
				enricher = metadata.NewClient(cfg.Metadata.Endpoint, log)
			}
			library := bookmarks.NewService(store.NewBookmarkStore(database), enricher, broker, log)

			router := handler.NewRouter(handler.Deps{
				SessionManager: sessionManager,
				AuthHandlers:   auth.NewHandlers(oidcProvider, sessionManager, userStore, secure, log),
				AuthMiddleware: auth.NewMiddleware(sessionManager, userStore, log),
				Bookmarks:      library,
				Enricher:       fetcher,
				Broker:         broker,
				Log:            log,
				Health:         database.PingContext,
			})

			srv := &http.Server{
				Addr:              cfg.HTTP.Addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("listening",
					logger.String("addr", cfg.HTTP.Addr),
					logger.String("version", build.Version),
					logger.String("realtime", cfg.Realtime.Backend))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				log.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
}

// newBroker builds the change feed selected by realtime.backend. The returned
// func releases it.
func newBroker(ctx context.Context, cfg *config.Config, log logger.Logger) (realtime.Broker, func(), error) {
	switch cfg.Realtime.Backend {
	case "redis":
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		client, err := realtime.ConnectRedis(connectCtx, realtime.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return realtime.NewRedisBroker(client, log), func() { _ = client.Close() }, nil
	default:
		b := realtime.NewMemoryBroker(log)
		return b, func() { _ = b.Close() }, nil
	}
}
