package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/maintenance-analytics/internal/analytics"
	"github.com/ukydev/maintenance-analytics/internal/auth"
	"github.com/ukydev/maintenance-analytics/internal/cache"
	"github.com/ukydev/maintenance-analytics/internal/config"
	"github.com/ukydev/maintenance-analytics/internal/db"
	"github.com/ukydev/maintenance-analytics/internal/handlers"
	"github.com/ukydev/maintenance-analytics/internal/logger"
	"github.com/ukydev/maintenance-analytics/internal/middleware"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("analytics API stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	client, err := db.ConnectMongo(ctx, cfg.Mongo.URI)
	if err != nil {
		return fmt.Errorf("connect to MongoDB: %w", err)
	}
	defer func() {
		_ = client.Disconnect(context.Background())
	}()
	database := client.Database(cfg.Mongo.Database)
	if err := db.EnsureIndexes(ctx, database); err != nil {
		log.WithError(err).Warn("failed to ensure indexes")
	}
	store := db.NewStore(database)
	log.WithField("database", cfg.Mongo.Database).Info("connected to MongoDB")

	g, ctx := errgroup.WithContext(ctx)

	statsCache, err := newStatsCache(ctx, cfg, log, g)
	if err != nil {
		return err
	}

	service := analytics.NewService(store.Tickets, store.Predictions, store.Invoices, log)
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry)
	limiter := middleware.NewRateLimitMiddleware()

	router := handlers.NewRouter(
		handlers.NewAnalyticsHandler(service, cache.NewMemo(statsCache, log), log),
		middleware.NewAuthMiddleware(authService),
		limiter,
		handlers.RouterConfig{
			CORSOrigins:       cfg.HTTP.CORSOrigins,
			RateLimitRequests: cfg.RateLimit.Requests,
			RateLimitWindow:   cfg.RateLimit.WindowSeconds,
			Ping: func(ctx context.Context) error {
				return client.Ping(ctx, nil)
			},
		},
		log,
	)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.WithField("addr", srv.Addr).Info("analytics API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down analytics API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		sweepRateLimiter(ctx, limiter, cfg.RateLimit.WindowSeconds)
		return nil
	})
	return g.Wait()
}

// newStatsCache builds the configured stats cache backend. The memory backend
// gets its expiry sweeper started on g.
func newStatsCache(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, g *errgroup.Group) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		client, err := cache.NewRedisClient(pingCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		g.Go(func() error {
			<-ctx.Done()
			return client.Close()
		})
		log.WithField("addr", cfg.Redis.Addr).Info("stats cache backed by Redis")
		return cache.NewRedisCache(client, cfg.Cache.TTL), nil
	default:
		mem := cache.NewMemoryCache(cfg.Cache.TTL, cfg.Cache.MaxEntries)
		if cfg.Cache.SweepInterval > 0 {
			g.Go(func() error {
				mem.Run(ctx, cfg.Cache.SweepInterval)
				return nil
			})
		}
		log.WithField("max_entries", cfg.Cache.MaxEntries).Info("stats cache in memory")
		return mem, nil
	}
}

func sweepRateLimiter(ctx context.Context, limiter *middleware.RateLimitMiddleware, windowSeconds int) {
	if windowSeconds <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(windowSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep(windowSeconds)
		}
	}
}
