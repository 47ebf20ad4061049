package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fieldforce/fieldforce/internal/app"
	"github.com/fieldforce/fieldforce/internal/audit"
	"github.com/fieldforce/fieldforce/internal/auth"
	"github.com/fieldforce/fieldforce/internal/bookings"
	"github.com/fieldforce/fieldforce/internal/events"
	"github.com/fieldforce/fieldforce/internal/kits"
	"github.com/fieldforce/fieldforce/internal/locations"
	"github.com/fieldforce/fieldforce/internal/notifications"
	"github.com/fieldforce/fieldforce/internal/observability"
	"github.com/fieldforce/fieldforce/internal/organizations"
	"github.com/fieldforce/fieldforce/internal/platform/cache"
	"github.com/fieldforce/fieldforce/internal/platform/db"
	"github.com/fieldforce/fieldforce/internal/users"
	"github.com/fieldforce/fieldforce/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.DatabaseURL(), cfg.MaxConns())
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	var bus events.Bus
	switch cfg.EventBus {
	case "redis":
		redisBus := events.NewRedisBus(redisClient, logger, metrics)
		if err := redisBus.Listen(ctx); err != nil {
			logger.Error("subscribe event bus", slog.Any("error", err))
			os.Exit(1)
		}
		bus = redisBus
	default:
		bus = events.NewMemoryBus(logger, metrics)
	}

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		logger.Error("init token manager", slog.Any("error", err))
		os.Exit(1)
	}

	var geocoder locations.Geocoder
	if cfg.GoogleMapsAPIKey != "" {
		g, err := locations.NewGoogleGeocoder(cfg.GoogleMapsAPIKey)
		if err != nil {
			logger.Error("init geocoder", slog.Any("error", err))
			os.Exit(1)
		}
		geocoder = g
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	notifier := notifications.NewSubscriber(jobClient, logger)
	notifier.Attach(bus)
	defer notifier.Detach(bus)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	api, err := app.NewAPI(app.Deps{
		Logger: logger,
		Config: cfg,
		Stores: app.Stores{
			Users:         users.NewRepository(dbpool),
			Organizations: organizations.NewRepository(dbpool),
			Locations:     locations.NewRepository(dbpool),
			Bookings:      bookings.NewRepository(dbpool),
			Kits:          kits.NewRepository(dbpool),
			Audit:         audit.NewRepository(dbpool),
		},
		Bus:       bus,
		Redis:     redisClient,
		Tokens:    tokens,
		Geocoder:  geocoder,
		Metrics:   metrics,
		Inspector: inspector,
	})
	if err != nil {
		logger.Error("wire api", slog.Any("error", err))
		os.Exit(1)
	}
	for _, c := range []interface{ ListenForInvalidation(context.Context) error }{api.LocationsCache, api.FeaturesCache} {
		if err := c.ListenForInvalidation(ctx); err != nil {
			logger.Warn("cache invalidation listener", slog.Any("error", err))
		}
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      api.Handler,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("event_bus", cfg.EventBus))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
