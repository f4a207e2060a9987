package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nupkan/permhub/internal/access"
	"github.com/nupkan/permhub/internal/app"
	"github.com/nupkan/permhub/internal/catalog"
	"github.com/nupkan/permhub/internal/identity"
	"github.com/nupkan/permhub/internal/observability"
	"github.com/nupkan/permhub/internal/platform/cache"
	"github.com/nupkan/permhub/internal/platform/db"
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
	if err := cfg.ValidateRegistry(); err != nil {
		slog.Default().Error("config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var store cache.Store
	redisClient, err := cache.NewClient(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, using in-process cache", slog.Any("error", err))
		store = cache.NewMemoryStore()
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		store = cache.NewRedisStore(redisClient, logger)
	}

	metrics := observability.NewMetrics()
	store = cache.NewInstrumentedStore(store, metrics)

	issuer := identity.NewTokenIssuer(cfg.TokenSecret, cfg.TokenTTL)
	identityRepo := identity.NewRepository(pool)
	identityService := identity.NewService(identityRepo, issuer)
	identityHandler := identity.NewHandler(logger, identityService)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo)
	catalogHandler := catalog.NewHandler(logger, catalogService, cfg.SyncToken)
	if cfg.SyncToken == "" {
		logger.Warn("sync token not configured, sync-functions endpoint disabled")
	}

	accessRepo := access.NewRepository(pool)
	accessService := access.NewService(accessRepo, access.NewCacheInvalidator(store))
	accessHandler := access.NewHandler(logger, accessService, store, cfg.AdminToken)

	router := app.NewRegistryRouter(app.RegistryRouterParams{
		Logger:          logger,
		Config:          cfg,
		IdentityHandler: identityHandler,
		CatalogHandler:  catalogHandler,
		AccessHandler:   accessHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting registry", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
