package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nupkan/permhub/internal/app"
	"github.com/nupkan/permhub/internal/board"
	"github.com/nupkan/permhub/internal/gateway"
	"github.com/nupkan/permhub/internal/observability"
	"github.com/nupkan/permhub/internal/platform/cache"
	"github.com/nupkan/permhub/internal/platform/db"
	"github.com/nupkan/permhub/internal/shared"
	"github.com/nupkan/permhub/internal/sync"
	"github.com/nupkan/permhub/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var store cache.Store
	var sessions *shared.SessionManager
	var syncQueue *jobs.Client
	redisClient, err := cache.NewClient(ctx, cfg.RedisAddr)
	if err != nil {
		// The board degrades to an in-process cache and loses the legacy
		// session path and the job queue; bearer tokens keep working.
		logger.Warn("redis unavailable, using in-process cache", slog.Any("error", err))
		store = cache.NewMemoryStore()
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		store = cache.NewRedisStore(redisClient, logger)
		sessions = shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
		if cfg.SyncToken != "" {
			if queue, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr}); err != nil {
				logger.Warn("job queue unavailable", slog.Any("error", err))
			} else {
				syncQueue = queue
				defer func() {
					if err := syncQueue.Close(); err != nil {
						logger.Warn("job queue close", slog.Any("error", err))
					}
				}()
			}
		}
	}

	metrics := observability.NewMetrics()
	store = cache.NewInstrumentedStore(store, metrics)

	repo := board.NewRepository(pool)
	registry := gateway.NewRegistryClient(cfg.RegistryBaseURL)
	gw := gateway.New(registry, repo, sessions, store, cfg.BoardSystemID, logger)

	boardService := board.NewService(repo)
	boardHandler := board.NewHandler(logger, boardService, gw)

	if cfg.SyncAutoStart {
		if cfg.SyncToken == "" {
			logger.Warn("sync token not configured, startup manifest sync disabled")
		} else {
			reconciler := sync.NewReconciler(
				sync.NewClient(cfg.RegistryBaseURL, cfg.SyncToken),
				cfg.ManifestPath, logger, metrics)
			go func() {
				if _, err := reconciler.Reconcile(ctx); err != nil {
					logger.Error("startup manifest sync", slog.Any("error", err))
				}
			}()
		}
	}

	var syncTrigger *sync.TriggerHandler
	if syncQueue != nil {
		syncTrigger = sync.NewTriggerHandler(syncQueue, cfg.SyncToken, logger)
	}

	router := app.NewBoardRouter(app.BoardRouterParams{
		Logger:       logger,
		Config:       cfg,
		BoardHandler: boardHandler,
		SyncTrigger:  syncTrigger,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting board", slog.String("addr", cfg.AppAddr))
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
