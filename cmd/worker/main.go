package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/nupkan/permhub/internal/app"
	"github.com/nupkan/permhub/internal/observability"
	"github.com/nupkan/permhub/internal/sync"
	"github.com/nupkan/permhub/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	if cfg.SyncToken == "" {
		logger.Error("sync token not configured, worker has nothing to do")
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	reconciler := sync.NewReconciler(
		sync.NewClient(cfg.RegistryBaseURL, cfg.SyncToken),
		cfg.ManifestPath, logger, metrics)
	taskHandler := sync.NewTaskHandler(reconciler, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: sync.TaskManifestSync, Handler: taskHandler.Handle},
		},
		Cron: []jobs.CronRegistration{
			{
				Spec:    "@every " + cfg.SyncInterval.String(),
				Task:    sync.NewManifestSyncTask(),
				Options: []asynq.Option{asynq.MaxRetry(3)},
			},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
