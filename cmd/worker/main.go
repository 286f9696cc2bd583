package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/pagemd/governance/internal/app"
	"github.com/pagemd/governance/internal/audit"
	"github.com/pagemd/governance/internal/catalog"
	"github.com/pagemd/governance/internal/governance"
	"github.com/pagemd/governance/internal/platform/cache"
	"github.com/pagemd/governance/internal/platform/db"
	"github.com/pagemd/governance/internal/tenant"
	"github.com/pagemd/governance/jobs"
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

	cat, err := catalog.Default()
	if err != nil {
		logger.Error("load catalog", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}()

	service := governance.NewService(governance.ServiceConfig{
		Catalog:  cat,
		Repo:     governance.NewRepository(pool),
		Registry: tenant.NewRegistry(pool),
		Audit:    audit.NewService(audit.NewRepository(pool)),
		Cache:    governance.NewDriftCache(redisClient, cfg.DriftCacheTTL),
		Logger:   logger,
	})
	syncAllJob := jobs.NewSyncAllJob(service, logger)

	nightlyTask, err := jobs.NewSyncAllTask(jobs.SyncAllPayload{})
	if err != nil {
		logger.Error("build sync-all task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskGovernanceSyncAll, Handler: syncAllJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 2 * * *", Task: nightlyTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
