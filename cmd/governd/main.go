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

	"github.com/pagemd/governance/internal/app"
	"github.com/pagemd/governance/internal/audit"
	"github.com/pagemd/governance/internal/authz"
	"github.com/pagemd/governance/internal/catalog"
	"github.com/pagemd/governance/internal/governance"
	"github.com/pagemd/governance/internal/observability"
	"github.com/pagemd/governance/internal/platform/cache"
	"github.com/pagemd/governance/internal/platform/db"
	"github.com/pagemd/governance/internal/tenant"
	"github.com/pagemd/governance/jobs"
	"github.com/pagemd/governance/migrations"
)

func main() {
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

	if err := db.Migrate(ctx, pool, migrations.Control, "control"); err != nil {
		logger.Error("apply control migrations", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, drift cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}()

	metrics := observability.NewMetrics()
	registry := tenant.NewRegistry(pool)
	auditService := audit.NewService(audit.NewRepository(pool))

	service := governance.NewService(governance.ServiceConfig{
		Catalog:  cat,
		Repo:     governance.NewRepository(pool),
		Registry: registry,
		Audit:    auditService,
		Cache:    governance.NewDriftCache(redisClient, cfg.DriftCacheTTL),
		Metrics:  metrics,
		Logger:   logger,
	})

	var (
		enqueuer   governance.TaskEnqueuer
		jobHandler *jobs.Handler
	)
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		client, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init queue client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = client.Close() }()
		enqueuer = client
		jobHandler = jobs.NewHandler(asynq.NewInspector(redisOpts), logger)
	}

	authzMW := authz.NewMiddleware(logger, authz.NewVerifier(authz.NewPGStore(pool)))

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Authz:             authzMW,
		GovernanceHandler: governance.NewHandler(logger, service, enqueuer),
		AuditHandler:      audit.NewHandler(logger, auditService),
		TenantHandler:     tenant.NewHandler(logger, registry),
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	}()

	logger.Info("governance service listening", slog.String("addr", cfg.AppAddr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server run", slog.Any("error", err))
		os.Exit(1)
	}
}
