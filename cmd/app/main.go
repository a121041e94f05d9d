package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmobrien1/mdraft/internal/config"
	pg "github.com/jmobrien1/mdraft/internal/infra/db/postgres"
	"github.com/jmobrien1/mdraft/internal/infra/extract"
	"github.com/jmobrien1/mdraft/internal/infra/logging"
	"github.com/jmobrien1/mdraft/internal/infra/metrics"
	"github.com/jmobrien1/mdraft/internal/infra/notify"
	red "github.com/jmobrien1/mdraft/internal/infra/redis"
	"github.com/jmobrien1/mdraft/internal/infra/sched"
	"github.com/jmobrien1/mdraft/internal/infra/storage"
	"github.com/jmobrien1/mdraft/internal/infra/web"
	"github.com/jmobrien1/mdraft/internal/infra/worker"
	"github.com/jmobrien1/mdraft/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (relaxed validation, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	taskQueue := red.NewTaskQueue(redisClient)

	// ---- Blob storage ----
	blobs, err := storage.NewFSStore(cfg.Storage.Root)
	if err != nil {
		logger.Fatal().Err(err).Msg("blob store")
	}

	// ---- Repositories ----
	jobRepo := pg.NewConversionJobRepo(pool)
	accountRepo := pg.NewAccountRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Use cases ----
	intakeUC := usecase.NewIntakeUseCase(jobRepo, accountRepo, blobs, taskQueue, rateLimiter, usecase.IntakeOptions{
		Limits:             cfg.Convert.Limits,
		RateLimitPerMinute: cfg.Convert.RateLimit.PerMinute,
		EnqueueRetries:     cfg.Convert.EnqueueRetries,
		RetentionTTL:       cfg.Retention.TTL,
	}, logger)
	jobsUC := usecase.NewJobUseCase(jobRepo, blobs, taskQueue, txManager, logger)

	// ---- Conversion workers ----
	chain := extract.NewChain(logger)
	notifier := notify.NewWebhookNotifier(notify.Options{
		Secret:      cfg.Webhook.Secret,
		Timeout:     cfg.Webhook.Timeout,
		MaxAttempts: cfg.Webhook.MaxAttempts,
		BaseDelay:   cfg.Webhook.BaseDelay,
		MaxDelay:    cfg.Webhook.MaxDelay,
	}, logger)
	retry := usecase.RetryPolicy{
		MaxAttempts: cfg.Convert.MaxAttempts,
		BaseDelay:   cfg.Convert.BaseDelay,
		MaxDelay:    cfg.Convert.MaxDelay,
		Jitter:      true,
	}
	workerPool := worker.NewPool(cfg.Convert.Workers, logger)
	workerPool.Start(ctx)
	processor := worker.NewConversionProcessor(jobRepo, blobs, chain, taskQueue, notifier, retry, cfg.Convert.QueuePollTimeout, logger)
	go processor.Start(ctx, workerPool)

	// ---- Retention sweeper ----
	sweeper := sched.NewRetentionSweeper(cfg.Retention.SweepInterval, jobRepo, blobs, logger)
	go func() { _ = sweeper.Run(ctx) }()

	// ---- Queue depth gauge ----
	gauge := sched.NewQueueGauge(15*time.Second, taskQueue, logger)
	go func() { _ = gauge.Run(ctx) }()

	// ---- HTTP API ----
	apiServer := web.NewServer(intakeUC, jobsUC,
		web.NewVisitorAuth(cfg.Server.VisitorSecret, !cfg.Runtime.Dev, cfg.Server.VisitorTTL),
		pool, redisClient,
		web.ServerOptions{APIKeys: cfg.Server.APIKeys},
		logger,
	)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http api listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
	workerPool.Stop()
	logger.Info().Msg("bye")
}
