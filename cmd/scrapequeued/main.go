// Package main wires together the scrape job service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"scrapequeue/internal/api"
	"scrapequeue/internal/backend/local"
	"scrapequeue/internal/backend/remote"
	"scrapequeue/internal/backoff"
	"scrapequeue/internal/clock/system"
	"scrapequeue/internal/config"
	"scrapequeue/internal/executor"
	"scrapequeue/internal/logging"
	"scrapequeue/internal/metrics"
	memorypublisher "scrapequeue/internal/publisher/memory"
	pubsubpublisher "scrapequeue/internal/publisher/pubsub"
	"scrapequeue/internal/queue"
	"scrapequeue/internal/registry"
	"scrapequeue/internal/scrape"
	"scrapequeue/internal/service"
	"scrapequeue/internal/status"
	"scrapequeue/internal/usage"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	clock := system.New()
	reg := registry.New(clock)
	q := queue.New(cfg.Queue.Depth)

	var backend scrape.Backend
	var meter *usage.Meter
	if cfg.Backend.SelfHosted {
		logger.Info("using self-hosted backend, usage metering disabled")
		backend = local.New(local.Config{
			UserAgent:    cfg.Backend.UserAgent,
			IgnoreRobots: cfg.Backend.IgnoreRobots,
			Timeout:      cfg.BackendTimeout(),
		})
		meter = usage.NewDisabled()
	} else {
		backend = remote.New(remote.Config{
			BaseURL: cfg.Backend.URL,
			APIKey:  cfg.Backend.APIKey,
			Timeout: cfg.BackendTimeout(),
		})
		meter = usage.New(
			cfg.Usage.WarningThreshold,
			cfg.Usage.CriticalThreshold,
			clock,
			logger.Named("usage"),
		)
	}

	var publisher scrape.Publisher
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		pub, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Warn("pubsub publisher init failed, falling back to memory", zap.Error(err))
			publisher = memorypublisher.New()
		} else {
			defer func() {
				if closeErr := pub.Close(); closeErr != nil {
					logger.Warn("pubsub close failed", zap.Error(closeErr))
				}
			}()
			publisher = pub
		}
	} else {
		publisher = memorypublisher.New()
	}

	policy := backoff.Policy{
		InitialDelay: cfg.InitialDelay(),
		Factor:       cfg.Retry.BackoffFactor,
		MaxDelay:     cfg.MaxDelay(),
		MaxAttempts:  cfg.Retry.MaxAttempts,
	}
	exec := executor.New(policy, logger.Named("executor"))
	worker := queue.NewWorker(
		q,
		reg,
		backend,
		exec,
		meter,
		publisher,
		cfg.PubSub.TopicName,
		logger.Named("worker"),
	)

	svc := service.New(reg, q, status.NewReporter(reg), logger.Named("service"))
	apiServer := api.NewServer(svc, cfg, logger.Named("api"))

	if cfg.Registry.SweepEnabled {
		go reg.StartSweeper(
			ctx,
			time.Duration(cfg.Registry.SweepIntervalSeconds)*time.Second,
			time.Duration(cfg.Registry.TTLSeconds)*time.Second,
			logger.Named("sweeper"),
		)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("worker started")
		worker.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
