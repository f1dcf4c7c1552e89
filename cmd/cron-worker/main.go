package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hilife/servicereport-backend/internal/cron"
	"github.com/hilife/servicereport-backend/internal/users"
	"github.com/hilife/servicereport-backend/pkg/config"
	"github.com/hilife/servicereport-backend/pkg/db"
	"github.com/hilife/servicereport-backend/pkg/instance"
	"github.com/hilife/servicereport-backend/pkg/logger"
	"github.com/hilife/servicereport-backend/pkg/metrics"
	"github.com/hilife/servicereport-backend/pkg/migrate"
	"github.com/hilife/servicereport-backend/pkg/outbox"
	"github.com/hilife/servicereport-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	reg := prometheus.NewRegistry()
	sweepMetrics := metrics.NewMaintenanceMetrics(reg)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(cron.SweepLockName(cfg.App.Env)), 0, instance.GetID())
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep lock", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	sweeper, err := cron.NewSweeper(cron.SweepParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  sweepMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create maintenance sweeper", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	go func() {
		if err := metrics.Serve(ctx, cfg.App.MetricsPort, reg, logg); err != nil {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()

	if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	registry := cron.NewRegistry()

	identities := users.NewIdentityRepository(dbClient.DB())
	roles := users.NewRoleRepository(dbClient.DB())
	reconcile, err := cron.NewReconcileJob(cron.ReconcileJobParams{
		Logger:      logg,
		Tasks:       users.NewTaskRepository(dbClient.DB()),
		Executor:    users.NewExecutor(identities, roles),
		Limit:       cfg.Cron.ReconcileBatchSize,
		MaxAttempts: cfg.Cron.ReconcileMaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile job: %w", err)
	}
	registry.Register(reconcile)

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  outbox.NewRepository(dbClient.DB()),
		Retention:   cfg.Cron.OutboxRetentionDays,
		MinAttempts: cfg.Cron.OutboxRetentionAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	registry.Register(retention)

	return registry, nil
}
